package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "FLOWLOOP_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv reads the FLOWLOOP_* variables. Unset or empty variables leave the
// field zero.
func FromEnv(lookup LookupFunc) (Settings, error) {
	get := func(name string) string {
		v, _ := lookup(EnvPrefix + name)
		return strings.TrimSpace(v)
	}

	s := Settings{
		Listen:       get("LISTEN"),
		LogLevel:     strings.ToLower(get("LOG_LEVEL")),
		LogFormat:    strings.ToLower(get("LOG_FORMAT")),
		NATSURL:      get("NATS_URL"),
		NATSSubject:  get("NATS_SUBJECT"),
		OTLPEndpoint: get("OTLP_ENDPOINT"),
	}
	if v := get("ALLOWED_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				s.AllowedOrigins = append(s.AllowedOrigins, origin)
			}
		}
	}

	var errs []error
	var err error
	if s.Interval, err = ParseDuration(get("INTERVAL")); err != nil {
		errs = append(errs, fmt.Errorf("%sINTERVAL: %w", EnvPrefix, err))
	}
	if s.NodeTimeout, err = ParseDuration(get("NODE_TIMEOUT")); err != nil {
		errs = append(errs, fmt.Errorf("%sNODE_TIMEOUT: %w", EnvPrefix, err))
	}
	if v := get("QUEUE_SIZE"); v != "" {
		if s.QueueSize, err = strconv.Atoi(v); err != nil {
			errs = append(errs, fmt.Errorf("%sQUEUE_SIZE: %w", EnvPrefix, err))
		}
	}
	return s, errors.Join(errs...)
}

// ParseDuration accepts a Go duration ("250ms") or plain seconds ("0.25").
// The empty string yields zero.
func ParseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
