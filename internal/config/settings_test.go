package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestMergeOverridesOnlySetFields(t *testing.T) {
	base := Defaults()
	merged := base.Merge(Settings{Listen: ":9000", QueueSize: 8})

	assert.Equal(t, ":9000", merged.Listen)
	assert.Equal(t, 8, merged.QueueSize)
	assert.Equal(t, base.Interval, merged.Interval)
	assert.Equal(t, base.LogLevel, merged.LogLevel)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())

	bad := Defaults()
	bad.Interval = 0
	bad.LogFormat = "xml"
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval must be positive")
	assert.Contains(t, err.Error(), "invalid log-format")
}

func TestFromEnv(t *testing.T) {
	t.Run("reads every variable", func(t *testing.T) {
		s, err := FromEnv(envMap(map[string]string{
			"FLOWLOOP_LISTEN":          "127.0.0.1:1",
			"FLOWLOOP_ALLOWED_ORIGINS": "http://a, http://b",
			"FLOWLOOP_INTERVAL":        "0.5",
			"FLOWLOOP_NODE_TIMEOUT":    "2s",
			"FLOWLOOP_QUEUE_SIZE":      "32",
			"FLOWLOOP_LOG_LEVEL":       "DEBUG",
			"FLOWLOOP_NATS_URL":        "nats://x:4222",
		}))
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:1", s.Listen)
		assert.Equal(t, []string{"http://a", "http://b"}, s.AllowedOrigins)
		assert.Equal(t, 500*time.Millisecond, s.Interval)
		assert.Equal(t, 2*time.Second, s.NodeTimeout)
		assert.Equal(t, 32, s.QueueSize)
		assert.Equal(t, "debug", s.LogLevel)
		assert.Equal(t, "nats://x:4222", s.NATSURL)
	})

	t.Run("empty environment", func(t *testing.T) {
		s, err := FromEnv(envMap(nil))
		require.NoError(t, err)
		assert.Equal(t, Settings{}, s)
	})

	t.Run("bad values", func(t *testing.T) {
		_, err := FromEnv(envMap(map[string]string{
			"FLOWLOOP_INTERVAL":   "soon",
			"FLOWLOOP_QUEUE_SIZE": "many",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FLOWLOOP_INTERVAL")
		assert.Contains(t, err.Error(), "FLOWLOOP_QUEUE_SIZE")
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"1.5", 1500 * time.Millisecond},
		{"250ms", 250 * time.Millisecond},
		{"2", 2 * time.Second},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
