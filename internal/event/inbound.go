package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidJSON is returned for inbound frames that are not a JSON object.
var ErrInvalidJSON = errors.New("Invalid JSON format")

// UnknownTypeError is returned for an inbound message of an unsupported type.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("Unknown message type: %s", e.Type)
}

// Inbound is a decoded control message from an observer.
type Inbound struct {
	Type      Type
	Timestamp any
	// Exactly one of the following is set, matching Type.
	InputUpdate *InputUpdate
	Subscribe   *Subscribe
}

// InputUpdate requests an override write.
type InputUpdate struct {
	NodeID     string `json:"node_id"`
	InputName  string `json:"input_name"`
	InputValue any    `json:"input_value"`
}

// Validate checks the required fields.
func (u *InputUpdate) Validate() error {
	if strings.TrimSpace(u.NodeID) == "" || strings.TrimSpace(u.InputName) == "" {
		return errors.New("Missing required fields: node_id, input_name")
	}
	return nil
}

// Subscribe restricts the event types delivered to the sender. An empty list
// means every type.
type Subscribe struct {
	Events []Type `json:"events"`
}

type rawInbound struct {
	Type      Type            `json:"type"`
	Timestamp any             `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Events    []Type          `json:"events"`
}

// DecodeInbound parses one inbound frame.
func DecodeInbound(frame []byte) (*Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, ErrInvalidJSON
	}

	msg := &Inbound{Type: raw.Type, Timestamp: raw.Timestamp}
	switch raw.Type {
	case TypePing, TypeGetStatus:
	case TypeSubscribe:
		sub := &Subscribe{Events: raw.Events}
		if hasData(raw.Data) {
			var inner Subscribe
			if err := json.Unmarshal(raw.Data, &inner); err != nil {
				return nil, fmt.Errorf("invalid subscribe payload: %w", err)
			}
			sub.Events = append(sub.Events, inner.Events...)
		}
		msg.Subscribe = sub
	case TypeInputUpdate:
		var upd InputUpdate
		if hasData(raw.Data) {
			if err := json.Unmarshal(raw.Data, &upd); err != nil {
				return nil, fmt.Errorf("invalid input_update payload: %w", err)
			}
		}
		if err := upd.Validate(); err != nil {
			return nil, err
		}
		msg.InputUpdate = &upd
	default:
		return nil, &UnknownTypeError{Type: raw.Type}
	}
	return msg, nil
}

func hasData(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
