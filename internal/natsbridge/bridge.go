package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/vk/flowloop/internal/broadcast"
	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/event"
)

// ObserverID is the id the bridge registers with the hub.
const ObserverID = "nats-bridge"

// Conn is the part of *nats.Conn the bridge uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Updater accepts input overrides.
type Updater interface {
	UpdateInput(nodeID, input string, value any) error
}

// Bridge relays hub events to NATS and NATS overrides to the engine.
type Bridge struct {
	conn    Conn
	updater Updater
	prefix  string
	logger  *slog.Logger
}

// New creates a bridge publishing under prefix.
func New(conn Conn, updater Updater, prefix string) *Bridge {
	if prefix == "" {
		prefix = "flowloop"
	}
	return &Bridge{conn: conn, updater: updater, prefix: prefix, logger: slog.Default()}
}

// EventSubject is the subject an event type is published on.
func (b *Bridge) EventSubject(t event.Type) string {
	return fmt.Sprintf("%s.events.%s", b.prefix, t)
}

// InputSubject is the subject overrides are read from.
func (b *Bridge) InputSubject() string {
	return b.prefix + ".input_update"
}

// Run forwards events until ctx is cancelled or the hub is closed. When the
// hub evicts the bridge for falling behind, it registers again and carries on.
func (b *Bridge) Run(ctx context.Context, hub *broadcast.Hub) error {
	b.logger = ctxlog.FromContext(ctx).With("component", "natsbridge")

	sub, err := b.conn.Subscribe(b.InputSubject(), b.handleInput)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.InputSubject(), err)
	}
	defer func() {
		if sub == nil {
			return
		}
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("Unsubscribe failed.", "error", err)
		}
	}()
	defer hub.Unregister(ObserverID)
	b.logger.Info("NATS bridge running.", "events", b.EventSubject("*"), "input", b.InputSubject())

	for {
		obs, err := hub.Register(ObserverID)
		if errors.Is(err, broadcast.ErrHubClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("register bridge observer: %w", err)
		}

		if done := b.drain(ctx, obs); done {
			return nil
		}
		var bp *broadcast.BackpressureError
		if !errors.As(obs.Err(), &bp) {
			return nil
		}
		b.logger.Warn("Bridge fell behind; events were dropped. Re-registering.", "queue_size", bp.QueueSize)
	}
}

// drain forwards queued events until ctx is done, reporting true, or the
// observer's queue is closed.
func (b *Bridge) drain(ctx context.Context, obs *broadcast.Observer) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case env, ok := <-obs.Events():
			if !ok {
				return false
			}
			b.forward(env)
		}
	}
}

func (b *Bridge) forward(env event.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		b.logger.Warn("Failed to encode event.", "type", env.Type, "error", err)
		return
	}
	if err := b.conn.Publish(b.EventSubject(env.Type), data); err != nil {
		b.logger.Warn("Failed to publish event.", "type", env.Type, "error", err)
	}
}

func (b *Bridge) handleInput(msg *nats.Msg) {
	resp := event.InputUpdateResponse{Success: true, Message: "Parameter updated successfully"}

	var upd event.InputUpdate
	switch err := json.Unmarshal(msg.Data, &upd); {
	case err != nil:
		resp.Success, resp.Message = false, event.ErrInvalidJSON.Error()
	default:
		resp.NodeID, resp.InputName, resp.InputValue = upd.NodeID, upd.InputName, upd.InputValue
		if err := upd.Validate(); err != nil {
			resp.Success, resp.Message = false, err.Error()
		} else if err := b.updater.UpdateInput(upd.NodeID, upd.InputName, upd.InputValue); err != nil {
			resp.Success, resp.Message = false, err.Error()
		}
	}
	if !resp.Success {
		b.logger.Debug("Rejected override from NATS.", "subject", msg.Subject, "reason", resp.Message)
	}

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(event.New(event.TypeInputUpdateResponse, resp))
	if err != nil {
		return
	}
	if err := b.conn.Publish(msg.Reply, data); err != nil {
		b.logger.Debug("Failed to reply.", "reply", msg.Reply, "error", err)
	}
}
