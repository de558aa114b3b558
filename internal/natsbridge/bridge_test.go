package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowloop/internal/broadcast"
	"github.com/vk/flowloop/internal/event"
	"github.com/vk/flowloop/internal/testutil"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]nats.MsgHandler

	// gate, when set, holds every Publish until it is closed.
	gate chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string]nats.MsgHandler)}
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{subject: subject, data: data})
	return nil
}

func (c *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[subject] = cb
	return nil, nil
}

func (c *fakeConn) handler(subject string) nats.MsgHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[subject]
}

func (c *fakeConn) on(subject string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, m := range c.messages {
		if m.subject == subject {
			out = append(out, m)
		}
	}
	return out
}

type fakeUpdater struct {
	mu    sync.Mutex
	calls []event.InputUpdate
	err   error
}

func (u *fakeUpdater) UpdateInput(nodeID, input string, value any) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, event.InputUpdate{NodeID: nodeID, InputName: input, InputValue: value})
	return u.err
}

func startBridge(t *testing.T, upd Updater) (*Bridge, *fakeConn, *broadcast.Hub) {
	t.Helper()
	conn := newFakeConn()
	b, hub := startBridgeWith(t, conn, upd, 16)
	return b, conn, hub
}

func startBridgeWith(t *testing.T, conn *fakeConn, upd Updater, queueSize int) (*Bridge, *broadcast.Hub) {
	t.Helper()
	ctx, _ := testutil.LogContext(t)
	ctx, cancel := context.WithCancel(ctx)

	hub := broadcast.New(ctx, queueSize)
	b := New(conn, upd, "test")

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, hub) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("bridge did not stop")
		}
	})

	require.Eventually(t, func() bool {
		return conn.handler(b.InputSubject()) != nil && hub.Count() == 1
	}, time.Second, time.Millisecond)
	return b, hub
}

func TestBridgeForwardsEvents(t *testing.T) {
	b, conn, hub := startBridge(t, &fakeUpdater{})

	hub.Publish(event.New(event.TypeWorkflowEvent, event.WorkflowEvent{Event: event.ContinuousStarted}))

	subject := b.EventSubject(event.TypeWorkflowEvent)
	assert.Equal(t, "test.events.workflow_event", subject)
	require.Eventually(t, func() bool { return len(conn.on(subject)) == 1 }, time.Second, time.Millisecond)

	var env struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(conn.on(subject)[0].data, &env))
	assert.Equal(t, "workflow_event", env.Type)
	assert.Equal(t, "continuous_started", env.Data["event"])
}

func TestBridgeSurvivesEviction(t *testing.T) {
	conn := newFakeConn()
	conn.gate = make(chan struct{})
	b, hub := startBridgeWith(t, conn, &fakeUpdater{}, 1)

	// One event is held in Publish and one fills the queue; the rest overflow.
	for range 5 {
		hub.Publish(event.New(event.TypeWorkflowEvent, event.WorkflowEvent{Event: event.ContinuousStarted}))
	}
	_, evictions := hub.Stats()
	assert.Equal(t, int64(1), evictions)
	assert.Equal(t, 0, hub.Count())

	close(conn.gate)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{ObserverID}, hub.IDs())

	hub.Publish(event.New(event.TypePong, nil))
	pong := b.EventSubject(event.TypePong)
	require.Eventually(t, func() bool { return len(conn.on(pong)) == 1 }, time.Second, time.Millisecond)
	assert.NotEmpty(t, conn.on(b.EventSubject(event.TypeWorkflowEvent)))
}

func TestBridgeStopsWhenHubCloses(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	hub := broadcast.New(ctx, 4)
	b := New(newFakeConn(), &fakeUpdater{}, "test")

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, hub) }()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, time.Millisecond)

	hub.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestBridgeAcceptsOverrides(t *testing.T) {
	t.Run("valid request with reply", func(t *testing.T) {
		upd := &fakeUpdater{}
		b, conn, _ := startBridge(t, upd)

		conn.handler(b.InputSubject())(&nats.Msg{
			Subject: b.InputSubject(),
			Reply:   "_INBOX.1",
			Data:    []byte(`{"node_id": "n", "input_name": "x", "input_value": 7}`),
		})

		require.Len(t, upd.calls, 1)
		assert.Equal(t, "n", upd.calls[0].NodeID)
		assert.Equal(t, 7.0, upd.calls[0].InputValue)

		replies := conn.on("_INBOX.1")
		require.Len(t, replies, 1)
		assert.Contains(t, string(replies[0].data), `"success":true`)
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		upd := &fakeUpdater{}
		b, conn, _ := startBridge(t, upd)

		conn.handler(b.InputSubject())(&nats.Msg{Reply: "r", Data: []byte(`{"node_id": "n"}`)})

		assert.Empty(t, upd.calls)
		replies := conn.on("r")
		require.Len(t, replies, 1)
		assert.Contains(t, string(replies[0].data), "Missing required fields")
	})

	t.Run("engine rejection is reported", func(t *testing.T) {
		upd := &fakeUpdater{err: errors.New("no such input")}
		b, conn, _ := startBridge(t, upd)

		conn.handler(b.InputSubject())(&nats.Msg{Reply: "r", Data: []byte(`{"node_id": "n", "input_name": "y", "input_value": 1}`)})

		replies := conn.on("r")
		require.Len(t, replies, 1)
		assert.Contains(t, string(replies[0].data), "no such input")
	})

	t.Run("invalid json without reply", func(t *testing.T) {
		upd := &fakeUpdater{}
		b, conn, _ := startBridge(t, upd)

		conn.handler(b.InputSubject())(&nats.Msg{Data: []byte(`nope`)})
		assert.Empty(t, upd.calls)
	})
}

func TestConnectValidatesConfig(t *testing.T) {
	_, err := Connect(context.Background(), nil)
	assert.Error(t, err)
	_, err = Connect(context.Background(), &ConnectionConfig{})
	assert.ErrorContains(t, err, "URL cannot be empty")
}
