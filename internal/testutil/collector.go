package testutil

import (
	"sync"
	"time"

	"github.com/vk/flowloop/internal/event"
)

// Collector is an event publisher that records everything it receives.
type Collector struct {
	mu     sync.Mutex
	events []event.Envelope
	notify chan struct{}
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{notify: make(chan struct{}, 1)}
}

// Publish implements executor.Publisher.
func (c *Collector) Publish(env event.Envelope) {
	c.mu.Lock()
	c.events = append(c.events, env)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of every recorded envelope.
func (c *Collector) Events() []event.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Envelope(nil), c.events...)
}

// OfType returns the recorded envelopes of one type.
func (c *Collector) OfType(t event.Type) []event.Envelope {
	var out []event.Envelope
	for _, env := range c.Events() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

// NodeStates returns the node_state payloads in arrival order.
func (c *Collector) NodeStates() []event.NodeState {
	var out []event.NodeState
	for _, env := range c.OfType(event.TypeNodeState) {
		if ns, ok := env.Data.(event.NodeState); ok {
			out = append(out, ns)
		}
	}
	return out
}

// WaitFor blocks until cond holds for the recorded events or the timeout
// expires, and reports whether it held.
func (c *Collector) WaitFor(timeout time.Duration, cond func([]event.Envelope) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if cond(c.Events()) {
			return true
		}
		select {
		case <-c.notify:
		case <-deadline.C:
			return cond(c.Events())
		}
	}
}

// CountType returns a condition satisfied once n envelopes of type t arrived.
func CountType(t event.Type, n int) func([]event.Envelope) bool {
	return func(envs []event.Envelope) bool {
		count := 0
		for _, env := range envs {
			if env.Type == t {
				count++
			}
		}
		return count >= n
	}
}
