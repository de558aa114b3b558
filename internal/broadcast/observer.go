package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/vk/flowloop/internal/event"
)

type typeFilter map[event.Type]struct{}

// Observer is one registered recipient. Its queue is closed when the hub
// removes it, after which Err reports why.
type Observer struct {
	id     string
	queue  chan event.Envelope
	filter atomic.Pointer[typeFilter]

	mu     sync.Mutex
	closed bool
	reason error
}

func newObserver(id string, size int, types []event.Type) *Observer {
	o := &Observer{id: id, queue: make(chan event.Envelope, size)}
	o.Subscribe(types...)
	return o
}

// ID returns the observer id.
func (o *Observer) ID() string { return o.id }

// Events returns the queue the transport writer drains. It is closed when
// the observer is removed.
func (o *Observer) Events() <-chan event.Envelope { return o.queue }

// Subscribe replaces the event type filter. No types means all types.
func (o *Observer) Subscribe(types ...event.Type) {
	if len(types) == 0 {
		o.filter.Store(nil)
		return
	}
	f := make(typeFilter, len(types))
	for _, t := range types {
		f[t] = struct{}{}
	}
	o.filter.Store(&f)
}

// Subscriptions returns the current filter; nil means all types.
func (o *Observer) Subscriptions() []event.Type {
	f := o.filter.Load()
	if f == nil {
		return nil
	}
	out := make([]event.Type, 0, len(*f))
	for t := range *f {
		out = append(out, t)
	}
	return out
}

// Err returns the removal reason, or nil while registered.
func (o *Observer) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reason
}

func (o *Observer) accepts(t event.Type) bool {
	f := o.filter.Load()
	if f == nil {
		return true
	}
	_, ok := (*f)[t]
	return ok
}

// offer is a non-blocking send. The hub calls it under its read lock, which
// excludes close.
func (o *Observer) offer(env event.Envelope) bool {
	select {
	case o.queue <- env:
		return true
	default:
		return false
	}
}

// close is called under the hub's write lock.
func (o *Observer) close(reason error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.reason = reason
	close(o.queue)
}
