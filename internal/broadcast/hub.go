package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/event"
)

// DefaultQueueSize is the per-observer queue capacity used when none is given.
const DefaultQueueSize = 256

var (
	// ErrUnknownObserver is returned by SendTo for an unregistered id.
	ErrUnknownObserver = errors.New("observer is not registered")
	// ErrDuplicateObserver is returned when an id is registered twice.
	ErrDuplicateObserver = errors.New("observer id already registered")
	// ErrHubClosed is returned by Register after Close.
	ErrHubClosed = errors.New("broadcast hub is closed")
	// ErrUnregistered is the reason recorded for a normal disconnect.
	ErrUnregistered = errors.New("observer unregistered")
)

// BackpressureError records that an observer fell behind and was evicted.
type BackpressureError struct {
	ObserverID string
	QueueSize  int
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("observer '%s' evicted: outbound queue full (%d events)", e.ObserverID, e.QueueSize)
}

// Hub is the single owner of the observer set.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]*Observer
	closed    bool

	queueSize int
	logger    *slog.Logger
	evictions atomic.Int64
	published atomic.Int64
}

// New creates a hub whose observers get queues of queueSize events. The
// logger is taken from ctx.
func New(ctx context.Context, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		observers: make(map[string]*Observer),
		queueSize: queueSize,
		logger:    ctxlog.FromContext(ctx).With("component", "broadcast"),
	}
}

// Register adds an observer. With no types it receives every event.
func (h *Hub) Register(id string, types ...event.Type) (*Observer, error) {
	o := newObserver(id, h.queueSize, types)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if _, exists := h.observers[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateObserver, id)
	}
	h.observers[id] = o
	h.logger.Debug("Observer registered.", "observer", id, "observers", len(h.observers))
	return o, nil
}

// Unregister removes an observer and closes its queue. It is safe to call
// more than once and for ids that were never registered.
func (h *Hub) Unregister(id string) {
	h.remove(id, ErrUnregistered)
}

func (h *Hub) remove(id string, reason error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	o, ok := h.observers[id]
	if !ok {
		return false
	}
	delete(h.observers, id)
	o.close(reason)
	h.logger.Debug("Observer removed.", "observer", id, "reason", reason, "observers", len(h.observers))
	return true
}

// Publish offers env to every observer subscribed to its type. It never
// blocks; observers whose queue is full are evicted.
func (h *Hub) Publish(env event.Envelope) {
	h.published.Add(1)

	var lagging []*Observer
	h.mu.RLock()
	for _, o := range h.observers {
		if !o.accepts(env.Type) {
			continue
		}
		if !o.offer(env) {
			lagging = append(lagging, o)
		}
	}
	h.mu.RUnlock()

	for _, o := range lagging {
		h.evict(o)
	}
}

// SendTo delivers env to one observer, ignoring its subscription filter.
func (h *Hub) SendTo(id string, env event.Envelope) error {
	h.mu.RLock()
	o, ok := h.observers[id]
	delivered := ok && o.offer(env)
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObserver, id)
	}
	if !delivered {
		return h.evict(o)
	}
	return nil
}

func (h *Hub) evict(o *Observer) error {
	err := &BackpressureError{ObserverID: o.id, QueueSize: cap(o.queue)}
	if h.remove(o.id, err) {
		h.evictions.Add(1)
		h.logger.Warn("Evicted slow observer.", "observer", o.id, "queue_size", cap(o.queue))
	}
	return err
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// IDs returns the registered observer ids, sorted.
func (h *Hub) IDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.observers))
	for id := range h.observers {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Stats reports lifetime counters.
func (h *Hub) Stats() (published, evictions int64) {
	return h.published.Load(), h.evictions.Load()
}

// Close unregisters every observer and rejects later registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, o := range h.observers {
		delete(h.observers, id)
		o.close(ErrHubClosed)
	}
}
