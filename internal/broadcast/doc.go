// Package broadcast implements the state broadcaster: a fan-out hub that
// delivers event envelopes to every registered observer without ever
// blocking the publisher.
//
// Each observer owns a bounded queue drained by its transport writer. Publish
// performs a non-blocking send into every queue; an observer whose queue is
// full is evicted and its queue closed, which tells its writer to shut the
// connection down. Delivery to one observer is FIFO; nothing is promised
// across observers.
//
// All changes to the observer set go through the Hub. The set is guarded by
// its own RWMutex, independent of any other lock in the engine.
package broadcast
