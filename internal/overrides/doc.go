// Package overrides provides the input override store: a last-write-wins map
// from (node id, input name) to the most recent externally supplied value.
//
// # Concurrency Model
//
// The store is copy-on-write. Writers serialize on a mutex, build a new
// immutable View and publish it through an atomic pointer. Readers load the
// pointer and never lock, so a reader can only ever wait behind a writer for
// the single atomic load. The execution loop takes one View at the start of
// each cycle, which makes a write that lands mid-cycle visible from the next
// cycle on.
package overrides
