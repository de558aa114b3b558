// Package inmemorystore provides an ephemeral, thread-safe, in-memory record
// of every node's runtime state.
//
// # Purpose
//
// The execution loop is the only writer: it records each phase transition
// (executing, completed, error) together with the node's last result and
// error. Status requests from HTTP handlers and observer connections read
// the table concurrently while the loop runs.
//
// # Concurrency Model
//
// The store uses sync.Map: the key space is fixed once a plan starts (one key
// per node) while values change on every transition, and reads come from
// unrelated goroutines. Stored values are copies, so a reader can never see
// a result map the loop is still building.
package inmemorystore
