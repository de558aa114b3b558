// Package app wires a flowloop process together: it builds the logger and
// node catalog, loads the workflow, and either runs a single cycle or serves
// the engine over HTTP, WebSocket and NATS until cancelled.
package app
