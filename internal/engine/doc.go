// Package engine is the session layer of the application. It owns the node
// registry, the override store, the broadcast hub and the execution loop,
// and exposes the operations the transports (HTTP, WebSocket, NATS, CLI)
// call: compile and start a workflow, stop it, run it once, update an input
// and report status.
package engine
