// Package server exposes an engine over HTTP: REST endpoints to inspect the
// node catalog, run workflows and read status, and a WebSocket endpoint
// through which observers receive execution events and send control
// messages.
//
// Every WebSocket connection is a broadcast observer. Its writer goroutine is
// the only one that writes to the socket; replies to a connection's own
// requests are queued through the hub like any other event, so they keep
// FIFO order with broadcasts.
package server
