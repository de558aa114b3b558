// Package event defines the observer wire protocol: the {type, timestamp,
// data} envelope, the outbound event payloads produced by the engine and the
// inbound control messages accepted from observers.
package event
