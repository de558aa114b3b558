// Package node defines the contract every executable node implements: its
// input and output schemas and an Execute operation producing named outputs
// plus an optional opaque side-channel payload.
package node
