package dag

import "sync"

// Graph is a collection of nodes and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by their unique ID.
	nodes map[string]*vertex
}

// vertex represents a single node in the graph. It is un-exported to
// enforce interaction with the graph via the public API (using string IDs).
type vertex struct {
	// id is the unique identifier for the node.
	id string
	// deps holds the set of vertices that this one depends on (producers).
	deps map[string]*vertex
	// dependents holds the set of vertices that depend on this one (consumers).
	dependents map[string]*vertex
}
