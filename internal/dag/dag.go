package dag

import (
	"fmt"
	"maps"
	"slices"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*vertex),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	g.nodes[id] = &vertex{
		id:         id,
		deps:       make(map[string]*vertex),
		dependents: make(map[string]*vertex),
	}
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
// Adding the same edge twice is a no-op.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// TopologicalOrder returns every node ID ordered so that each node comes
// after all of its dependencies (Kahn's algorithm). When several nodes are
// ready at once the smallest ID goes first, so the order is reproducible.
// A graph containing a cycle yields a *CyclicGraphError.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	var ready []string
	for id, n := range g.nodes {
		inDegree[id] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for depID := range g.nodes[id].dependents {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				pos, _ := slices.BinarySearch(ready, depID)
				ready = slices.Insert(ready, pos, depID)
			}
		}
	}

	if len(order) == len(g.nodes) {
		return order, nil
	}

	var unresolved []string
	for id, degree := range inDegree {
		if degree > 0 {
			unresolved = append(unresolved, id)
		}
	}
	slices.Sort(unresolved)
	return nil, &CyclicGraphError{Nodes: unresolved, Cycle: g.findCycle()}
}

// findCycle runs a depth-first search in ID order and returns the first cycle
// found as a path whose last element repeats the first, or nil. The caller
// must hold the mutex.
func (g *Graph) findCycle() []string {
	// permanent: fully visited, not part of a cycle.
	// stack: nodes on the current traversal path, in order.
	permanent := make(map[string]bool)
	onStack := make(map[string]int)
	var stack []string

	var visit func(n *vertex) []string
	visit = func(n *vertex) []string {
		if permanent[n.id] {
			return nil
		}
		if pos, ok := onStack[n.id]; ok {
			cycle := slices.Clone(stack[pos:])
			return append(cycle, n.id)
		}

		onStack[n.id] = len(stack)
		stack = append(stack, n.id)

		for _, depID := range slices.Sorted(maps.Keys(n.dependents)) {
			if cycle := visit(n.dependents[depID]); cycle != nil {
				return cycle
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		if cycle := visit(g.nodes[id]); cycle != nil {
			return cycle
		}
	}
	return nil
}
