// Package dag is the compile layer of the engine. It takes a model.Workflow,
// validates it against the node registry, builds a directed acyclic graph of
// the nodes and produces an immutable Plan: node instances created exactly
// once, a deterministic topological order and input bindings resolved to
// plan indices so the execution loop never walks the graph.
package dag
