// Package model defines the format-agnostic description of a workflow: the
// nodes, the edges between their ports and the pacing of continuous runs.
//
// Loaders (HCL files, the editor's JSON documents) translate their input into
// these types; the graph compiler consumes them. Nothing in this package
// knows how a node executes.
package model
