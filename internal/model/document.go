package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrEmptyWorkflow is returned when a document declares no nodes.
var ErrEmptyWorkflow = errors.New("workflow has no nodes")

// Document is the workflow format produced by the graphical editor.
type Document struct {
	Nodes    []DocumentNode `json:"nodes"`
	Edges    []DocumentEdge `json:"edges"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// SleepTime is the pause between continuous cycles, in seconds.
	SleepTime *float64 `json:"sleep_time,omitempty"`
}

// DocumentNode is a node as the editor stores it. The node type may live at
// the top level, under data.type or under data.nodeInfo.name.
type DocumentNode struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Data struct {
		Type       string         `json:"type,omitempty"`
		Parameters map[string]any `json:"parameters,omitempty"`
		NodeInfo   struct {
			Name string `json:"name,omitempty"`
		} `json:"nodeInfo"`
	} `json:"data"`
}

// NodeType resolves the node type using the editor's lookup order.
func (n DocumentNode) NodeType() string {
	switch {
	case n.Type != "":
		return n.Type
	case n.Data.Type != "":
		return n.Data.Type
	default:
		return n.Data.NodeInfo.Name
	}
}

// DocumentEdge is an edge as the editor stores it. Handles default to
// "output" and "input".
type DocumentEdge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// ParseDocument decodes an editor document and converts it to a Workflow.
func ParseDocument(data []byte) (*Workflow, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode workflow document: %w", err)
	}
	return doc.Workflow()
}

// Workflow converts the document into the format-agnostic model.
func (d *Document) Workflow() (*Workflow, error) {
	if len(d.Nodes) == 0 {
		return nil, ErrEmptyWorkflow
	}

	wf := &Workflow{
		Nodes:    make([]NodeSpec, 0, len(d.Nodes)),
		Edges:    make([]EdgeSpec, 0, len(d.Edges)),
		Metadata: d.Metadata,
	}
	if name, ok := d.Metadata["name"].(string); ok {
		wf.Name = name
	}

	for i, n := range d.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node at index %d has no id", i)
		}
		typ := n.NodeType()
		if typ == "" {
			return nil, fmt.Errorf("node '%s' has no type", n.ID)
		}
		wf.Nodes = append(wf.Nodes, NodeSpec{ID: n.ID, Type: typ, Params: n.Data.Parameters})
	}

	for i, e := range d.Edges {
		if e.Source == "" || e.Target == "" {
			return nil, fmt.Errorf("edge at index %d is missing source or target", i)
		}
		wf.Edges = append(wf.Edges, EdgeSpec{
			From:       e.Source,
			FromOutput: e.SourceHandle,
			To:         e.Target,
			ToInput:    e.TargetHandle,
		}.Normalized())
	}

	if d.SleepTime != nil {
		interval, err := SecondsToDuration(*d.SleepTime)
		if err != nil {
			return nil, err
		}
		wf.Interval = interval
	}

	return wf, nil
}

// SecondsToDuration converts a positive number of seconds to a Duration.
func SecondsToDuration(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, fmt.Errorf("interval must be a positive number of seconds, got %v", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
