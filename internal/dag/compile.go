package dag

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
)

// Resolver looks up node definitions by type name.
type Resolver interface {
	Resolve(typeName string) (*registry.Definition, error)
}

// indexedOutputPrefix addresses an output by position, e.g. "output-1".
const indexedOutputPrefix = "output-"

// Compile validates a workflow and builds an execution plan. Every node is
// instantiated exactly once. On any error the instances created so far are
// closed and no plan is returned. The returned plan must be closed by its
// owner.
func Compile(ctx context.Context, wf *model.Workflow, reg Resolver) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	if wf == nil || len(wf.Nodes) == 0 {
		return nil, &CompileError{Kind: KindEmpty, Msg: "workflow has no nodes"}
	}

	specs := make(map[string]model.NodeSpec, len(wf.Nodes))
	defs := make(map[string]*registry.Definition, len(wf.Nodes))
	g := New()
	for _, spec := range wf.Nodes {
		if strings.TrimSpace(spec.ID) == "" {
			return nil, &CompileError{Kind: KindDuplicateNode, Msg: "node id must not be empty"}
		}
		if _, dup := specs[spec.ID]; dup {
			return nil, &CompileError{Kind: KindDuplicateNode, NodeID: spec.ID, Msg: "node id declared more than once"}
		}
		def, err := reg.Resolve(spec.Type)
		if err != nil {
			return nil, &CompileError{Kind: KindUnknownType, NodeID: spec.ID, Err: err}
		}
		specs[spec.ID] = spec
		defs[spec.ID] = def
		g.AddNode(spec.ID)
	}

	edges := make([]model.EdgeSpec, len(wf.Edges))
	for i, e := range wf.Edges {
		e = e.Normalized()
		if err := g.AddEdge(e.From, e.To); err != nil {
			return nil, &CompileError{Kind: KindBadEdge, Msg: e.String(), Err: err}
		}
		edges[i] = e
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		var cyc *CyclicGraphError
		if errors.As(err, &cyc) && len(cyc.Nodes) > 0 {
			return nil, &CompileError{Kind: KindCycle, NodeID: cyc.Nodes[0], Err: err}
		}
		return nil, &CompileError{Kind: KindCycle, Err: err}
	}

	plan := &Plan{
		name:     wf.Name,
		interval: wf.Interval,
		entries:  make([]PlanEntry, 0, len(order)),
		index:    make(map[string]int, len(order)),
		upstream: make([][]int, len(order)),
	}

	created := make([]node.Node, 0, len(order))
	abort := func(cerr *CompileError) (*Plan, error) {
		if err := closeNodes(created, func(i int) string { return order[i] }); err != nil {
			logger.Warn("Failed to release node instances after compile error.", "error", err)
		}
		return nil, cerr
	}

	for i, id := range order {
		spec, def := specs[id], defs[id]
		inst, err := instantiate(def, spec)
		if err != nil {
			return abort(&CompileError{Kind: KindInstantiate, NodeID: id, Err: err})
		}
		created = append(created, inst)
		plan.index[id] = i
		plan.entries = append(plan.entries, PlanEntry{
			NodeID:  id,
			Type:    def.Type,
			Kind:    def.Kind,
			Node:    inst,
			Params:  maps.Clone(spec.Params),
			Inputs:  inst.Inputs(),
			Outputs: inst.Outputs(),
			bound:   make(map[string]int),
		})
	}

	for _, e := range edges {
		if cerr := plan.bind(e); cerr != nil {
			return abort(cerr)
		}
	}

	logger.Debug("Compiled workflow plan.", "workflow", wf.Name, "nodes", len(order), "edges", len(edges), "order", order)
	return plan, nil
}

// instantiate calls the factory, converting panics and nil instances into errors.
func instantiate(def *registry.Definition, spec model.NodeSpec) (n node.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory for '%s' panicked: %v", def.Type, r)
		}
	}()
	n, err = def.Factory(spec)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("factory for '%s' returned no instance", def.Type)
	}
	return n, nil
}

// bind resolves an edge's ports against the instance schemas and records the
// binding on the consumer.
func (p *Plan) bind(e model.EdgeSpec) *CompileError {
	from := p.index[e.From]
	to := p.index[e.To]
	producer, consumer := &p.entries[from], &p.entries[to]

	output, ok := resolvePort(producer.Outputs, e.FromOutput, model.DefaultOutput, true)
	if !ok {
		return &CompileError{Kind: KindBadEdge, NodeID: e.From, Msg: fmt.Sprintf("%s: unknown output '%s'", e, e.FromOutput)}
	}
	input, ok := resolvePort(consumer.Inputs, e.ToInput, model.DefaultInput, false)
	if !ok {
		return &CompileError{Kind: KindBadEdge, NodeID: e.To, Msg: fmt.Sprintf("%s: unknown input '%s'", e, e.ToInput)}
	}
	if consumer.IsBound(input.Name) {
		return &CompileError{Kind: KindBadEdge, NodeID: e.To, Msg: fmt.Sprintf("%s: input '%s' is already bound", e, input.Name)}
	}

	consumer.bound[input.Name] = len(consumer.Bindings)
	consumer.Bindings = append(consumer.Bindings, InputBinding{
		Input:      input.Name,
		Producer:   from,
		ProducerID: producer.NodeID,
		Output:     output.Name,
		Fallback:   output.Default,
	})
	p.upstream[to] = appendUnique(p.upstream[to], from)
	return nil
}

// resolvePort finds a declared port by name. The default port name also
// matches a schema with exactly one port; outputs may be addressed by
// position as "output-N".
func resolvePort(schema node.Schema, name, defaultName string, indexed bool) (node.Port, bool) {
	if port, ok := schema.Lookup(name); ok {
		return port, true
	}
	if name == defaultName && len(schema) == 1 {
		return schema[0], true
	}
	if indexed && strings.HasPrefix(name, indexedOutputPrefix) {
		i, err := strconv.Atoi(strings.TrimPrefix(name, indexedOutputPrefix))
		if err == nil && i >= 0 && i < len(schema) {
			return schema[i], true
		}
	}
	return node.Port{}, false
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
