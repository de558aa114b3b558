package hcl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowloop/internal/model"
)

// nodeRoot is the variable name that references other nodes.
const nodeRoot = "node"

// workflowFile is the top-level structure of one workflow file.
type workflowFile struct {
	Workflow *workflowBlock `hcl:"workflow,block"`
	Nodes    []*nodeBlock   `hcl:"node,block"`
	Edges    []*edgeBlock   `hcl:"edge,block"`
}

type workflowBlock struct {
	Name        string   `hcl:"name,label"`
	Interval    *float64 `hcl:"interval,optional"`
	Description *string  `hcl:"description,optional"`
}

type nodeBlock struct {
	Type string   `hcl:"type,label"`
	ID   string   `hcl:"id,label"`
	Body hcl.Body `hcl:",remain"`
}

type edgeBlock struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// decodeWorkflowFile decodes one parsed file body into wf.
func decodeWorkflowFile(body hcl.Body, evalCtx *hcl.EvalContext, wf *model.Workflow) error {
	var file workflowFile
	if diags := gohcl.DecodeBody(body, nil, &file); diags.HasErrors() {
		return diags
	}

	if file.Workflow != nil {
		if wf.Name != "" {
			return fmt.Errorf("workflow block declared twice ('%s' and '%s')", wf.Name, file.Workflow.Name)
		}
		wf.Name = file.Workflow.Name
		if file.Workflow.Interval != nil {
			d, err := model.SecondsToDuration(*file.Workflow.Interval)
			if err != nil {
				return fmt.Errorf("workflow '%s': interval: %w", wf.Name, err)
			}
			wf.Interval = d
		}
		if file.Workflow.Description != nil {
			if wf.Metadata == nil {
				wf.Metadata = make(map[string]any)
			}
			wf.Metadata["description"] = *file.Workflow.Description
		}
	}

	for _, nb := range file.Nodes {
		spec, edges, err := translateNode(nb, evalCtx)
		if err != nil {
			return err
		}
		wf.Nodes = append(wf.Nodes, spec)
		wf.Edges = append(wf.Edges, edges...)
	}

	for _, eb := range file.Edges {
		from, fromPort := splitEndpoint(eb.From, model.DefaultOutput)
		to, toPort := splitEndpoint(eb.To, model.DefaultInput)
		if from == "" || to == "" {
			return fmt.Errorf("edge %q -> %q: both endpoints must name a node", eb.From, eb.To)
		}
		wf.Edges = append(wf.Edges, model.EdgeSpec{From: from, FromOutput: fromPort, To: to, ToInput: toPort})
	}
	return nil
}

// translateNode splits a node body into static params and reference edges.
func translateNode(nb *nodeBlock, evalCtx *hcl.EvalContext) (model.NodeSpec, []model.EdgeSpec, error) {
	spec := model.NodeSpec{ID: nb.ID, Type: nb.Type}

	attrs, diags := nb.Body.JustAttributes()
	if diags.HasErrors() {
		return spec, nil, fmt.Errorf("node '%s': %w", nb.ID, diags)
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	slices.Sort(names)

	var edges []model.EdgeSpec
	for _, name := range names {
		attr := attrs[name]
		if referencesNode(attr.Expr) {
			from, output, err := nodeReference(attr.Expr)
			if err != nil {
				return spec, nil, fmt.Errorf("node '%s', attribute '%s': %w", nb.ID, name, err)
			}
			edges = append(edges, model.EdgeSpec{From: from, FromOutput: output, To: nb.ID, ToInput: name})
			continue
		}

		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return spec, nil, fmt.Errorf("node '%s', attribute '%s': %w", nb.ID, name, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return spec, nil, fmt.Errorf("node '%s', attribute '%s': %w", nb.ID, name, err)
		}
		if spec.Params == nil {
			spec.Params = make(map[string]any)
		}
		spec.Params[name] = native
	}
	return spec, edges, nil
}

func referencesNode(expr hcl.Expression) bool {
	for _, tr := range expr.Variables() {
		if tr.RootName() == nodeRoot {
			return true
		}
	}
	return false
}

// nodeReference parses node.<id> or node.<id>.<output>.
func nodeReference(expr hcl.Expression) (string, string, error) {
	tr, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() {
		return "", "", fmt.Errorf("a node reference must be a plain node.<id>.<output> traversal")
	}

	var parts []string
	for _, step := range tr[1:] {
		switch s := step.(type) {
		case hcl.TraverseAttr:
			parts = append(parts, s.Name)
		case hcl.TraverseIndex:
			if !s.Key.Type().Equals(cty.String) {
				return "", "", fmt.Errorf("node reference index must be a string")
			}
			parts = append(parts, s.Key.AsString())
		default:
			return "", "", fmt.Errorf("unsupported node reference step %T", step)
		}
	}

	switch len(parts) {
	case 1:
		return parts[0], model.DefaultOutput, nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("node reference must be node.<id> or node.<id>.<output>")
	}
}

// splitEndpoint splits "id.port"; a bare id gets the default port.
func splitEndpoint(s, defaultPort string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, defaultPort
}
