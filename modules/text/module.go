// Package text provides nodes that turn loosely structured text into
// something downstream nodes can use: HTML into Markdown and
// almost-JSON into values.
package text

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/kaptinlin/jsonrepair"

	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var (
	markdownIn  = node.Schema{{Name: "html", Type: node.TypeString, Default: ""}}
	markdownOut = node.Schema{{Name: model.DefaultOutput, Type: node.TypeString}}

	jsonIn  = node.Schema{{Name: "text", Type: node.TypeString, Required: true}}
	jsonOut = node.Schema{
		{Name: model.DefaultOutput, Type: node.TypeObject},
		{Name: "repaired", Type: node.TypeBoolean, Default: false},
	}
)

// Register registers the text nodes.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Definition{
		Type:        "html_to_markdown",
		Kind:        registry.KindProcessing,
		DisplayName: "HTML to Markdown",
		Description: "Converts an HTML document or fragment to Markdown",
		Inputs:      markdownIn,
		Outputs:     markdownOut,
		Factory: func(model.NodeSpec) (node.Node, error) {
			return &node.Func{In: markdownIn, Out: markdownOut, Fn: HTMLToMarkdown}, nil
		},
	})
	r.Register(registry.Definition{
		Type:        "json_parse",
		Kind:        registry.KindProcessing,
		DisplayName: "JSON Parse",
		Description: "Parses JSON text, repairing common defects such as trailing commas or single quotes",
		Inputs:      jsonIn,
		Outputs:     jsonOut,
		Factory: func(model.NodeSpec) (node.Node, error) {
			return &node.Func{In: jsonIn, Out: jsonOut, Fn: ParseJSON}, nil
		},
	})
}

// HTMLToMarkdown is the body of the html_to_markdown node.
func HTMLToMarkdown(_ context.Context, in node.Inputs) (node.Output, error) {
	md, err := htmltomarkdown.ConvertString(in.String("html"))
	if err != nil {
		return node.Output{}, fmt.Errorf("failed to convert HTML: %w", err)
	}
	return node.Single(strings.TrimSpace(md)), nil
}

// ParseJSON is the body of the json_parse node. Input that is not valid JSON
// is repaired and parsed again; the repaired output reports whether that
// happened.
func ParseJSON(ctx context.Context, in node.Inputs) (node.Output, error) {
	raw := in.String("text")

	var v any
	err := json.Unmarshal([]byte(raw), &v)
	if err == nil {
		return node.Output{Values: map[string]any{model.DefaultOutput: v, "repaired": false}}, nil
	}

	fixed, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return node.Output{}, fmt.Errorf("invalid JSON and repair failed: unmarshal error: %w, repair error: %v", err, repairErr)
	}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return node.Output{}, fmt.Errorf("failed to parse repaired JSON: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Repaired malformed JSON input.", "original", raw, "repaired", fixed)
	return node.Output{Values: map[string]any{model.DefaultOutput: v, "repaired": true}}, nil
}
