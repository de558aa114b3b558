// Package socketio provides the socketio_emit node, which relays its input to
// a remote Socket.IO server on every execution over a connection that lives
// as long as the compiled plan.
package socketio

import (
	"fmt"
	"net/url"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var (
	inSchema = node.Schema{
		{Name: "data", Type: node.TypeAny, Description: "Payload to emit"},
		{Name: "event", Type: node.TypeString, Default: "update", Description: "Event name"},
	}
	outSchema = node.Schema{
		{Name: model.DefaultOutput, Type: node.TypeAny, Description: "The emitted payload"},
		{Name: "sid", Type: node.TypeString, Default: ""},
	}
)

// Register registers the socketio_emit node.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Definition{
		Type:        "socketio_emit",
		Kind:        registry.KindOutput,
		DisplayName: "Socket.IO Emit",
		Description: "Emits its input as a Socket.IO event; parameters: url, namespace, insecure_skip_verify",
		Inputs:      inSchema,
		Outputs:     outSchema,
		Factory:     New,
	})
}

// New validates the connection parameters. The connection itself is opened
// on first execution.
func New(spec model.NodeSpec) (node.Node, error) {
	rawURL, _ := spec.Param("url")
	s, ok := rawURL.(string)
	if !ok || s == "" {
		return nil, fmt.Errorf("socketio_emit node '%s': parameter 'url' is required", spec.ID)
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("socketio_emit node '%s': failed to parse URL: %w", spec.ID, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("socketio_emit node '%s': URL %q needs a scheme and host", spec.ID, s)
	}

	c := &Client{id: spec.ID, url: parsed}
	if ns, ok := spec.Params["namespace"].(string); ok && ns != "" {
		c.namespace = ns
	} else {
		c.namespace = "/"
	}
	if skip, ok := spec.Params["insecure_skip_verify"].(bool); ok {
		c.insecure = skip
	}
	return c, nil
}
