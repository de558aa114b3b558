package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
)

// Client is the socketio_emit node. It owns one Socket.IO connection.
type Client struct {
	id        string
	url       *url.URL
	namespace string
	insecure  bool

	mu sync.Mutex
	io *socket.Socket
}

// Inputs implements node.Node.
func (c *Client) Inputs() node.Schema { return inSchema }

// Outputs implements node.Node.
func (c *Client) Outputs() node.Schema { return outSchema }

// Execute emits the data input, connecting first when needed.
func (c *Client) Execute(ctx context.Context, in node.Inputs) (node.Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	io, err := c.connect(ctx)
	if err != nil {
		return node.Output{}, err
	}

	event := in.String("event")
	if event == "" {
		event = "update"
	}
	data := in["data"]
	if err := io.Emit(event, data); err != nil {
		return node.Output{}, fmt.Errorf("failed to emit '%s': %w", event, err)
	}
	ctxlog.FromContext(ctx).Debug("Emitted event.", "event", event, "sid", fmt.Sprint(io.Id()))

	return node.Output{Values: map[string]any{
		model.DefaultOutput: data,
		"sid":               fmt.Sprint(io.Id()),
	}}, nil
}

// connect returns the live socket, dialing and waiting for the handshake
// when there is none.
func (c *Client) connect(ctx context.Context) (*socket.Socket, error) {
	if c.io != nil && c.io.Connected() {
		return c.io, nil
	}
	if c.io != nil {
		c.io.Disconnect()
		c.io = nil
	}

	logger := ctxlog.FromContext(ctx).With("url", c.url.String(), "namespace", c.namespace)
	opts := socket.DefaultOptions()
	if c.url.Path != "" && c.url.Path != "/" {
		opts.SetPath(c.url.Path)
	}
	if c.insecure {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", c.url.Scheme, c.url.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(c.namespace, opts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		select {
		case connected <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	}

	logger.Info("Socket.IO client connected.", "sid", fmt.Sprint(io.Id()))
	c.io = io
	return io, nil
}

// Close disconnects the socket. It is called when the plan is discarded.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.io != nil {
		c.io.Disconnect()
		c.io = nil
	}
	return nil
}
