package socketio

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
)

func TestNewValidatesParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"missing url", nil, "parameter 'url' is required"},
		{"no host", map[string]any{"url": "/socket.io"}, "needs a scheme and host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(model.NodeSpec{ID: "s", Params: tt.params})
			assert.ErrorContains(t, err, tt.want)
		})
	}

	n, err := New(model.NodeSpec{ID: "s", Params: map[string]any{"url": "http://localhost:3000/socket.io/", "namespace": "/robots"}})
	require.NoError(t, err)
	c := n.(*Client)
	assert.Equal(t, "/robots", c.namespace)
	assert.Equal(t, []string{"data", "event"}, c.Inputs().Names())

	_, ok := n.(io.Closer)
	assert.True(t, ok, "the plan closes the connection")
	assert.NoError(t, c.Close(), "closing before connecting is a no-op")
}

func TestExecuteFailsWithoutServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	n, err := New(model.NodeSpec{ID: "s", Params: map[string]any{"url": "http://" + addr}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.(io.Closer).Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = n.Execute(ctx, node.Inputs{"data": 1})
	assert.Error(t, err)
}
