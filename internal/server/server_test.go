package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowloop/internal/broadcast"
	"github.com/vk/flowloop/internal/engine"
	"github.com/vk/flowloop/internal/event"
	"github.com/vk/flowloop/internal/executor"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/overrides"
	"github.com/vk/flowloop/internal/registry"
	"github.com/vk/flowloop/internal/testutil"
)

const doublerDoc = `{
	"metadata": {"name": "doubler"},
	"sleep_time": 0.01,
	"nodes": [{"id": "n", "type": "double", "data": {"parameters": {"x": 3}}}],
	"edges": []
}`

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	return newTestServerWith(t, 1024, Options{PongWait: 2 * time.Second, WriteWait: time.Second})
}

func newTestServerWith(t *testing.T, queueSize int, opts Options) (*httptest.Server, *engine.Engine) {
	t.Helper()
	ctx, _ := testutil.LogContext(t)
	reg := registry.New()
	reg.RegisterModules(testutil.NewRecordingModule())
	store := overrides.New()
	hub := broadcast.New(ctx, queueSize)
	exec := executor.New(hub, store, executor.Options{Interval: 10 * time.Millisecond})
	eng := engine.New(ctx, reg, store, hub, exec)

	srv := New(ctx, eng, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		eng.Close()
		ts.Close()
	})
	return ts, eng
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthAndCatalog(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("list node types", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/nodes")
		require.NoError(t, err)
		var body struct {
			Nodes []struct {
				Type string `json:"type"`
			} `json:"nodes"`
			Count int `json:"count"`
		}
		decode(t, resp, &body)
		assert.Equal(t, len(body.Nodes), body.Count)
		assert.Positive(t, body.Count)
	})

	t.Run("unknown node type", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/nodes/nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRunOnce(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("success", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/run", "application/json", strings.NewReader(doublerDoc))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body runResponse
		decode(t, resp, &body)
		assert.True(t, body.Success)
		assert.Equal(t, 6.0, body.Results["n"]["output"])
	})

	t.Run("malformed document", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/run", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown node type", func(t *testing.T) {
		doc := `{"nodes": [{"id": "a", "type": "nope"}]}`
		resp, err := http.Post(ts.URL+"/run", "application/json", strings.NewReader(doc))
		require.NoError(t, err)
		var body errorResponse
		decode(t, resp, &body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, body.Detail, "nope")
	})
}

func TestContinuousLifecycle(t *testing.T) {
	ts, eng := newTestServer(t)

	resp, err := http.Post(ts.URL+"/continuous/start", "application/json", strings.NewReader(doublerDoc))
	require.NoError(t, err)
	var started actionResponse
	decode(t, resp, &started)
	require.True(t, started.Success)

	resp, err = http.Post(ts.URL+"/run", "application/json", strings.NewReader(doublerDoc))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "run is rejected while continuous")

	resp, err = http.Post(ts.URL+"/continuous/start", "application/json", strings.NewReader(doublerDoc))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.Eventually(t, func() bool { return eng.Status().ExecutionCount >= 2 }, 3*time.Second, 5*time.Millisecond)

	resp, err = http.Get(ts.URL + "/continuous/status")
	require.NoError(t, err)
	var status struct {
		IsRunning      bool  `json:"is_running"`
		ExecutionCount int64 `json:"execution_count"`
	}
	decode(t, resp, &status)
	assert.True(t, status.IsRunning)
	assert.GreaterOrEqual(t, status.ExecutionCount, int64(2))

	resp, err = http.Post(ts.URL+"/continuous/stop", "application/json", nil)
	require.NoError(t, err)
	var stopped actionResponse
	decode(t, resp, &stopped)
	assert.Equal(t, "Continuous execution stopped", stopped.Message)
	assert.False(t, eng.Status().IsRunning)

	resp, err = http.Post(ts.URL+"/stop", "application/json", nil)
	require.NoError(t, err)
	decode(t, resp, &stopped)
	assert.Equal(t, "No continuous execution was running", stopped.Message)
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// next reads frames until one of the given type arrives.
func next(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ {
			return f
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	ts, eng := newTestServer(t)
	conn := dial(t, ts)

	t.Run("status on connect", func(t *testing.T) {
		f := next(t, conn, "execution_status")
		assert.Contains(t, string(f.Data), `"is_running":false`)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 42}))
		f := next(t, conn, "pong")
		assert.JSONEq(t, `{"client_timestamp": 42}`, string(f.Data))
	})

	t.Run("invalid frame", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		f := next(t, conn, "error")
		assert.JSONEq(t, `{"message": "Invalid JSON format"}`, string(f.Data))
	})

	t.Run("unknown type", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "teleport"}))
		f := next(t, conn, "error")
		assert.JSONEq(t, `{"message": "Unknown message type: teleport"}`, string(f.Data))
	})

	t.Run("input update", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"type": "input_update",
			"data": map[string]any{"node_id": "n", "input_name": "x", "input_value": 4},
		}))
		f := next(t, conn, "input_update_response")
		var resp struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(f.Data, &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "Parameter updated successfully", resp.Message)

		v, ok := eng.Overrides().View().Lookup("n", "x")
		require.True(t, ok)
		assert.EqualValues(t, 4, v)
	})

	t.Run("missing fields", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "input_update", "data": map[string]any{"node_id": "n"}}))
		f := next(t, conn, "error")
		assert.Contains(t, string(f.Data), "Missing required fields")
	})

	t.Run("subscribe filters broadcast", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "events": []string{"workflow_event"}}))
		next(t, conn, "subscription_confirmed")

		require.NoError(t, eng.StartContinuous(mustWorkflow(t)))
		f := next(t, conn, "workflow_event")
		assert.Contains(t, string(f.Data), "continuous_started")
		eng.StopContinuous()

		f = next(t, conn, "workflow_event")
		assert.Contains(t, string(f.Data), "continuous_stopped")
	})
}

func TestClearOverrides(t *testing.T) {
	ts, eng := newTestServer(t)
	require.NoError(t, eng.UpdateInput("a", "x", 1))
	require.NoError(t, eng.UpdateInput("b", "x", 2))

	del := func(path string) actionResponse {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body actionResponse
		decode(t, resp, &body)
		return body
	}

	assert.Equal(t, "Overrides of node 'a' cleared", del("/overrides/a").Message)
	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	var status struct {
		Overrides []struct {
			NodeID string `json:"node_id"`
		} `json:"overrides"`
		Broadcast struct {
			Published int64 `json:"published"`
		} `json:"broadcast"`
	}
	decode(t, resp, &status)
	require.Len(t, status.Overrides, 1)
	assert.Equal(t, "b", status.Overrides[0].NodeID)
	assert.Equal(t, int64(2), status.Broadcast.Published)

	assert.Equal(t, "All overrides cleared", del("/overrides").Message)
	assert.Zero(t, eng.Overrides().Len())
}

func TestSlowObserverIsEvicted(t *testing.T) {
	ts, eng := newTestServerWith(t, 64, Options{PongWait: 30 * time.Second, WriteWait: 10 * time.Second})
	hub := eng.Hub()

	stalled := dial(t, ts)
	reader := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, time.Millisecond)

	var flooded, updates atomic.Int64
	go func() {
		for {
			var f frame
			if err := reader.ReadJSON(&f); err != nil {
				return
			}
			switch {
			case f.Type == "workflow_event" && strings.Contains(string(f.Data), `"flood"`):
				flooded.Add(1)
			case f.Type == "continuous_update":
				updates.Add(1)
			}
		}
	}()

	// Large frames fill the socket buffers of the connection nobody reads,
	// then its queue. The reading connection is kept in step.
	blob := strings.Repeat("x", 128<<10)
	for i := int64(1); i <= 400; i++ {
		if _, evicted := hub.Stats(); evicted > 0 {
			break
		}
		hub.Publish(event.New(event.TypeWorkflowEvent, map[string]any{"event": "flood", "blob": blob}))
		require.Eventually(t, func() bool { return flooded.Load() >= i }, 5*time.Second, time.Millisecond)
	}
	_, evicted := hub.Stats()
	require.Equal(t, int64(1), evicted)
	assert.Equal(t, 1, hub.Count())

	require.NoError(t, stalled.SetReadDeadline(time.Now().Add(10*time.Second)))
	var err error
	for err == nil {
		_, _, err = stalled.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	require.NoError(t, eng.StartContinuous(mustWorkflow(t)))
	require.Eventually(t, func() bool { return updates.Load() >= 4 }, 3*time.Second, time.Millisecond)
	eng.StopContinuous()
	assert.Equal(t, 1, hub.Count())
}

func mustWorkflow(t *testing.T) *model.Workflow {
	t.Helper()
	wf, err := model.ParseDocument([]byte(doublerDoc))
	require.NoError(t, err)
	return wf
}
