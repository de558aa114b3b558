package script

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
)

func newScript(t *testing.T, params map[string]any) node.Node {
	t.Helper()
	n, err := New(model.NodeSpec{ID: "s", Type: "script", Params: params})
	require.NoError(t, err)
	return n
}

func TestScriptSingleOutput(t *testing.T) {
	n := newScript(t, map[string]any{
		"code":   "inputs.x * inputs.factor",
		"inputs": []any{"x", "factor"},
	})
	assert.Equal(t, []string{"x", "factor"}, n.Inputs().Names())
	assert.Equal(t, []string{"output"}, n.Outputs().Names())

	out, err := n.Execute(context.Background(), node.Inputs{"x": 4.0, "factor": 2.5})
	require.NoError(t, err)
	assert.EqualValues(t, 10, out.Values["output"])
	assert.Nil(t, out.SideChannel)
}

func TestScriptMultipleOutputsAndSideChannel(t *testing.T) {
	n := newScript(t, map[string]any{
		"code":    `rt = {seen: inputs.input}; ({upper: inputs.input.toUpperCase(), size: inputs.input.length})`,
		"outputs": []any{"upper", "size"},
	})

	out, err := n.Execute(context.Background(), node.Inputs{"input": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "ABC", out.Values["upper"])
	assert.EqualValues(t, 3, out.Values["size"])
	assert.Equal(t, map[string]any{"seen": "abc"}, out.SideChannel)

	// rt is reset on every run.
	n2 := newScript(t, map[string]any{"code": `inputs.input`})
	out, err = n2.Execute(context.Background(), node.Inputs{"input": 1})
	require.NoError(t, err)
	assert.Nil(t, out.SideChannel)
}

func TestScriptCannotMutateCallerInputs(t *testing.T) {
	n := newScript(t, map[string]any{
		"code": `inputs.input.k = 2; inputs.input.added = true; inputs.input.list[0] = "z"; inputs.input.k`,
	})
	in := node.Inputs{"input": map[string]any{"k": 1, "list": []any{"a"}}}

	out, err := n.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.EqualValues(t, 2, out.Values["output"])
	assert.Equal(t, map[string]any{"k": 1, "list": []any{"a"}}, in["input"])
}

func TestScriptErrors(t *testing.T) {
	t.Run("missing code", func(t *testing.T) {
		_, err := New(model.NodeSpec{ID: "s"})
		assert.ErrorContains(t, err, "parameter 'code'")
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := New(model.NodeSpec{ID: "s", Params: map[string]any{"code": "inputs.("}})
		assert.Error(t, err)
	})

	t.Run("bad ports", func(t *testing.T) {
		_, err := New(model.NodeSpec{ID: "s", Params: map[string]any{"code": "1", "inputs": "x"}})
		assert.ErrorContains(t, err, "list of names")
	})

	t.Run("thrown exception", func(t *testing.T) {
		n := newScript(t, map[string]any{"code": `throw new Error("nope")`})
		_, err := n.Execute(context.Background(), node.Inputs{})
		assert.ErrorContains(t, err, "nope")
	})

	t.Run("multiple outputs need an object", func(t *testing.T) {
		n := newScript(t, map[string]any{"code": `42`, "outputs": []any{"a", "b"}})
		_, err := n.Execute(context.Background(), node.Inputs{})
		assert.ErrorContains(t, err, "must return an object")
	})

	t.Run("sandboxed globals", func(t *testing.T) {
		n := newScript(t, map[string]any{"code": `typeof require`})
		out, err := n.Execute(context.Background(), node.Inputs{})
		require.NoError(t, err)
		assert.Equal(t, "undefined", out.Values["output"])
	})
}

func TestScriptIsInterruptedByContext(t *testing.T) {
	n := newScript(t, map[string]any{"code": `while (true) {}`})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := n.Execute(ctx, node.Inputs{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The runtime is usable again afterwards.
	n2 := n.(*Node)
	n2.program = mustCompile(t, "1 + 1")
	out, err := n.Execute(context.Background(), node.Inputs{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, out.Values["output"])
}

func mustCompile(t *testing.T, src string) *goja.Program {
	t.Helper()
	p, err := goja.Compile("test", src, false)
	require.NoError(t, err)
	return p
}
