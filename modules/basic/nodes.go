package basic

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/node"
)

// ErrDivisionByZero is returned by the math node.
var ErrDivisionByZero = errors.New("division by zero")

// nodeContext is the context handed to node bodies together with the id of
// the node being run.
type nodeContext struct {
	context.Context
	NodeID string
}

func adapt(id string, run runFunc) func(context.Context, node.Inputs) (node.Output, error) {
	return func(ctx context.Context, in node.Inputs) (node.Output, error) {
		v, err := run(nodeContext{Context: ctx, NodeID: id}, in)
		if err != nil {
			return node.Output{}, err
		}
		return node.Single(v), nil
	}
}

var inputSchema = node.Schema{
	{Name: "value", Type: node.TypeString, Default: "", Required: true},
}

func runInput(_ nodeContext, in node.Inputs) (any, error) {
	return in["value"], nil
}

var outputSchema = node.Schema{
	{Name: "input", Type: node.TypeAny},
}

func runOutput(ctx nodeContext, in node.Inputs) (any, error) {
	v := in["input"]
	ctxlog.FromContext(ctx).Info("Output", "node", ctx.NodeID, "value", v)
	return v, nil
}

var identitySchema = node.Schema{
	{Name: "input", Type: node.TypeAny},
}

func runIdentity(_ nodeContext, in node.Inputs) (any, error) {
	return in["input"], nil
}

var textSchema = node.Schema{
	{Name: "text", Type: node.TypeString, Default: "", Description: "Text to transform"},
	{Name: "operation", Type: node.TypeString, Default: "uppercase", Description: "uppercase, lowercase, title, reverse or length"},
}

func runTextProcessor(_ nodeContext, in node.Inputs) (any, error) {
	text := in.String("text")
	switch op := in.String("operation"); op {
	case "uppercase":
		return cases.Upper(language.Und).String(text), nil
	case "lowercase":
		return cases.Lower(language.Und).String(text), nil
	case "title":
		return cases.Title(language.Und).String(text), nil
	case "reverse":
		runes := []rune(text)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes), nil
	case "length":
		return strconv.Itoa(utf8.RuneCountInString(text)), nil
	default:
		// Unknown operations pass the text through.
		return text, nil
	}
}

var delaySchema = node.Schema{
	{Name: "input", Type: node.TypeAny},
	{Name: "delay_seconds", Type: node.TypeFloat, Default: 1.0},
}

func runDelay(ctx nodeContext, in node.Inputs) (any, error) {
	secs, err := in.Float("delay_seconds")
	if err != nil {
		return nil, err
	}
	if secs < 0 {
		return nil, fmt.Errorf("delay_seconds must not be negative, got %v", secs)
	}

	timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
		return in["input"], nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var randomSchema = node.Schema{
	{Name: "min_value", Type: node.TypeInt, Default: 0},
	{Name: "max_value", Type: node.TypeInt, Default: 100},
}

func runRandomNumber(_ nodeContext, in node.Inputs) (any, error) {
	lo, err := in.Int("min_value")
	if err != nil {
		return nil, err
	}
	hi, err := in.Int("max_value")
	if err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, fmt.Errorf("min_value %d is greater than max_value %d", lo, hi)
	}
	return lo + rand.IntN(hi-lo+1), nil
}

var mathSchema = node.Schema{
	{Name: "a", Type: node.TypeFloat, Default: 0.0},
	{Name: "b", Type: node.TypeFloat, Default: 0.0},
	{Name: "operation", Type: node.TypeString, Default: "add", Description: "add, subtract, multiply or divide"},
}

func runMath(_ nodeContext, in node.Inputs) (any, error) {
	a, err := in.Float("a")
	if err != nil {
		return nil, err
	}
	b, err := in.Float("b")
	if err != nil {
		return nil, err
	}
	switch op := in.String("operation"); op {
	case "add":
		return a + b, nil
	case "subtract":
		return a - b, nil
	case "multiply":
		return a * b, nil
	case "divide":
		if b == 0 {
			return nil, ErrDivisionByZero
		}
		return a / b, nil
	default:
		return nil, fmt.Errorf("unknown operation: %s", op)
	}
}
