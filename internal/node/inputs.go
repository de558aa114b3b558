package node

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// Inputs holds the merged input values for one execution.
type Inputs map[string]any

// Has reports whether a value, even nil, is present for the input.
func (in Inputs) Has(name string) bool {
	_, ok := in[name]
	return ok
}

// Clone returns a shallow copy.
func (in Inputs) Clone() Inputs {
	return maps.Clone(in)
}

// String returns the input rendered as a string. Non-string values are
// formatted; nil yields the empty string.
func (in Inputs) String(name string) string {
	switch v := in[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the input as a float64.
func (in Inputs) Float(name string) (float64, error) {
	switch v := in[name].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("input '%s': %q is not a number", name, v)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("input '%s' is not set", name)
	default:
		return 0, fmt.Errorf("input '%s': unsupported numeric type %T", name, v)
	}
}

// Int returns the input as an int, truncating floats.
func (in Inputs) Int(name string) (int, error) {
	if s, ok := in[name].(string); ok {
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
	}
	f, err := in.Float(name)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Bool returns the input as a bool.
func (in Inputs) Bool(name string) (bool, error) {
	switch v := in[name].(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("input '%s': %q is not a boolean", name, v)
		}
		return b, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("input '%s': unsupported boolean type %T", name, v)
	}
}
