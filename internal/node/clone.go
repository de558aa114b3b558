package node

import "slices"

// CloneValues returns a deep copy of m. Nested maps and slices are copied;
// other values are shared.
func CloneValues(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the container types values are built from.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneValues(val)
	case Inputs:
		return Inputs(CloneValues(val))
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []map[string]any:
		if val == nil {
			return val
		}
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = CloneValues(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	case []float64:
		return slices.Clone(val)
	case []int:
		return slices.Clone(val)
	case []byte:
		return slices.Clone(val)
	default:
		return v
	}
}
