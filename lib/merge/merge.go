// Package merge applies partial JSON-shaped patches onto documents.
package merge

// Merge returns dst with patch applied: nested objects merge key by key,
// anything else in patch (arrays, scalars, null) replaces the value in dst.
// Neither argument is modified.
func Merge(dst, patch map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(patch))
	for k, v := range dst {
		out[k] = clone(v)
	}
	for k, pv := range patch {
		pm, patchIsObject := pv.(map[string]any)
		dm, dstIsObject := out[k].(map[string]any)
		if patchIsObject && dstIsObject {
			out[k] = Merge(dm, pm)
			continue
		}
		out[k] = clone(pv)
	}
	return out
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Merge(t, nil)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = clone(e)
		}
		return out
	default:
		return v
	}
}
