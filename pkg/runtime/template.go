package runtime

import (
	"encoding/json"
	"regexp"
	"strings"
)

var templateVarPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+(?:\.[a-zA-Z0-9_]+)*)\}\}`)

// ResolveArgs recursively walks args (string, []any, map[string]any, or any
// other leaf value) and substitutes every {{a.b.c}} template reference
// found in strings with its value from ctx. Non-string leaves pass
// through unchanged (spec.md §4.6).
func ResolveArgs(args any, ctx map[string]any) any {
	switch v := args.(type) {
	case string:
		return resolveString(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = ResolveArgs(val, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = ResolveArgs(val, ctx)
		}
		return out
	default:
		return v
	}
}

func resolveString(s string, ctx map[string]any) string {
	return templateVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := templateVarPattern.FindStringSubmatch(match)[1]
		value, ok := lookupPath(ctx, path)
		if !ok {
			return ""
		}
		switch v := value.(type) {
		case string:
			return v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return ""
			}
			return string(b)
		}
	})
}

func lookupPath(ctx map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = ctx
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
