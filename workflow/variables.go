package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/flowagent/types"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// ResolveVariables applies declared defaults to the supplied values and
// fails when a required variable has neither. Undeclared supplied values
// are kept.
func ResolveVariables(decls []Variable, supplied map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(decls)+len(supplied))
	for k, v := range supplied {
		out[k] = v
	}

	var missing []string
	for _, d := range decls {
		if _, ok := out[d.Name]; ok {
			continue
		}
		if d.Default != nil {
			out[d.Name] = d.Default
			continue
		}
		if d.Required {
			missing = append(missing, d.Name)
		}
	}
	if len(missing) > 0 {
		return nil, types.Errorf(types.ErrMissingVariable, "missing required variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ResolveConfig substitutes {{key}} placeholders in every string of config,
// recursing into nested maps and lists. A string that is exactly one
// placeholder takes the variable's value with its type; placeholders
// embedded in text are rendered as text. Unknown placeholders are left as is.
func ResolveConfig(config map[string]any, vars map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	out, _ := resolveValue(config, vars).(map[string]any)
	return out
}

func resolveValue(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		return resolveString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = resolveValue(val, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = resolveValue(val, vars)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = resolveString(val, vars)
		}
		return out
	default:
		return v
	}
}

func resolveString(s string, vars map[string]any) any {
	if !strings.Contains(s, "{{") {
		return s
	}
	if m := placeholderRe.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		if val, ok := vars[s[m[2]:m[3]]]; ok {
			return val
		}
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		val, ok := vars[key]
		if !ok {
			return match
		}
		return stringifyValue(val)
	})
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
