package analysis

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Accessor reads one candidate location for a canonical field. It reports
// false when the location is absent or holds an empty value.
type Accessor[T any] func(Envelope) (T, bool)

// First applies the accessors to each envelope layer in order and returns
// the first non-empty candidate.
func First[T any](layers []Envelope, sources []Accessor[T]) (T, bool) {
	for _, env := range layers {
		if env == nil {
			continue
		}
		for _, src := range sources {
			if v, ok := src(env); ok {
				return v, true
			}
		}
	}
	var zero T
	return zero, false
}

func at[T any](conv func(any) (T, bool), path ...string) Accessor[T] {
	return func(e Envelope) (T, bool) {
		v, ok := e.Lookup(path...)
		if !ok {
			var zero T
			return zero, false
		}
		return conv(v)
	}
}

func StringAt(path ...string) Accessor[string] { return at(asString, path...) }
func Int64At(path ...string) Accessor[int64] { return at(asInt64, path...) }
func FloatAt(path ...string) Accessor[float64] { return at(asFloat, path...) }
func FloatsAt(path ...string) Accessor[[]float64] { return at(asFloats, path...) }
func MatrixAt(path ...string) Accessor[[][]float64] { return at(asMatrix, path...) }
func StringsAt(path ...string) Accessor[[]string] { return at(asStrings, path...) }
func MapAt(path ...string) Accessor[map[string]any] { return at(asNonEmptyObject, path...) }

// LinesAt accepts either a list of strings or one multi-line string.
func LinesAt(path ...string) Accessor[[]string] { return at(asLines, path...) }

// KeysAt returns the sorted keys of an object, used to recover feature
// names from loadings keyed by variable.
func KeysAt(path ...string) Accessor[[]string] {
	return at(func(v any) ([]string, bool) {
		obj, ok := asObject(v)
		if !ok || len(obj) == 0 {
			return nil, false
		}
		return sortedKeys(obj), true
	}, path...)
}

// payloadPaths expands a payload key and its aliases over the known
// containers, in precedence order: analysis_data, data, results, top level.
func payloadPaths[T any](mk func(...string) Accessor[T], keys ...string) []Accessor[T] {
	containers := [][]string{{"analysis_data"}, {"data"}, {"results"}, {"data", "results"}, {}}
	out := make([]Accessor[T], 0, len(containers)*len(keys))
	for _, c := range containers {
		for _, k := range keys {
			path := append(append([]string{}, c...), k)
			out = append(out, mk(path...))
		}
	}
	return out
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Envelope:
		return map[string]any(t), true
	case string:
		s := strings.TrimSpace(t)
		if !strings.HasPrefix(s, "{") {
			return nil, false
		}
		var obj map[string]any
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return nil, false
		}
		return obj, true
	}
	return nil, false
}

func asNonEmptyObject(v any) (map[string]any, bool) {
	obj, ok := asObject(v)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	return obj, true
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if !strings.HasPrefix(s, "[") {
			return nil, false
		}
		var list []any
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&list); err != nil {
			return nil, false
		}
		return list, true
	}
	return nil, false
}

func asString(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func asFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asInt64(v any) (int64, bool) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	if s, ok := v.(string); ok {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i, true
		}
	}
	f, ok := asFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// asFloats converts a numeric list. Null or non-numeric cells become 0 so a
// single NaN serialized as null upstream does not drop the whole vector.
func asFloats(v any) ([]float64, bool) {
	list, ok := asList(v)
	if !ok || len(list) == 0 {
		return nil, false
	}
	out := make([]float64, len(list))
	numeric := false
	for i, item := range list {
		if f, ok := asFloat(item); ok {
			out[i] = f
			numeric = true
		}
	}
	return out, numeric
}

func asMatrix(v any) ([][]float64, bool) {
	if list, ok := asList(v); ok {
		if len(list) == 0 {
			return nil, false
		}
		out := make([][]float64, 0, len(list))
		for _, row := range list {
			r, ok := asFloats(row)
			if !ok {
				return nil, false
			}
			out = append(out, r)
		}
		return out, true
	}
	obj, ok := asObject(v)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	out := make([][]float64, 0, len(obj))
	for _, k := range sortedKeys(obj) {
		r, ok := asFloats(obj[k])
		if !ok {
			return nil, false
		}
		out = append(out, r)
	}
	return out, true
}

func asStrings(v any) ([]string, bool) {
	if list, ok := asList(v); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := asString(item); ok {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out, len(out) > 0
	}
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out, len(out) > 0
}

func asLines(v any) ([]string, bool) {
	if s, ok := v.(string); ok && !strings.HasPrefix(strings.TrimSpace(s), "[") {
		var out []string
		for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
			if strings.TrimSpace(line) != "" {
				out = append(out, line)
			}
		}
		return out, len(out) > 0
	}
	list, ok := asList(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, len(out) > 0
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
