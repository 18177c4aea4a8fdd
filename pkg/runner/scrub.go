package runner

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

const (
	scrubRedacted     = "[REDACTED]"
	scrubMaxStringLen = 500
	scrubTruncateMark = "…[truncated]"
	scrubMaxArrayLen  = 50
	scrubMaxDepth     = 6
)

var scrubbedFieldNames = map[string]bool{
	"apikey":        true,
	"api_key":       true,
	"password":      true,
	"secret":        true,
	"token":         true,
	"authtoken":     true,
	"credential":    true,
	"authorization": true,
}

// scrub walks v and returns a copy suitable for persistence: secret
// fields redacted, functions and byte buffers replaced with
// placeholders, long strings truncated, and arrays/nesting capped.
// Applied only to persisted/emitted payloads, never to the in-memory
// StageContext passed between stages.
func scrub(v any) any {
	return scrubValue(v, 0)
}

func scrubValue(v any, depth int) any {
	if depth > scrubMaxDepth {
		return "[MaxDepth]"
	}

	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return scrubString(val)
	case []byte:
		return "[Buffer " + strconv.Itoa(len(val)) + " bytes]"
	case map[string]any:
		return scrubMap(val, depth)
	case []any:
		return scrubSlice(val, depth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return "[Function]"
	case reflect.Map:
		m := map[string]any{}
		iter := rv.MapRange()
		for iter.Next() {
			m[fmtKey(iter.Key())] = iter.Value().Interface()
		}
		return scrubMap(m, depth)
	case reflect.Slice, reflect.Array:
		s := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			s[i] = rv.Index(i).Interface()
		}
		return scrubSlice(s, depth)
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return scrubValue(rv.Elem().Interface(), depth)
	case reflect.Struct:
		return scrubStruct(rv, depth)
	default:
		return v
	}
}

func scrubString(s string) string {
	if len(s) <= scrubMaxStringLen {
		return s
	}
	return s[:scrubMaxStringLen] + scrubTruncateMark
}

func scrubMap(m map[string]any, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if scrubbedFieldNames[strings.ToLower(k)] {
			out[k] = scrubRedacted
			continue
		}
		out[k] = scrubValue(v, depth+1)
	}
	return out
}

func scrubSlice(s []any, depth int) []any {
	n := len(s)
	truncated := n > scrubMaxArrayLen
	if truncated {
		n = scrubMaxArrayLen
	}
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, scrubValue(s[i], depth+1))
	}
	if truncated {
		out = append(out, scrubTruncateMark)
	}
	return out
}

func scrubStruct(rv reflect.Value, depth int) any {
	t := rv.Type()
	m := map[string]any{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if scrubbedFieldNames[strings.ToLower(name)] {
			m[name] = scrubRedacted
			continue
		}
		m[name] = scrubValue(rv.Field(i).Interface(), depth+1)
	}
	return m
}

func fmtKey(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return v.String()
	}
	return fmt.Sprint(v.Interface())
}
