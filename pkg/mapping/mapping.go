// Package mapping turns a source execution's output into a linked target's input, and evaluates
// the conditions that gate action links.
package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/area/pkg/template"
	"github.com/xeipuuv/gojsonpointer"
)

// Apply builds the target input from output. Each mapping entry is one of:
//
//   - a path string ("issue.title", "{{ .issue.title }}", "items.0.id"), copied when it resolves;
//   - a transform object {type, source, default, template, format};
//   - any other value, copied as a literal.
//
// Missing paths are omitted. An empty mapping passes output through unchanged.
func Apply(mapping, output map[string]any) map[string]any {
	if len(mapping) == 0 {
		return output
	}

	result := make(map[string]any, len(mapping))

	for target, spec := range mapping {
		switch v := spec.(type) {
		case string:
			if value, ok := Lookup(output, v); ok {
				result[target] = value
			}
		case map[string]any:
			if value, ok := transform(output, v); ok {
				result[target] = value
			}
		default:
			result[target] = v
		}
	}

	return result
}

// Lookup resolves a dotted path in data. Numeric segments index into arrays.
func Lookup(data map[string]any, path string) (any, bool) {
	path = normalizePath(path)
	if path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	for i, segment := range segments {
		segments[i] = escapePointer(segment)
	}

	pointer, err := gojsonpointer.NewJsonPointer("/" + strings.Join(segments, "/"))
	if err != nil {
		return nil, false
	}

	value, _, err := pointer.Get(data)
	if err != nil || value == nil {
		return nil, false
	}

	return value, true
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)

	if strings.HasPrefix(path, "{{") && strings.HasSuffix(path, "}}") {
		path = strings.TrimSpace(path[2 : len(path)-2])
	}

	return strings.TrimPrefix(path, ".")
}

func escapePointer(segment string) string {
	return strings.ReplaceAll(strings.ReplaceAll(segment, "~", "~0"), "/", "~1")
}

func transform(output map[string]any, spec map[string]any) (any, bool) {
	kind, _ := spec["type"].(string)
	kind = strings.ToLower(kind)

	if kind == "template" {
		tmpl, _ := spec["template"].(string)

		rendered, err := template.Render(tmpl, output)
		if err != nil {
			return defaultValue(spec)
		}

		return rendered, true
	}

	source, _ := spec["source"].(string)

	value, ok := Lookup(output, source)
	if !ok {
		return defaultValue(spec)
	}

	switch kind {
	case "string":
		return fmt.Sprint(value), true
	case "number":
		number, ok := toNumber(value)
		if !ok {
			return defaultValue(spec)
		}

		return number, true
	case "boolean":
		return toBool(value), true
	case "format":
		format, _ := spec["format"].(string)

		return applyFormat(value, format), true
	default:
		return value, true
	}
}

func defaultValue(spec map[string]any) (any, bool) {
	value, ok := spec["default"]

	return value, ok
}

func applyFormat(value any, format string) string {
	str := fmt.Sprint(value)

	switch strings.ToLower(format) {
	case "":
		return str
	case "uppercase":
		return strings.ToUpper(str)
	case "lowercase":
		return strings.ToLower(str)
	case "trim":
		return strings.TrimSpace(str)
	default:
		return fmt.Sprintf(format, value)
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return n, err == nil
	default:
		n, err := strconv.ParseFloat(fmt.Sprint(v), 64)

		return n, err == nil
	}
}

func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "1":
			return true
		}

		return false
	default:
		n, ok := toNumber(v)

		return ok && n != 0
	}
}
