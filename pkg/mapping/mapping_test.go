package mapping_test

import (
	"testing"

	"github.com/dukex/area/pkg/mapping"
	"github.com/stretchr/testify/assert"
)

func sampleOutput() map[string]any {
	return map[string]any{
		"issue": map[string]any{
			"title":  "  Broken build ",
			"number": float64(42),
			"labels": []any{"bug", "ci"},
			"open":   "yes",
		},
		"count": "17",
		"items": []any{
			map[string]any{"id": "a"},
			map[string]any{"id": "b"},
		},
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mapping  map[string]any
		expected map[string]any
	}{
		{
			name:     "empty mapping passes output through",
			mapping:  nil,
			expected: sampleOutput(),
		},
		{
			name: "paths",
			mapping: map[string]any{
				"title":  "issue.title",
				"number": "{{ .issue.number }}",
				"second": "items.1.id",
				"label":  "issue.labels.0",
			},
			expected: map[string]any{
				"title":  "  Broken build ",
				"number": float64(42),
				"second": "b",
				"label":  "bug",
			},
		},
		{
			name:     "missing paths are omitted",
			mapping:  map[string]any{"title": "issue.title", "assignee": "issue.assignee.login"},
			expected: map[string]any{"title": "  Broken build "},
		},
		{
			name:     "literals",
			mapping:  map[string]any{"channel": 5, "flag": true},
			expected: map[string]any{"channel": 5, "flag": true},
		},
		{
			name: "typed transforms",
			mapping: map[string]any{
				"count":   map[string]any{"type": "number", "source": "count"},
				"open":    map[string]any{"type": "boolean", "source": "issue.open"},
				"number":  map[string]any{"type": "string", "source": "issue.number"},
				"title":   map[string]any{"type": "format", "source": "issue.title", "format": "trim"},
				"shout":   map[string]any{"type": "format", "source": "issue.labels.0", "format": "uppercase"},
				"printf":  map[string]any{"type": "format", "source": "issue.number", "format": "#%v"},
				"summary": map[string]any{"type": "template", "template": "{{ .issue.labels | len }} labels"},
			},
			expected: map[string]any{
				"count":   float64(17),
				"open":    true,
				"number":  "42",
				"title":   "Broken build",
				"shout":   "BUG",
				"printf":  "#42",
				"summary": "2 labels",
			},
		},
		{
			name: "defaults",
			mapping: map[string]any{
				"assignee": map[string]any{"source": "issue.assignee", "default": "nobody"},
				"missing":  map[string]any{"source": "issue.assignee"},
				"badnum":   map[string]any{"type": "number", "source": "issue.title", "default": 0},
			},
			expected: map[string]any{"assignee": "nobody", "badnum": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, mapping.Apply(tt.mapping, sampleOutput()))
		})
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	value, ok := mapping.Lookup(map[string]any{"a/b": map[string]any{"c": 1}}, "a/b.c")
	assert.True(t, ok)
	assert.Equal(t, 1, value)

	_, ok = mapping.Lookup(map[string]any{"a": "scalar"}, "a.b")
	assert.False(t, ok)

	_, ok = mapping.Lookup(map[string]any{"a": 1}, "")
	assert.False(t, ok)
}
