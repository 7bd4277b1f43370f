// Package transform provides the transform.render reaction. It renders a template against the
// input and returns the decoded value, which makes it useful as a reshaping step in a chain.
package transform

import (
	"context"
	"errors"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/template"
)

var ErrMissingTemplate = errors.New("missing template")

type Reaction struct{}

func New() *Reaction {
	return &Reaction{}
}

func (*Reaction) Key() protocol.Key {
	return protocol.NewKey("transform", "render")
}

// Handle renders the "template" param. Object results are returned as the output itself,
// anything else under "result".
func (*Reaction) Handle(_ context.Context, req protocol.Request) (map[string]any, error) {
	tmpl := req.StringParam("template")
	if tmpl == "" {
		return nil, faults.Validation("transform.render", "template param is required", ErrMissingTemplate)
	}

	value, err := template.Render(tmpl, template.Data(req.Input, req.Params, req.Execution))
	if err != nil {
		return nil, faults.Validation("transform.render", "failed to render template", err)
	}

	if object, ok := value.(map[string]any); ok {
		return object, nil
	}

	return map[string]any{"result": value}, nil
}
