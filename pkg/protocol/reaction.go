// Package protocol defines the contract between the dispatcher and reaction handlers.
package protocol

import (
	"context"
	"strings"

	"github.com/dukex/area/pkg/models"
)

// Key routes a reaction by service key and action key. Both are matched case-insensitively.
type Key struct {
	Service string
	Action  string
}

func NewKey(service, action string) Key {
	return Key{Service: strings.ToLower(service), Action: strings.ToLower(action)}
}

func (k Key) String() string {
	return k.Service + "." + k.Action
}

// Request is everything a handler receives for one attempt.
type Request struct {
	Token     string
	Input     map[string]any
	Params    map[string]any
	Execution *models.Execution
}

// Param returns the instance parameter if set, otherwise the input field of the same name.
func (r Request) Param(name string) (any, bool) {
	if v, ok := r.Params[name]; ok && v != nil {
		return v, true
	}

	v, ok := r.Input[name]

	return v, ok && v != nil
}

// StringParam is Param coerced to a string. Non-string values yield "".
func (r Request) StringParam(name string) string {
	v, _ := r.Param(name)
	s, _ := v.(string)

	return s
}

// Reaction performs one side effect against an external service.
type Reaction interface {
	Handle(ctx context.Context, req Request) (map[string]any, error)
}

type ReactionFunc func(ctx context.Context, req Request) (map[string]any, error)

func (f ReactionFunc) Handle(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

// ReactionPlugin is the symbol exported as "Reaction" by plugin shared objects.
type ReactionPlugin interface {
	Reaction
	Key() Key
}
