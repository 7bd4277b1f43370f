// Package registry routes (service, action) pairs to reaction handlers.
package registry

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"sync"

	"github.com/dukex/area/pkg/protocol"
)

const pluginSymbol = "Reaction"

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	reactions map[protocol.Key]protocol.Reaction
	fallback  protocol.Reaction
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		reactions: make(map[protocol.Key]protocol.Reaction),
		fallback:  protocol.ReactionFunc(Generic),
	}
}

func (r *Registry) Register(key protocol.Key, reaction protocol.Reaction) {
	key = protocol.NewKey(key.Service, key.Action)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reactions[key]; exists {
		r.logger.Warn("replacing registered reaction", "reaction", key.String())
	}

	r.reactions[key] = reaction
}

// Lookup returns the handler registered for exactly this pair.
func (r *Registry) Lookup(serviceKey, actionKey string) (protocol.Reaction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reaction, ok := r.reactions[protocol.NewKey(serviceKey, actionKey)]

	return reaction, ok
}

// Resolve never fails: unregistered pairs get the generic handler.
func (r *Registry) Resolve(serviceKey, actionKey string) protocol.Reaction {
	if reaction, ok := r.Lookup(serviceKey, actionKey); ok {
		return reaction
	}

	r.logger.Debug("no reaction registered, using generic handler", "service", serviceKey, "action", actionKey)

	return r.fallback
}

func (r *Registry) Keys() []protocol.Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]protocol.Key, 0, len(r.reactions))
	for key := range r.reactions {
		keys = append(keys, key)
	}

	slices.SortFunc(keys, func(a, b protocol.Key) int {
		return cmp.Or(cmp.Compare(a.Service, b.Service), cmp.Compare(a.Action, b.Action))
	})

	return keys
}

// Generic echoes status "executed" for services without a dedicated handler.
func Generic(_ context.Context, req protocol.Request) (map[string]any, error) {
	return map[string]any{
		"status": "executed",
		"input":  req.Input,
	}, nil
}

// LoadPlugins registers every reaction exported by the shared objects under pluginsPath/reactions.
func (r *Registry) LoadPlugins(pluginsPath string) (int, error) {
	found, err := loadPlugin[protocol.ReactionPlugin](r.logger, pluginsPath, pluginSymbol)
	if err != nil {
		return 0, err
	}

	for _, p := range found {
		r.Register(p.Key(), p)
	}

	return len(found), nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/reactions"

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", rootPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded reaction plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
