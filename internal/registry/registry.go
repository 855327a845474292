// internal/registry/registry.go
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/preflight/internal/types"
)

// Registry maps component ids to descriptors and action types to the
// component they belong to. It is the resolver from a predicted action
// to the component to preload. One instance is shared by the tracker,
// the prediction engine, and the preloader.
type Registry struct {
	mu         sync.RWMutex
	components map[types.ComponentID]*types.ComponentDescriptor
	order      []types.ComponentID
	bindings   map[types.ActionType]types.ComponentID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		components: make(map[types.ComponentID]*types.ComponentDescriptor),
		bindings:   make(map[types.ActionType]types.ComponentID),
	}
}

// TrackComponent registers a descriptor. Re-registering an existing id
// is a no-op with a warning; the original descriptor is kept.
func (r *Registry) TrackComponent(id types.ComponentID, componentType string, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.components[id]; ok {
		slog.Warn("component already tracked", "component_id", id)
		return
	}
	r.components[id] = &types.ComponentDescriptor{
		ID:       id,
		Type:     componentType,
		Metadata: metadata,
	}
	r.order = append(r.order, id)
}

// AssociateAction binds an action type to a tracked component. Binding
// to an untracked component is rejected.
func (r *Registry) AssociateAction(action types.ActionType, id types.ComponentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.components[id]; !ok {
		return fmt.Errorf("associate action %q: component %q is not tracked", action, id)
	}
	r.bindings[action] = id
	return nil
}

// ComponentByAction resolves the component bound to an action type.
// Unknown actions fail softly.
func (r *Registry) ComponentByAction(action types.ActionType) (types.ComponentID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bindings[action]
	return id, ok
}

// Descriptor returns the descriptor for a component id.
func (r *Registry) Descriptor(id types.ComponentID) (*types.ComponentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.components[id]
	return desc, ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*types.ComponentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.ComponentDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.components[id])
	}
	return out
}
