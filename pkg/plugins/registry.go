package plugins

import (
	"fmt"
	"sync"
)

// Registry is a catalog of plugin instances keyed by name. Iteration follows
// registration order so runs are deterministic.
//
// A registry is populated before staging starts. Mutating it while a run is
// in flight is a caller error.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
	}
}

// Register stores a plugin under its name. Registering a name that already
// exists replaces the earlier plugin (last write wins) and keeps its position
// in the registration order.
func (r *Registry) Register(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("%w: cannot register nil plugin", ErrInvalidPlugin)
	}

	name := plugin.Name()
	if name == "" {
		return fmt.Errorf("%w: plugin has empty name", ErrInvalidPlugin)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; !exists {
		r.order = append(r.order, name)
	}
	r.plugins[name] = plugin
	return nil
}

// MustRegister is like Register but panics on error. Intended for startup tables.
func (r *Registry) MustRegister(plugins ...Plugin) {
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// Unregister removes a plugin by name
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; !exists {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}

	delete(r.plugins, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup retrieves a plugin by name
func (r *Registry) Lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, ok := r.plugins[name]
	return plugin, ok
}

// Has checks if a plugin is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// All returns every registered plugin in registration order
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.plugins[name])
	}
	return result
}

// Names returns registered plugin names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// ListByType returns registered plugins of one type in registration order
func (r *Registry) ListByType(t PluginType) []Plugin {
	var result []Plugin
	for _, plugin := range r.All() {
		if plugin.Type() == t {
			result = append(result, plugin)
		}
	}
	return result
}

// Count returns the number of registered plugins
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.plugins)
}

// Reset removes all plugins
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins = make(map[string]Plugin)
	r.order = nil
}
