package plugins

import (
	"github.com/platinummonkey/stager/pkg/app"
)

// Loader resolves plugin references against one or more registries. Every
// source kind (gem, builtin, container, ...) goes through the same
// registration tables; a reference that cannot be materialized fails with
// PluginNotFoundError regardless of the underlying cause.
type Loader struct {
	registries []*Registry
}

// NewLoader creates a loader backed by regs. Registries are searched in
// order, so the first one holding a name wins. Nil registries are skipped.
func NewLoader(regs ...*Registry) *Loader {
	l := &Loader{}
	for _, reg := range regs {
		if reg != nil {
			l.registries = append(l.registries, reg)
		}
	}
	return l
}

// Resolve returns the plugin named by ref
func (l *Loader) Resolve(ref app.PluginReference) (Plugin, error) {
	if ref.Name == "" {
		return nil, &PluginNotFoundError{Kind: ref.Kind, Name: ref.Name}
	}

	for _, reg := range l.registries {
		if plugin, ok := reg.Lookup(ref.Name); ok {
			return plugin, nil
		}
	}
	return nil, &PluginNotFoundError{Kind: ref.Kind, Name: ref.Name}
}

// ResolveAll resolves refs in order, stopping at the first failure
func (l *Loader) ResolveAll(refs []app.PluginReference) ([]Plugin, error) {
	result := make([]Plugin, 0, len(refs))
	for _, ref := range refs {
		plugin, err := l.Resolve(ref)
		if err != nil {
			return nil, err
		}
		result = append(result, plugin)
	}
	return result, nil
}
