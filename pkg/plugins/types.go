package plugins

import (
	"context"

	"github.com/platinummonkey/stager/pkg/app"
)

// Plugin is the interface every staging plugin implements
type Plugin interface {
	// Name uniquely identifies the plugin within a registry
	Name() string

	// Type reports whether the plugin is a framework or a feature plugin
	Type() PluginType

	// Stage runs the plugin against the shared workspace. Plugins may write
	// into sc.DestDir but must not modify sc itself.
	Stage(ctx context.Context, sc *StageContext) error
}

// PluginType defines the role a plugin plays in a staging run
type PluginType string

const (
	PluginTypeFramework PluginType = "framework"
	PluginTypeFeature   PluginType = "feature"
)

// Known reports whether t is one of the recognized plugin types
func (t PluginType) Known() bool {
	return t == PluginTypeFramework || t == PluginTypeFeature
}

func (t PluginType) String() string {
	return string(t)
}

// Resolver maps a plugin reference to a plugin instance
type Resolver interface {
	Resolve(ref app.PluginReference) (Plugin, error)
}

// PluginSet is a validated effective plugin set
type PluginSet struct {
	Framework Plugin
	Features  []Plugin
}

// Ordered returns the plugins in staging order: the framework plugin first,
// then the features in set order.
func (s *PluginSet) Ordered() []Plugin {
	out := make([]Plugin, 0, len(s.Features)+1)
	out = append(out, s.Framework)
	return append(out, s.Features...)
}

// Names returns the names of plugins in staging order
func (s *PluginSet) Names() []string {
	ordered := s.Ordered()
	names := make([]string, len(ordered))
	for i, p := range ordered {
		names[i] = p.Name()
	}
	return names
}

// Scopes of a listed plugin
const (
	// ScopeAmbient plugins join every effective set while ambient discovery is on
	ScopeAmbient = "ambient"
	// ScopeReference plugins are only used when an application names them
	ScopeReference = "reference"
)

// Info is a serializable summary of a registered plugin
type Info struct {
	Name  string     `json:"name"`
	Type  PluginType `json:"type"`
	Scope string     `json:"scope,omitempty"`
}

// Describe summarizes plugins for listing
func Describe(ps []Plugin) []Info {
	out := make([]Info, len(ps))
	for i, p := range ps {
		out[i] = Info{Name: p.Name(), Type: p.Type()}
	}
	return out
}

// DescribeScoped is Describe with every entry tagged with scope
func DescribeScoped(ps []Plugin, scope string) []Info {
	out := Describe(ps)
	for i := range out {
		out[i].Scope = scope
	}
	return out
}
