// Package plugintest provides a recording plugin for tests.
package plugintest

import (
	"context"
	"sync"

	"github.com/platinummonkey/stager/pkg/plugins"
)

// Plugin is a plugins.Plugin that records its Stage calls
type Plugin struct {
	PluginName string
	PluginType plugins.PluginType

	// Err is returned from Stage when set
	Err error

	// OnStage runs inside Stage before Err is returned
	OnStage func(ctx context.Context, sc *plugins.StageContext) error

	mu       sync.Mutex
	calls    int
	contexts []*plugins.StageContext
}

// New creates a fake plugin
func New(name string, t plugins.PluginType) *Plugin {
	return &Plugin{PluginName: name, PluginType: t}
}

// Framework creates a fake framework plugin
func Framework(name string) *Plugin {
	return New(name, plugins.PluginTypeFramework)
}

// Feature creates a fake feature plugin
func Feature(name string) *Plugin {
	return New(name, plugins.PluginTypeFeature)
}

// Failing sets the error Stage returns and returns p
func (p *Plugin) Failing(err error) *Plugin {
	p.Err = err
	return p
}

// Name implements plugins.Plugin
func (p *Plugin) Name() string { return p.PluginName }

// Type implements plugins.Plugin
func (p *Plugin) Type() plugins.PluginType { return p.PluginType }

// Stage implements plugins.Plugin
func (p *Plugin) Stage(ctx context.Context, sc *plugins.StageContext) error {
	p.mu.Lock()
	p.calls++
	p.contexts = append(p.contexts, sc)
	p.mu.Unlock()

	if p.OnStage != nil {
		if err := p.OnStage(ctx, sc); err != nil {
			return err
		}
	}
	return p.Err
}

// Calls returns how many times Stage ran
func (p *Plugin) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// LastContext returns the context passed to the most recent Stage call
func (p *Plugin) LastContext() *plugins.StageContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.contexts) == 0 {
		return nil
	}
	return p.contexts[len(p.contexts)-1]
}

// Recorder collects the order in which plugins were staged
type Recorder struct {
	mu    sync.Mutex
	order []string
}

// Track makes p append its name to the recorder when staged
func (r *Recorder) Track(p *Plugin) *Plugin {
	prev := p.OnStage
	p.OnStage = func(ctx context.Context, sc *plugins.StageContext) error {
		r.mu.Lock()
		r.order = append(r.order, p.PluginName)
		r.mu.Unlock()
		if prev != nil {
			return prev(ctx, sc)
		}
		return nil
	}
	return p
}

// Order returns the plugin names in staging order
func (r *Recorder) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}
