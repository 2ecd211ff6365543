package staging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/stager/pkg/app"
	"github.com/platinummonkey/stager/pkg/contextkeys"
	"github.com/platinummonkey/stager/pkg/observability"
	"github.com/platinummonkey/stager/pkg/plugins"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLoader replaces the registry-backed loader used to resolve references
func WithLoader(loader plugins.Resolver) Option {
	return func(o *Orchestrator) {
		o.loader = loader
	}
}

// WithReferences adds a registry of plugins that are resolvable by reference
// but never join the ambient set. References are searched before the ambient
// registry. Ignored when WithLoader is also given.
func WithReferences(reg *plugins.Registry) Option {
	return func(o *Orchestrator) {
		o.references = reg
	}
}

// WithLogger sets the logger
func WithLogger(log *logrus.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics records plugin stage and validation metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for the staging.run and staging.plugin spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithObserver registers a callback invoked synchronously on every state
// transition
func WithObserver(fn func(Transition)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// WithAmbientDiscovery controls whether every registered plugin joins the
// effective set in addition to the referenced ones. It is on by default.
func WithAmbientDiscovery(enabled bool) Option {
	return func(o *Orchestrator) {
		o.ambient = enabled
	}
}

// Orchestrator runs the plugins of a staging request: it assembles the
// effective plugin set, validates it, and stages the framework plugin
// followed by every feature plugin. It holds no per-run state and is safe
// for concurrent use as long as each run gets its own workspace.
type Orchestrator struct {
	registry   *plugins.Registry
	references *plugins.Registry
	loader     plugins.Resolver
	log        *logrus.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
	observer   func(Transition)
	ambient    bool
}

// NewOrchestrator creates an orchestrator over reg
func NewOrchestrator(reg *plugins.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		log:      logrus.New(),
		tracer:   observability.Tracer(),
		ambient:  true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.loader == nil {
		o.loader = plugins.NewLoader(o.references, reg)
	}
	return o
}

// Catalog lists the ambient plugins followed by the reference-only ones
func (o *Orchestrator) Catalog() []plugins.Info {
	var out []plugins.Info
	if o.registry != nil {
		out = append(out, plugins.DescribeScoped(o.registry.All(), plugins.ScopeAmbient)...)
	}
	if o.references != nil {
		out = append(out, plugins.DescribeScoped(o.references.All(), plugins.ScopeReference)...)
	}
	return out
}

// Registry returns the registry the orchestrator draws ambient plugins from
func (o *Orchestrator) Registry() *plugins.Registry {
	return o.registry
}

// EffectivePlugins resolves the references of desc and, with ambient
// discovery on, appends every registered plugin not already present by name.
func (o *Orchestrator) EffectivePlugins(desc app.Descriptor) ([]plugins.Plugin, error) {
	resolved := make([]plugins.Plugin, 0, len(desc.Plugins))
	seen := make(map[string]bool, len(desc.Plugins))

	for _, ref := range desc.Plugins {
		p, err := o.loader.Resolve(ref)
		if err != nil {
			return nil, err
		}
		if seen[p.Name()] {
			continue
		}
		seen[p.Name()] = true
		resolved = append(resolved, p)
	}

	if o.ambient && o.registry != nil {
		for _, p := range o.registry.All() {
			if seen[p.Name()] {
				continue
			}
			seen[p.Name()] = true
			resolved = append(resolved, p)
		}
	}

	return resolved, nil
}

// Plan loads and validates the plugin set of desc without staging anything
func (o *Orchestrator) Plan(desc app.Descriptor) (*plugins.PluginSet, error) {
	effective, err := o.EffectivePlugins(desc)
	if err != nil {
		return nil, err
	}
	return plugins.Validate(effective)
}

// RunPlugins stages the application in sourceDir into destDir. Validation
// errors are returned as produced by the plugins package; a failing Stage
// call aborts the run with a *PluginStageFailure and nothing already written
// to destDir is rolled back. The returned Run is never nil.
func (o *Orchestrator) RunPlugins(ctx context.Context, sourceDir, destDir string, desc app.Descriptor, ci app.ControllerInfo) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		State:     StateIdle,
		StartedAt: time.Now(),
	}

	ctx, span := o.tracer.Start(ctx, "staging.run", trace.WithAttributes(
		attribute.String("staging.run_id", run.ID),
		attribute.String("app.name", desc.Name),
		attribute.String("app.framework", desc.Framework),
		attribute.String("app.runtime", desc.Runtime),
		attribute.String("controller.task_id", ci.TaskID),
	))
	defer span.End()

	log := o.log.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"app":     desc.Name,
		"task_id": ci.TaskID,
	})
	if id := contextkeys.GetTaskID(ctx); id != "" {
		log = log.WithField("staging_task", id)
		span.SetAttributes(attribute.String("staging.task_id", id))
	}

	fail := func(err error) (*Run, error) {
		o.transition(ctx, run, StateFailed, "")
		run.Err = err
		run.CompletedAt = time.Now()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return run, err
	}

	o.transition(ctx, run, StateLoading, "")
	effective, err := o.EffectivePlugins(desc)
	if err != nil {
		o.metrics.RecordValidationFailure(plugins.ValidationReason(err))
		log.Warnf("Failed to load plugins: %v", err)
		return fail(err)
	}

	o.transition(ctx, run, StateValidating, "")
	set, err := plugins.Validate(effective)
	if err != nil {
		o.metrics.RecordValidationFailure(plugins.ValidationReason(err))
		log.Warnf("Plugin set rejected: %v", err)
		return fail(err)
	}
	span.SetAttributes(attribute.StringSlice("staging.plugins", set.Names()))

	sc := plugins.NewStageContext(sourceDir, destDir, desc, ci)

	for i, p := range set.Ordered() {
		next := StateStagingFeature
		if i == 0 {
			next = StateStagingFramework
		}

		if err := ctx.Err(); err != nil {
			log.Warnf("Staging cancelled before plugin %s", p.Name())
			return fail(&PluginStageFailure{Plugin: p.Name(), Type: p.Type(), Err: err})
		}

		o.transition(ctx, run, next, p.Name())
		if err := o.stage(ctx, p, sc); err != nil {
			log.WithField("plugin", p.Name()).Errorf("Plugin stage failed: %v", err)
			return fail(&PluginStageFailure{Plugin: p.Name(), Type: p.Type(), Err: err})
		}
		run.Staged = append(run.Staged, p.Name())
	}

	o.transition(ctx, run, StateDone, "")
	run.CompletedAt = time.Now()
	span.SetStatus(codes.Ok, "")

	log.Infof("Staged %d plugins in %s", len(run.Staged), run.Duration())
	return run, nil
}

func (o *Orchestrator) stage(ctx context.Context, p plugins.Plugin, sc *plugins.StageContext) error {
	ctx, span := o.tracer.Start(ctx, "staging.plugin", trace.WithAttributes(
		attribute.String("plugin.name", p.Name()),
		attribute.String("plugin.type", p.Type().String()),
	))
	defer span.End()

	start := time.Now()
	err := p.Stage(ctx, sc)
	o.metrics.RecordPluginStage(p.Name(), p.Type().String(), time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *Orchestrator) transition(ctx context.Context, run *Run, to State, plugin string) {
	from := run.State
	run.State = to

	tr := Transition{
		RunID:  run.ID,
		From:   from,
		To:     to,
		Plugin: plugin,
		At:     time.Now(),
	}
	if o.observer != nil {
		o.observer(tr)
	}
	if fn, ok := ctx.Value(contextkeys.TransitionObserverKey).(func(Transition)); ok {
		fn(tr)
	}
}
