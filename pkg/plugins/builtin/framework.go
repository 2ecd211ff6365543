package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/platinummonkey/stager/pkg/plugins"
	"github.com/platinummonkey/stager/pkg/workspace"
)

const (
	// AppDir is where the framework copies the application inside the droplet
	AppDir = "app"
	// LogsDir receives the application's stdout and stderr at runtime
	LogsDir = "logs"
	// StartupScript is the droplet entry point
	StartupScript = "startup"
)

// FrameworkSpec describes how a framework is started
type FrameworkSpec struct {
	Name         string            `json:"name" yaml:"name"`
	StartCommand string            `json:"start_command" yaml:"start_command"`
	Runtimes     []string          `json:"runtimes,omitempty" yaml:"runtimes,omitempty"`
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Validate checks the spec has the fields needed to stage
func (s FrameworkSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidFramework)
	}
	if s.StartCommand == "" {
		return fmt.Errorf("%w: %s has no start command", ErrInvalidFramework, s.Name)
	}
	return nil
}

// Supports reports whether runtime is accepted. An empty runtime list
// accepts any runtime.
func (s FrameworkSpec) Supports(runtime string) bool {
	return len(s.Runtimes) == 0 || slices.Contains(s.Runtimes, runtime)
}

// Framework is a framework plugin that lays out a droplet:
//
//	<dest>/app/      copy of the application source
//	<dest>/logs/     runtime log directory
//	<dest>/startup   start script exporting the staging environment
type Framework struct {
	spec FrameworkSpec
}

// NewFramework creates a framework plugin from spec
func NewFramework(spec FrameworkSpec) *Framework {
	return &Framework{spec: spec}
}

func (f *Framework) Name() string { return f.spec.Name }

func (f *Framework) Type() plugins.PluginType { return plugins.PluginTypeFramework }

// Spec returns the framework spec
func (f *Framework) Spec() FrameworkSpec {
	return f.spec
}

// Stage implements plugins.Plugin
func (f *Framework) Stage(ctx context.Context, sc *plugins.StageContext) error {
	if !f.spec.Supports(sc.App.Runtime) {
		return fmt.Errorf("%w: %s does not support %q (supported: %s)",
			ErrUnsupportedRuntime, f.spec.Name, sc.App.Runtime, strings.Join(f.spec.Runtimes, ", "))
	}

	if err := workspace.CopyTree(sc.SourceDir, filepath.Join(sc.DestDir, AppDir)); err != nil {
		return fmt.Errorf("failed to copy application: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(sc.DestDir, LogsDir), 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	script := startupScript(f.spec, sc)
	if err := os.WriteFile(filepath.Join(sc.DestDir, StartupScript), []byte(script), 0755); err != nil {
		return fmt.Errorf("failed to write startup script: %w", err)
	}

	return nil
}

func startupScript(spec FrameworkSpec, sc *plugins.StageContext) string {
	env := sc.Env()
	// Staging paths and the staging task are meaningless once the droplet is
	// unpacked elsewhere, and cached droplets are reused across tasks
	delete(env, "STAGING_SOURCE_DIR")
	delete(env, "STAGING_DEST_DIR")
	delete(env, "VCAP_TASK_ID")
	delete(env, "VCAP_CONTROLLER")
	for k, v := range spec.Env {
		env[k] = v
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s\n", k, shellQuote(env[k]))
	}
	b.WriteString("DROPLET_BASE_DIR=$(cd \"$(dirname \"$0\")\" && pwd)\n")
	fmt.Fprintf(&b, "cd \"$DROPLET_BASE_DIR/%s\"\n", AppDir)
	fmt.Fprintf(&b, "%s > \"$DROPLET_BASE_DIR/%s/stdout.log\" 2> \"$DROPLET_BASE_DIR/%s/stderr.log\" &\n",
		spec.StartCommand, LogsDir, LogsDir)
	b.WriteString("echo \"$!\" > \"$DROPLET_BASE_DIR/run.pid\"\n")
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Detector is a single framework plugin that stages whichever of its
// frameworks matches the application's declared framework. Registering one
// Detector instead of every Framework keeps the ambient plugin set valid.
type Detector struct {
	name       string
	frameworks map[string]*Framework
}

// DetectorName is the registered name of the default detector
const DetectorName = "framework-detect"

// NewDetector creates a detector over specs. Later specs replace earlier
// ones with the same name.
func NewDetector(name string, specs ...FrameworkSpec) *Detector {
	d := &Detector{
		name:       name,
		frameworks: make(map[string]plugins.Plugin, len(specs)),
	}
	for _, spec := range specs {
		d.frameworks[spec.Name] = NewFramework(spec)
	}
	return d
}

func (d *Detector) Name() string { return d.name }

func (d *Detector) Type() plugins.PluginType { return plugins.PluginTypeFramework }

// Add makes p the stager for applications declaring p.Name() as their
// framework, replacing any framework of that name.
func (d *Detector) Add(p plugins.Plugin) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("framework plugin must have a name")
	}
	if p.Type() != plugins.PluginTypeFramework {
		return fmt.Errorf("plugin %q is a %s plugin, not a framework", p.Name(), p.Type())
	}
	if p == plugins.Plugin(d) {
		return fmt.Errorf("detector %q cannot delegate to itself", d.name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameworks[p.Name()] = p
	return nil
}

// Frameworks returns the supported framework names, sorted
func (d *Detector) Frameworks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.frameworks))
	for name := range d.frameworks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stage implements plugins.Plugin
func (d *Detector) Stage(ctx context.Context, sc *plugins.StageContext) error {
	d.mu.RLock()
	fw, ok := d.frameworks[sc.App.Framework]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedFramework, sc.App.Framework, strings.Join(d.Frameworks(), ", "))
	}
	return fw.Stage(ctx, sc)
}
