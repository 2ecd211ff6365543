package containers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/platinummonkey/stager/pkg/config"
	"github.com/platinummonkey/stager/pkg/plugins"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// SourceMount is where the app source is mounted read-only
	SourceMount = "/staging/src"
	// DestMount is where the droplet directory is mounted
	DestMount = "/staging/dst"

	// stderrTail bounds the stderr excerpt carried in a failure
	stderrTail = 2048

	labelPlugin = "io.stager.plugin"
	labelTask   = "io.stager.task"
)

// Options configures container-backed plugins
type Options struct {
	MemoryLimit int64         // bytes, used when neither the manifest nor the app sets one
	CPULimit    float64       // cores
	Timeout     time.Duration // per plugin container
	PullTimeout time.Duration
	Logger      *logrus.Logger
}

func (o *Options) setDefaults() {
	if o.MemoryLimit == 0 {
		o.MemoryLimit = config.DefaultContainerMemoryLimit
	}
	if o.CPULimit == 0 {
		o.CPULimit = config.DefaultContainerCPULimit
	}
	if o.Timeout == 0 {
		o.Timeout = config.DefaultContainerTimeout
	}
	if o.PullTimeout == 0 {
		o.PullTimeout = config.DefaultImagePullTimeout
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
}

// Runtime runs plugin containers and remembers which images are present
type Runtime struct {
	client DockerAPI
	opts   Options

	mu     sync.Mutex
	images map[string]bool
	pulls  singleflight.Group
}

// NewRuntime creates a runtime over a docker client
func NewRuntime(cli DockerAPI, opts Options) *Runtime {
	opts.setDefaults()
	return &Runtime{
		client: cli,
		opts:   opts,
		images: make(map[string]bool),
	}
}

// NewFactory returns a plugins.Factory that builds container plugins sharing
// one runtime
func NewFactory(cli DockerAPI, opts Options) plugins.Factory {
	return NewRuntime(cli, opts).Factory()
}

// Factory builds plugins from manifests with a container section
func (r *Runtime) Factory() plugins.Factory {
	return func(m *plugins.Manifest) (plugins.Plugin, error) {
		if m.Container == nil || m.Container.Image == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoContainerSpec, m.Name)
		}
		return &Plugin{manifest: m, runtime: r}, nil
	}
}

// EnsureImage makes ref available locally, pulling it at most once.
// Concurrent callers for the same ref share one pull; different refs pull
// in parallel. A caller whose ctx ends stops waiting without aborting the
// shared pull, which is bounded by PullTimeout.
func (r *Runtime) EnsureImage(ctx context.Context, ref string) error {
	r.mu.Lock()
	present := r.images[ref]
	r.mu.Unlock()
	if present {
		return nil
	}

	pullCtx := context.WithoutCancel(ctx)
	ch := r.pulls.DoChan(ref, func() (any, error) {
		return nil, r.pull(pullCtx, ref)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrImagePullFailed, ref, ctx.Err())
	}
}

func (r *Runtime) pull(ctx context.Context, ref string) error {
	r.mu.Lock()
	present := r.images[ref]
	r.mu.Unlock()
	if present {
		return nil
	}

	if _, err := r.client.ImageInspect(ctx, ref); err == nil {
		r.markPresent(ref)
		return nil
	}

	pullCtx, cancel := context.WithTimeout(ctx, r.opts.PullTimeout)
	defer cancel()

	r.opts.Logger.Infof("Pulling plugin image %s", ref)
	reader, err := r.client.ImagePull(pullCtx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrImagePullFailed, ref, err)
	}
	defer reader.Close()

	// The pull only completes once its progress stream is drained
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrImagePullFailed, ref, err)
	}

	r.markPresent(ref)
	return nil
}

func (r *Runtime) markPresent(ref string) {
	r.mu.Lock()
	r.images[ref] = true
	r.mu.Unlock()
}

// Plugin is a staging plugin implemented by a docker image. The source tree
// is mounted read-only at SourceMount and the destination at DestMount.
type Plugin struct {
	manifest *plugins.Manifest
	runtime  *Runtime
}

func (p *Plugin) Name() string { return p.manifest.Name }

func (p *Plugin) Type() plugins.PluginType { return p.manifest.Type }

// Manifest returns the manifest the plugin was built from
func (p *Plugin) Manifest() *plugins.Manifest { return p.manifest }

// Stage runs the plugin image to completion
func (p *Plugin) Stage(ctx context.Context, sc *plugins.StageContext) error {
	r := p.runtime
	spec := p.manifest.Container
	ref := spec.ImageRef()

	if err := r.EnsureImage(ctx, ref); err != nil {
		return err
	}

	cfg, hostCfg, err := p.containerConfig(sc)
	if err != nil {
		return err
	}

	resp, err := r.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return fmt.Errorf("%w: create: %v", ErrContainerFailed, err)
	}
	defer p.remove(resp.ID)

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: start: %v", ErrContainerFailed, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var exitCode int64
	statusCh, errCh := r.client.ContainerWait(execCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			if ctx.Err() == nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", ErrTimeout, p.Name(), r.opts.Timeout)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: wait: %v", ErrContainerFailed, err)
		}
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrContainerFailed, status.Error.Message)
		}
		exitCode = status.StatusCode
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s after %s", ErrTimeout, p.Name(), r.opts.Timeout)
	}

	stdout, stderr := p.logs(ctx, resp.ID)
	if stdout != "" {
		r.opts.Logger.WithFields(logrus.Fields{
			"plugin": p.Name(),
			"image":  ref,
		}).Debug(stdout)
	}

	if exitCode != 0 {
		return fmt.Errorf("%w: %s exited with code %d: %s", ErrContainerFailed, ref, exitCode, tail(stderr, stderrTail))
	}
	return nil
}

// containerConfig builds the container and host configuration for a run
func (p *Plugin) containerConfig(sc *plugins.StageContext) (*container.Config, *container.HostConfig, error) {
	src, err := filepath.Abs(sc.SourceDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve source dir: %w", err)
	}
	dst, err := filepath.Abs(sc.DestDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve dest dir: %w", err)
	}

	spec := p.manifest.Container
	cfg := &container.Config{
		Image:        spec.ImageRef(),
		Cmd:          spec.Command,
		Env:          p.environment(sc),
		WorkingDir:   DestMount,
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			labelPlugin: p.Name(),
			labelTask:   sc.Controller.TaskID,
		},
	}

	hostCfg := &container.HostConfig{
		Binds: []string{
			src + ":" + SourceMount + ":ro",
			dst + ":" + DestMount,
		},
		Resources: container.Resources{
			Memory:   p.memoryLimit(sc),
			NanoCPUs: int64(p.runtime.opts.CPULimit * 1e9),
		},
		AutoRemove: false, // removed after logs are read
	}
	if fds := sc.App.ResourceLimits.FDs; fds > 0 {
		hostCfg.Resources.Ulimits = []*container.Ulimit{{Name: "nofile", Soft: fds, Hard: fds}}
	}

	return cfg, hostCfg, nil
}

// environment is the stage context env with container paths, overlaid by
// the manifest env. Sorted so container configs are reproducible.
func (p *Plugin) environment(sc *plugins.StageContext) []string {
	env := sc.Env()
	for k, v := range p.manifest.Container.Env {
		env[k] = v
	}
	env["STAGING_SOURCE_DIR"] = SourceMount
	env["STAGING_DEST_DIR"] = DestMount

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// memoryLimit is the smaller of the manifest and app memory limits, in bytes
func (p *Plugin) memoryLimit(sc *plugins.StageContext) int64 {
	const mb = 1024 * 1024

	manifest := p.manifest.Container.MemoryMB * mb
	appLimit := sc.App.ResourceLimits.Memory * mb

	switch {
	case manifest > 0 && appLimit > 0:
		return min(manifest, appLimit)
	case manifest > 0:
		return manifest
	case appLimit > 0:
		return appLimit
	default:
		return p.runtime.opts.MemoryLimit
	}
}

func (p *Plugin) logs(ctx context.Context, id string) (string, string) {
	rc, err := p.runtime.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		p.runtime.opts.Logger.Warnf("Failed to read logs of plugin %s: %v", p.Name(), err)
		return "", ""
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		p.runtime.opts.Logger.Warnf("Failed to demultiplex logs of plugin %s: %v", p.Name(), err)
	}
	return stdout.String(), stderr.String()
}

func (p *Plugin) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := p.runtime.client.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		p.runtime.opts.Logger.Warnf("Failed to remove container %s of plugin %s: %v", id, p.Name(), err)
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
