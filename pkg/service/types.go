package service

import (
	"fmt"
	"os"
	"time"

	"github.com/platinummonkey/stager/pkg/app"
	"github.com/platinummonkey/stager/pkg/config"
)

// Task stages recorded in tasks.Task.Stage around the orchestrator's own states
const (
	StagePreparing = "preparing"
	StageCache     = "cache_lookup"
	StagePacking   = "packing"
	StageUploading = "uploading"
	StageComplete  = "complete"
)

// Request is one application to stage
type Request struct {
	SourceDir  string             `json:"source_dir" yaml:"source_dir"`
	App        app.Descriptor     `json:"app" yaml:"app"`
	Controller app.ControllerInfo `json:"controller" yaml:"controller"`
}

// Validate checks the request before a task is recorded for it
func (r Request) Validate() error {
	if r.SourceDir == "" {
		return fmt.Errorf("%w: source_dir is required", ErrInvalidRequest)
	}
	info, err := os.Stat(r.SourceDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source_dir %s is not a directory", ErrInvalidRequest, r.SourceDir)
	}
	if err := r.Controller.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := r.App.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Config controls how the service runs requests
type Config struct {
	WorkspaceRoot  string
	RunTimeout     time.Duration
	MaxParallel    int
	QueueSize      int
	KeepWorkspaces bool
}

// ConfigFrom copies the staging section of the process configuration
func ConfigFrom(cfg config.StagingConfig) Config {
	return Config{
		WorkspaceRoot:  cfg.WorkspaceRoot,
		RunTimeout:     cfg.RunTimeout,
		MaxParallel:    cfg.MaxParallel,
		QueueSize:      cfg.QueueSize,
		KeepWorkspaces: cfg.KeepWorkspaces,
	}
}

func (c *Config) setDefaults() {
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = config.DefaultWorkspaceRoot
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = config.DefaultRunTimeout
	}
	if c.MaxParallel < 1 {
		c.MaxParallel = config.DefaultMaxParallel
	}
	if c.QueueSize < 1 {
		c.QueueSize = config.DefaultQueueSize
	}
}
