package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/stager/pkg/service"
	"github.com/platinummonkey/stager/pkg/tasks"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Suffixes appended to processed request files
const (
	DoneSuffix   = ".done"
	FailedSuffix = ".failed"
	ErrorSuffix  = ".error"
)

// Submitter queues a staging request
type Submitter interface {
	Submit(ctx context.Context, req service.Request) (*tasks.Task, error)
}

// Watcher submits request files as they appear in a directory
type Watcher struct {
	dir     string
	sub     Submitter
	log     *logrus.Logger
	watcher *fsnotify.Watcher
}

// New creates dir if needed and starts watching it. Call Run to process
// events and Close when done.
func New(dir string, sub Submitter, log *logrus.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if log == nil {
		log = logrus.New()
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid spool directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(abs); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	return &Watcher{dir: abs, sub: sub, log: log, watcher: fw}, nil
}

// Dir returns the absolute spool directory
func (w *Watcher) Dir() string { return w.dir }

// Run submits files already in the directory, then every request file that
// is created or written until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.Scan(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isRequestFile(event.Name) {
				continue
			}
			w.process(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warnf("Spool watcher error: %v", err)
		}
	}
}

// Scan processes every pending request file in name order and returns how
// many were submitted
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read spool directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isRequestFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	submitted := 0
	for _, name := range names {
		if w.process(ctx, filepath.Join(w.dir, name)) {
			submitted++
		}
	}
	return submitted, nil
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// process submits one file and reports whether it was accepted
func (w *Watcher) process(ctx context.Context, path string) bool {
	log := w.log.WithField("file", filepath.Base(path))

	req, err := w.load(path)
	if errors.Is(err, os.ErrNotExist) {
		// already renamed by an earlier event
		return false
	}
	if err != nil {
		log.Warnf("Rejected spool file: %v", err)
		w.reject(path, err)
		return false
	}

	task, err := w.sub.Submit(ctx, *req)
	if err != nil {
		log.Warnf("Spooled request not accepted: %v", err)
		w.reject(path, err)
		return false
	}

	if err := os.Rename(path, path+DoneSuffix); err != nil {
		log.Errorf("Failed to mark spool file done: %v", err)
	}
	log.WithField("task_id", task.ID).Info("Submitted spooled staging request")
	return true
}

func (w *Watcher) load(path string) (*service.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var req service.Request
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &req)
	default:
		err = yaml.Unmarshal(data, &req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	if req.SourceDir != "" && !filepath.IsAbs(req.SourceDir) {
		req.SourceDir = filepath.Join(w.dir, req.SourceDir)
	}
	return &req, nil
}

func (w *Watcher) reject(path string, cause error) {
	if err := os.Rename(path, path+FailedSuffix); err != nil {
		w.log.Errorf("Failed to mark spool file failed: %v", err)
		return
	}
	if err := os.WriteFile(path+ErrorSuffix, []byte(cause.Error()+"\n"), 0644); err != nil {
		w.log.Errorf("Failed to record spool error: %v", err)
	}
}

func isRequestFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return !strings.HasPrefix(filepath.Base(name), ".")
	default:
		return false
	}
}
