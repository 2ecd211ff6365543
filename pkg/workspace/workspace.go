// Package workspace manages the per-task directories a staging run reads
// from and writes into.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrInvalidTaskID is returned for task ids that are not a single path element
	ErrInvalidTaskID = errors.New("invalid task id")

	// ErrNotDirectory is returned when a copy source is not a directory
	ErrNotDirectory = errors.New("not a directory")
)

// Workspace is an isolated source/destination pair under Root
type Workspace struct {
	Root string
	Src  string
	Dst  string
}

// Create makes <root>/<taskID>/{src,dst}. Concurrent runs must use distinct
// task ids.
func Create(root, taskID string) (*Workspace, error) {
	if taskID == "" || taskID != filepath.Base(taskID) || strings.HasPrefix(taskID, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTaskID, taskID)
	}

	dir := filepath.Join(root, taskID)
	ws := &Workspace{
		Root: dir,
		Src:  filepath.Join(dir, "src"),
		Dst:  filepath.Join(dir, "dst"),
	}

	for _, d := range []string{ws.Src, ws.Dst} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace: %w", err)
		}
	}

	return ws, nil
}

// Remove deletes the whole workspace
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Root)
}

// CopyTree copies the regular files, directories and symlinks under src into
// dst, creating dst if needed. File modes are preserved.
func CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// sockets, devices and pipes are not part of an application
			return nil
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PruneStale removes workspace directories under root not modified since
// olderThan and returns the names removed.
func PruneStale(root string, olderThan time.Time) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(olderThan) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove workspace %s: %w", entry.Name(), err)
		}
		removed = append(removed, entry.Name())
	}

	return removed, nil
}
