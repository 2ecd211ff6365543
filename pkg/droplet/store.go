package droplet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"
)

// Object describes a stored droplet
type Object struct {
	Key      string            `json:"key"`
	Sha256   string            `json:"sha256"`
	Size     int64             `json:"size"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store persists packed droplets
type Store interface {
	// Put stores an archive under key
	Put(ctx context.Context, key string, a *Archive, meta map[string]string) (*Object, error)

	// Get opens the stored archive. Missing keys fail with ErrDropletNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether key has a stored archive
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a location the droplet can be downloaded from for ttl
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Key returns the storage key of a task's droplet
func Key(appID int64, taskID string) string {
	return path.Join("droplets", strconv.FormatInt(appID, 10), taskID, "droplet.tgz")
}

// FileStore keeps droplets under a local directory, with a JSON sidecar
// holding the object metadata
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at root
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create droplet root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(key string) (string, error) {
	p := filepath.FromSlash(key)
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, key)
	}
	return filepath.Join(s.root, p), nil
}

// Put implements Store
func (s *FileStore) Put(ctx context.Context, key string, a *Archive, meta map[string]string) (*Object, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	// Write then rename so readers never see a partial droplet
	tmp, err := os.CreateTemp(filepath.Dir(target), ".droplet-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	obj := &Object{Key: key, Sha256: a.Sha256, Size: int64(len(a.Data)), Metadata: meta}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := os.WriteFile(target+".json", data, 0644); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return obj, nil
}

// Get implements Store
func (s *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDropletNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return f, nil
}

// Stat returns the metadata recorded by Put
func (s *FileStore) Stat(key string) (*Object, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target + ".json")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDropletNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode droplet metadata: %w", err)
	}
	return &obj, nil
}

// Exists implements Store
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	target, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Delete implements Store
func (s *FileStore) Delete(ctx context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	for _, p := range []string{target, target + ".json"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete droplet: %w", err)
		}
	}
	return nil
}

// URL returns a file:// URL. File URLs do not expire, so ttl is ignored.
func (s *FileStore) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	target, err := s.path(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
