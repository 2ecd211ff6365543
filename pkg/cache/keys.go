// Package cache provides the staging result cache and its key generation.
//
// Keys are built from inputs sorted into a fixed order, so identical staging
// inputs produce identical keys regardless of directory walk order or plugin
// reference order:
//   - Source files: sorted by slash-separated relative path
//   - Plugin references: sorted by Kind, then Name
//   - App settings: JSON encoded, which sorts map keys
//
// Key format version: v1
// Format: v1:{framework}:{runtime}:{sourceHash}:{pluginsHash}:{appHash}
//
// Changing the format or any hash algorithm invalidates every cached entry;
// bump the version prefix when doing so.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/platinummonkey/stager/pkg/app"
)

// KeyVersion prefixes every key string
const KeyVersion = "v1"

// Key identifies a staging input
type Key struct {
	Framework   string
	Runtime     string
	SourceHash  string
	PluginsHash string
	AppHash     string
}

// String formats the key for storage
func (k *Key) String() string {
	return strings.Join([]string{
		KeyVersion,
		k.Framework,
		k.Runtime,
		k.SourceHash,
		k.PluginsHash,
		k.AppHash,
	}, ":")
}

// GenerateKey hashes the source tree at srcDir and the staging-relevant
// parts of desc
func GenerateKey(srcDir string, desc app.Descriptor) (*Key, error) {
	sourceHash, err := hashSourceTree(srcDir)
	if err != nil {
		return nil, err
	}
	appHash, err := hashApp(desc)
	if err != nil {
		return nil, err
	}

	return &Key{
		Framework:   desc.Framework,
		Runtime:     desc.Runtime,
		SourceHash:  sourceHash,
		PluginsHash: hashPlugins(desc.Plugins),
		AppHash:     appHash,
	}, nil
}

// hashSourceTree hashes every entry under dir.
//
// Algorithm:
//  1. Collect relative slash paths and sort them
//  2. Directories hash as: path + "/" + \0
//  3. Symlinks hash as: path + \0 + "->" + target + \0
//  4. Regular files hash as: path + \0 + content + \0
func hashSourceTree(dir string) (string, error) {
	type entry struct {
		rel  string
		abs  string
		mode fs.FileMode
	}

	var entries []entry
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), abs: p, mode: d.Type()})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to hash source tree: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].rel < entries[j].rel
	})

	hasher := sha256.New()
	for _, e := range entries {
		switch {
		case e.mode.IsDir():
			hasher.Write([]byte(e.rel + "/"))
			hasher.Write([]byte{0})
		case e.mode&fs.ModeSymlink != 0:
			target, err := os.Readlink(e.abs)
			if err != nil {
				return "", fmt.Errorf("failed to hash source tree: %w", err)
			}
			hasher.Write([]byte(e.rel))
			hasher.Write([]byte{0})
			hasher.Write([]byte("->" + target))
			hasher.Write([]byte{0})
		case e.mode.IsRegular():
			hasher.Write([]byte(e.rel))
			hasher.Write([]byte{0})
			if err := hashFile(hasher, e.abs); err != nil {
				return "", fmt.Errorf("failed to hash source tree: %w", err)
			}
			hasher.Write([]byte{0})
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// hashPlugins hashes kind + \0 + name + \0 for each reference in sorted
// order and returns the first 16 hex characters
func hashPlugins(refs []app.PluginReference) string {
	sorted := make([]app.PluginReference, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Kind < sorted[j].Kind ||
			(sorted[i].Kind == sorted[j].Kind && sorted[i].Name < sorted[j].Name)
	})

	hasher := sha256.New()
	for _, ref := range sorted {
		hasher.Write([]byte(ref.Kind))
		hasher.Write([]byte{0})
		hasher.Write([]byte(ref.Name))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// hashApp covers the descriptor fields that end up inside a droplet
func hashApp(desc app.Descriptor) (string, error) {
	data, err := json.Marshal(struct {
		ID              int64              `json:"id"`
		Name            string             `json:"name"`
		ServiceConfigs  []map[string]any   `json:"service_configs"`
		ServiceBindings []map[string]any   `json:"service_bindings"`
		ResourceLimits  app.ResourceLimits `json:"resource_limits"`
	}{desc.ID, desc.Name, desc.ServiceConfigs, desc.ServiceBindings, desc.ResourceLimits})
	if err != nil {
		return "", fmt.Errorf("failed to hash app settings: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}

// ValidateKey checks that a key carries every component
func ValidateKey(key *Key) error {
	if key == nil {
		return fmt.Errorf("%w: key is nil", ErrInvalidCacheKey)
	}
	if key.Framework == "" {
		return fmt.Errorf("%w: framework is required", ErrInvalidCacheKey)
	}
	if key.SourceHash == "" {
		return fmt.Errorf("%w: source hash is required", ErrInvalidCacheKey)
	}
	return nil
}
