package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Factory builds a plugin from a validated manifest
type Factory func(*Manifest) (Plugin, error)

// Discoverer finds plugin manifests in a list of directories. Each plugin
// lives in its own subdirectory containing a plugin.yaml.
type Discoverer struct {
	dirs []string
	log  *logrus.Logger
}

// NewDiscoverer creates a discoverer over dirs
func NewDiscoverer(dirs []string, log *logrus.Logger) *Discoverer {
	if log == nil {
		log = logrus.New()
	}

	return &Discoverer{
		dirs: dirs,
		log:  log,
	}
}

// Discover returns every valid manifest found. Unreadable directories and
// invalid manifests are logged and skipped.
func (d *Discoverer) Discover(ctx context.Context) ([]*Manifest, error) {
	var manifests []*Manifest

	for _, dir := range d.dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := os.Stat(dir); os.IsNotExist(err) {
			d.log.Debugf("Plugin directory does not exist: %s", dir)
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			d.log.Warnf("Failed to read plugin directory %s: %v", dir, err)
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			pluginDir := filepath.Join(dir, entry.Name())
			manifest, err := LoadManifestFromDir(pluginDir)
			if err != nil {
				d.log.Warnf("Failed to load plugin from %s: %v", pluginDir, err)
				continue
			}

			if verrs := ValidateManifest(manifest); len(verrs) > 0 {
				d.log.Warnf("Invalid plugin manifest in %s: %v", pluginDir, verrs)
				continue
			}

			manifests = append(manifests, manifest)
		}
	}

	return manifests, nil
}

// RegisterDiscovered builds a plugin for every discovered manifest and
// registers it. It returns the number of plugins registered.
func (d *Discoverer) RegisterDiscovered(ctx context.Context, reg *Registry, factory Factory) (int, error) {
	if factory == nil {
		return 0, fmt.Errorf("plugin factory is required")
	}

	manifests, err := d.Discover(ctx)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, manifest := range manifests {
		plugin, err := factory(manifest)
		if err != nil {
			d.log.Warnf("Failed to build plugin %s: %v", manifest.Name, err)
			continue
		}

		if !plugin.Type().Known() {
			d.log.Warnf("Plugin %s declares unknown type %q; runs that include it will fail validation", plugin.Name(), plugin.Type())
		}
		if reg.Has(plugin.Name()) {
			d.log.Warnf("Plugin %s from %s replaces an earlier registration", plugin.Name(), manifest.Dir)
		}
		if err := reg.Register(plugin); err != nil {
			d.log.Warnf("Failed to register plugin %s: %v", manifest.Name, err)
			continue
		}

		registered++
		d.log.WithFields(logrus.Fields{
			"plugin":  plugin.Name(),
			"type":    plugin.Type(),
			"version": manifest.Version,
		}).Info("Registered plugin from manifest")
	}

	return registered, nil
}

// DefaultPluginDirectories returns the default plugin search directories
func DefaultPluginDirectories() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "/tmp"
	}

	return []string{
		filepath.Join(homeDir, ".stager", "plugins"),
		"/etc/stager/plugins",
		"./plugins",
	}
}
