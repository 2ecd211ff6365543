package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

const (
	// ManifestFileName is the manifest file looked up in each plugin directory
	ManifestFileName = "plugin.yaml"

	// CurrentAPIVersion is the plugin manifest API version understood by this build
	CurrentAPIVersion = "1.0.0"
)

var (
	semverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)
	nameRegex   = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// Manifest declares a plugin that is registered at startup
type Manifest struct {
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	APIVersion  string            `yaml:"api_version"`
	Type        PluginType        `yaml:"type"`
	Description string            `yaml:"description,omitempty"`
	Container   *ContainerSpec    `yaml:"container,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`

	// Dir is the directory the manifest was loaded from
	Dir string `yaml:"-"`
}

// ContainerSpec describes the image a container-backed plugin runs
type ContainerSpec struct {
	Image    string            `yaml:"image"`
	Tag      string            `yaml:"tag,omitempty"`
	Command  []string          `yaml:"command,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	MemoryMB int64             `yaml:"memory_mb,omitempty"`
}

// ImageRef returns image:tag, or the bare image when no tag is set
func (c *ContainerSpec) ImageRef() string {
	if c.Tag == "" {
		return c.Image
	}
	return c.Image + ":" + c.Tag
}

// ValidationError represents a manifest validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// LoadManifest loads and parses a plugin manifest from a file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	manifest.Dir = filepath.Dir(path)

	return &manifest, nil
}

// LoadManifestFromDir loads <dir>/plugin.yaml
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestFileName))
}

// SaveManifest writes a manifest as YAML
func SaveManifest(manifest *Manifest, path string) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// ValidateManifest checks a manifest for the fields needed to build a plugin.
//
// The type is only required to be present: a plugin declaring an unrecognized
// type is still registered, and the run that picks it up fails with
// UnknownPluginTypeError.
func ValidateManifest(manifest *Manifest) []ValidationError {
	var errs []ValidationError

	if manifest.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "plugin name is required"})
	} else if !nameRegex.MatchString(manifest.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("plugin name %q must be lowercase alphanumeric with '-' or '_'", manifest.Name),
		})
	}

	if manifest.Version == "" {
		errs = append(errs, ValidationError{Field: "version", Message: "version is required"})
	} else if !isValidSemver(manifest.Version) {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("invalid semver format: %s", manifest.Version),
		})
	}

	if manifest.APIVersion == "" {
		errs = append(errs, ValidationError{Field: "api_version", Message: "API version is required"})
	} else if !isValidSemver(manifest.APIVersion) {
		errs = append(errs, ValidationError{
			Field:   "api_version",
			Message: fmt.Sprintf("invalid semver format: %s", manifest.APIVersion),
		})
	} else if !IsCompatibleAPIVersion(manifest.APIVersion, CurrentAPIVersion) {
		errs = append(errs, ValidationError{
			Field:   "api_version",
			Message: fmt.Sprintf("incompatible API version %s (supported: %s)", manifest.APIVersion, CurrentAPIVersion),
		})
	}

	if manifest.Type == "" {
		errs = append(errs, ValidationError{Field: "type", Message: "plugin type is required"})
	}

	if manifest.Container == nil || manifest.Container.Image == "" {
		errs = append(errs, ValidationError{Field: "container.image", Message: "container image is required"})
	} else if manifest.Container.MemoryMB < 0 {
		errs = append(errs, ValidationError{Field: "container.memory_mb", Message: "memory must be non-negative"})
	}

	return errs
}

func isValidSemver(version string) bool {
	return semverRegex.MatchString(version)
}

// IsCompatibleAPIVersion reports whether two API versions share a major version
func IsCompatibleAPIVersion(pluginAPIVersion, currentAPIVersion string) bool {
	return extractMajorVersion(pluginAPIVersion) == extractMajorVersion(currentAPIVersion)
}

func extractMajorVersion(version string) string {
	matches := semverRegex.FindStringSubmatch(version)
	if len(matches) > 1 {
		return matches[1]
	}
	return "0"
}
