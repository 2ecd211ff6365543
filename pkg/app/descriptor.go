package app

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultReferenceKind is assumed when a flat plugin reference omits its kind
const DefaultReferenceKind = "gem"

// Descriptor describes the application being staged. It is immutable for
// the duration of a staging run.
type Descriptor struct {
	ID              int64             `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	Framework       string            `json:"framework" yaml:"framework"`
	Runtime         string            `json:"runtime" yaml:"runtime"`
	Plugins         []PluginReference `json:"plugins" yaml:"plugins"`
	ServiceConfigs  []map[string]any  `json:"service_configs" yaml:"service_configs"`
	ServiceBindings []map[string]any  `json:"service_bindings" yaml:"service_bindings"`
	ResourceLimits  ResourceLimits    `json:"resource_limits" yaml:"resource_limits"`
}

// ResourceLimits are the per-app limits handed to plugins
type ResourceLimits struct {
	Memory int64 `json:"memory" yaml:"memory"` // MB
	Disk   int64 `json:"disk" yaml:"disk"`     // MB
	FDs    int64 `json:"fds" yaml:"fds"`
}

// ControllerInfo identifies the staging task to the controller
type ControllerInfo struct {
	Host   string `json:"host" yaml:"host"`
	Port   int    `json:"port" yaml:"port"`
	TaskID string `json:"task_id" yaml:"task_id"`
}

// PluginReference names a plugin to load for an app. Two encodings are accepted:
//
//	{kind: gem, name: sinatra}
//	{gem: {name: sinatra}}
type PluginReference struct {
	Kind string `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
}

// String renders the reference as kind:name
func (r PluginReference) String() string {
	return r.Kind + ":" + r.Name
}

// UnmarshalJSON accepts both the flat and the nested encoding
func (r *PluginReference) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid plugin reference: %w", err)
	}
	return r.fromMap(raw)
}

// UnmarshalYAML accepts both the flat and the nested encoding
func (r *PluginReference) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid plugin reference: %w", err)
	}
	return r.fromMap(raw)
}

func (r *PluginReference) fromMap(raw map[string]any) error {
	if name, ok := raw["name"]; ok {
		kind := DefaultReferenceKind
		if v, ok := raw["kind"]; ok {
			s, isString := v.(string)
			if !isString {
				return fmt.Errorf("invalid plugin reference: kind must be a string, got %v", v)
			}
			kind = s
		}
		return r.set(kind, name)
	}

	if len(raw) != 1 {
		return fmt.Errorf("invalid plugin reference: expected a single source kind, got %d keys", len(raw))
	}

	for kind, v := range raw {
		inner, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("invalid plugin reference: %s must be a mapping", kind)
		}
		name, ok := inner["name"]
		if !ok {
			return fmt.Errorf("invalid plugin reference: %s has no name", kind)
		}
		if err := r.set(kind, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *PluginReference) set(kind string, name any) error {
	s, ok := name.(string)
	if !ok {
		return fmt.Errorf("invalid plugin reference: %s name must be a string, got %v", kind, name)
	}
	r.Kind = kind
	r.Name = s
	return nil
}

// Clone returns a copy whose slices and maps are independent of d
func (d Descriptor) Clone() Descriptor {
	out := d
	out.Plugins = slices.Clone(d.Plugins)
	out.ServiceConfigs = cloneRecords(d.ServiceConfigs)
	out.ServiceBindings = cloneRecords(d.ServiceBindings)
	return out
}

func cloneRecords(in []map[string]any) []map[string]any {
	if in == nil {
		return nil
	}
	out := make([]map[string]any, len(in))
	for i, m := range in {
		out[i] = maps.Clone(m)
	}
	return out
}

// Validate checks the fields outer callers are expected to guarantee. The
// orchestrator itself never calls it.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if d.ResourceLimits.Memory < 0 || d.ResourceLimits.Disk < 0 || d.ResourceLimits.FDs < 0 {
		return fmt.Errorf("%w: resource limits must be non-negative", ErrInvalidDescriptor)
	}
	for i, ref := range d.Plugins {
		if ref.Name == "" {
			return fmt.Errorf("%w: plugin reference %d has no name", ErrInvalidDescriptor, i)
		}
	}
	return nil
}

// Validate checks that the controller can be reached and the task identified
func (c ControllerInfo) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidControllerInfo)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidControllerInfo, c.Port)
	}
	if c.TaskID == "" {
		return fmt.Errorf("%w: task_id is required", ErrInvalidControllerInfo)
	}
	return nil
}

// Address returns host:port
func (c ControllerInfo) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseDescriptor decodes a descriptor. format is "json" or "yaml".
func ParseDescriptor(data []byte, format string) (*Descriptor, error) {
	var desc Descriptor

	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &desc); err != nil {
			return nil, fmt.Errorf("failed to parse descriptor: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &desc); err != nil {
			return nil, fmt.Errorf("failed to parse descriptor: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return &desc, nil
}

// LoadDescriptor reads a descriptor file, choosing the format by extension
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	return ParseDescriptor(data, FormatFromPath(path))
}

// FormatFromPath maps a file extension to a decoder format
func FormatFromPath(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
