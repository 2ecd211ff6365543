package plugins

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPluginNotFound is returned when a reference cannot be materialized
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrUnknownPluginType is returned when a plugin is neither framework nor feature
	ErrUnknownPluginType = errors.New("unknown plugin type")

	// ErrMissingFrameworkPlugin is returned when the effective set has no framework plugin
	ErrMissingFrameworkPlugin = errors.New("missing framework plugin")

	// ErrDuplicateFrameworkPlugin is returned when the effective set has several framework plugins
	ErrDuplicateFrameworkPlugin = errors.New("duplicate framework plugin")

	// ErrInvalidPlugin is returned when registering a nil or unnamed plugin
	ErrInvalidPlugin = errors.New("invalid plugin")
)

// PluginNotFoundError reports a plugin reference that names no registered plugin
type PluginNotFoundError struct {
	Kind string
	Name string
}

func (e *PluginNotFoundError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("plugin not found: %q", e.Name)
	}
	return fmt.Sprintf("plugin not found: %q (source: %s)", e.Name, e.Kind)
}

// Is matches ErrPluginNotFound
func (e *PluginNotFoundError) Is(target error) bool {
	return target == ErrPluginNotFound
}

// UnknownPluginTypeError names the first plugin whose type is not recognized
type UnknownPluginTypeError struct {
	Plugin string
	Type   PluginType
}

func (e *UnknownPluginTypeError) Error() string {
	return fmt.Sprintf("unknown plugin type %q for plugin %q (expected %s or %s)",
		e.Type, e.Plugin, PluginTypeFramework, PluginTypeFeature)
}

// Is matches ErrUnknownPluginType
func (e *UnknownPluginTypeError) Is(target error) bool {
	return target == ErrUnknownPluginType
}

// MissingFrameworkPluginError reports an effective set without a framework plugin
type MissingFrameworkPluginError struct {
	// Features is the number of feature plugins that were present
	Features int
}

func (e *MissingFrameworkPluginError) Error() string {
	return fmt.Sprintf("expected exactly one framework plugin, found 0 (%d feature plugins)", e.Features)
}

// Is matches ErrMissingFrameworkPlugin
func (e *MissingFrameworkPluginError) Is(target error) bool {
	return target == ErrMissingFrameworkPlugin
}

// DuplicateFrameworkPluginError names every framework plugin in the effective set
type DuplicateFrameworkPluginError struct {
	Plugins []string
}

func (e *DuplicateFrameworkPluginError) Error() string {
	return fmt.Sprintf("expected exactly one framework plugin, found %d: %s",
		len(e.Plugins), strings.Join(e.Plugins, ", "))
}

// Is matches ErrDuplicateFrameworkPlugin
func (e *DuplicateFrameworkPluginError) Is(target error) bool {
	return target == ErrDuplicateFrameworkPlugin
}

// ValidationReason classifies a plugin set validation error for metrics and
// API responses. It returns "" for errors that are not validation errors.
func ValidationReason(err error) string {
	switch {
	case errors.Is(err, ErrPluginNotFound):
		return "plugin_not_found"
	case errors.Is(err, ErrUnknownPluginType):
		return "unknown_plugin_type"
	case errors.Is(err, ErrMissingFrameworkPlugin):
		return "missing_framework"
	case errors.Is(err, ErrDuplicateFrameworkPlugin):
		return "duplicate_framework"
	default:
		return ""
	}
}
