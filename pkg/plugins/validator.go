package plugins

import (
	"fmt"
)

// Validate checks the structural rules of an effective plugin set and
// partitions it for staging.
//
// Checks run in a fixed order: an unknown plugin type is reported before a
// missing or duplicate framework plugin, so a set that has both problems
// fails with UnknownPluginTypeError.
func Validate(plugins []Plugin) (*PluginSet, error) {
	var (
		frameworks []Plugin
		features   []Plugin
		unknown    []Plugin
	)

	for i, plugin := range plugins {
		if plugin == nil {
			return nil, fmt.Errorf("%w: nil plugin at position %d", ErrInvalidPlugin, i)
		}

		switch plugin.Type() {
		case PluginTypeFramework:
			frameworks = append(frameworks, plugin)
		case PluginTypeFeature:
			features = append(features, plugin)
		default:
			unknown = append(unknown, plugin)
		}
	}

	if len(unknown) > 0 {
		return nil, &UnknownPluginTypeError{
			Plugin: unknown[0].Name(),
			Type:   unknown[0].Type(),
		}
	}

	if len(frameworks) == 0 {
		return nil, &MissingFrameworkPluginError{Features: len(features)}
	}

	if len(frameworks) > 1 {
		names := make([]string, len(frameworks))
		for i, p := range frameworks {
			names[i] = p.Name()
		}
		return nil, &DuplicateFrameworkPluginError{Plugins: names}
	}

	return &PluginSet{
		Framework: frameworks[0],
		Features:  features,
	}, nil
}
