// Package plugins defines the staging plugin contract and the pieces that
// assemble an effective plugin set for one staging run.
//
// # Overview
//
// A Plugin has a name, a type (framework or feature) and a Stage operation
// that runs against a shared StageContext. Every run needs exactly one
// framework plugin and any number of feature plugins.
//
// # Components
//
// Registry: name-keyed table of plugin instances, iterated in registration
// order. Registering an existing name replaces the earlier plugin.
//
// Loader: resolves app.PluginReference values against a Registry and fails
// with PluginNotFoundError when nothing matches.
//
// Validate: partitions a plugin list into the framework plugin and the
// feature plugins, reporting UnknownPluginTypeError,
// MissingFrameworkPluginError or DuplicateFrameworkPluginError.
//
// Discoverer: reads plugin.yaml manifests from plugin directories so that
// container-backed plugins can be added to a reference-only registry at
// startup. A Loader built over several registries searches them in order.
//
// # Usage Example
//
//	reg := plugins.NewRegistry()
//	reg.MustRegister(myFramework, myFeature)
//
//	loader := plugins.NewLoader(reg)
//	p, err := loader.Resolve(app.PluginReference{Kind: "gem", Name: "sinatra"})
//	if errors.Is(err, plugins.ErrPluginNotFound) {
//		// ...
//	}
//
//	set, err := plugins.Validate(reg.All())
//	if err != nil {
//		return err
//	}
//	for _, p := range set.Ordered() {
//		// stage p
//	}
//
// # Related Packages
//
//   - pkg/staging: drives a validated plugin set
//   - pkg/plugins/builtin: framework and feature plugins shipped with the stager
//   - pkg/containers: plugins that stage inside docker containers
package plugins
