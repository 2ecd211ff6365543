// Package staging runs the plugins of a staging request.
//
// An Orchestrator takes an application descriptor and a source/destination
// workspace pair and moves through a fixed sequence of states:
//
//	idle -> loading -> validating -> staging_framework -> staging_feature* -> done
//
// Any state may end in failed. Loading resolves the descriptor's plugin
// references and, unless disabled with WithAmbientDiscovery(false), adds every
// plugin in the registry that was not referenced. Validating requires exactly
// one framework plugin. Staging calls the framework plugin first and then each
// feature plugin, stopping at the first error.
//
// # Usage
//
//	reg := plugins.NewRegistry()
//	builtin.RegisterDefaults(reg)
//
//	orch := staging.NewOrchestrator(reg, staging.WithLogger(log))
//	run, err := orch.RunPlugins(ctx, srcDir, dstDir, desc, controller)
//	var failure *staging.PluginStageFailure
//	if errors.As(err, &failure) {
//		log.Errorf("plugin %s failed: %v", failure.Plugin, failure.Err)
//	}
//
// Partial output left in the destination by plugins that ran before a
// failure is not cleaned up.
package staging
