// Package cli provides the stager command-line interface.
//
// # Commands
//
// stage: stage one application synchronously
//
//	stager stage \
//		-app app.yaml \
//		-src ./myapp \
//		-droplets ./droplets
//
// validate: resolve and validate an app's plugin set without staging
//
//	stager validate -app app.yaml
//
// plugins: list builtin and discovered plugins
//
//	stager plugins -json
//
// serve: run the staging API (STAGER_PORT), the health and metrics port
// (STAGER_HEALTH_PORT), the spool watcher and the retention janitor until
// SIGINT or SIGTERM
//
//	stager serve -spool-dir /var/vcap/data/stager/spool
//
// # Configuration
//
// Every command reads the STAGER_* environment described in pkg/config.
// Container plugins are discovered only when STAGER_CONTAINERS_ENABLED is
// set and a docker daemon answers.
package cli
