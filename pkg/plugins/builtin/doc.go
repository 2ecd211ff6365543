// Package builtin provides the plugins every stager ships with.
//
// RegisterDefaults adds a framework detector covering sinatra, node and
// standalone applications plus two features: services, which writes
// services.json, and limits, which writes limits.env. Individual Framework
// plugins can be registered instead of the detector when ambient discovery
// is disabled and apps reference their framework explicitly.
package builtin
