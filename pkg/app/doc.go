// Package app defines the records a staging run consumes: the app descriptor,
// its plugin references and the controller connection info.
//
// Descriptors can be decoded from JSON or YAML. Plugin references accept the
// flat form ({kind: gem, name: sinatra}) as well as the nested form used by
// older controllers ({gem: {name: sinatra}}).
package app
