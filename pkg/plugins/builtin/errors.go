package builtin

import "errors"

var (
	// ErrUnsupportedRuntime is returned when a framework does not support the app runtime
	ErrUnsupportedRuntime = errors.New("unsupported runtime")

	// ErrUnsupportedFramework is returned when no framework matches the app framework
	ErrUnsupportedFramework = errors.New("unsupported framework")

	// ErrInvalidFramework is returned for framework specs without a name
	ErrInvalidFramework = errors.New("invalid framework spec")
)
