package app

import "errors"

var (
	// ErrInvalidDescriptor is returned when an app descriptor fails validation
	ErrInvalidDescriptor = errors.New("invalid app descriptor")

	// ErrInvalidControllerInfo is returned when controller info fails validation
	ErrInvalidControllerInfo = errors.New("invalid controller info")

	// ErrUnsupportedFormat is returned for descriptor files that are neither JSON nor YAML
	ErrUnsupportedFormat = errors.New("unsupported descriptor format")
)
