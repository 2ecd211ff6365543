package service

import "errors"

var (
	// ErrInvalidRequest is returned for requests that fail validation before
	// any task is created
	ErrInvalidRequest = errors.New("invalid staging request")

	// ErrBusy is returned by Submit when the staging queue is full
	ErrBusy = errors.New("staging queue full")

	// ErrShuttingDown is returned by Submit once Shutdown has been called
	ErrShuttingDown = errors.New("staging service shutting down")
)
