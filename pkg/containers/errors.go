package containers

import "errors"

var (
	// ErrDockerNotAvailable is returned when the docker daemon cannot be reached
	ErrDockerNotAvailable = errors.New("docker is not available")

	// ErrImagePullFailed is returned when an image is neither present nor pullable
	ErrImagePullFailed = errors.New("failed to pull docker image")

	// ErrContainerFailed is returned when a plugin container cannot run or exits non-zero
	ErrContainerFailed = errors.New("container execution failed")

	// ErrTimeout is returned when a plugin container outlives its timeout
	ErrTimeout = errors.New("execution timeout")

	// ErrNoContainerSpec is returned when a manifest has no container section
	ErrNoContainerSpec = errors.New("manifest has no container spec")
)
