package tasks

import "errors"

var (
	// ErrTaskNotFound is returned when a task ID has no record
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned when creating a task whose ID is taken
	ErrTaskExists = errors.New("task already exists")

	// ErrInvalidTask is returned for tasks missing an ID
	ErrInvalidTask = errors.New("invalid task")
)
