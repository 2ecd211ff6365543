package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a staging task
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Terminal reports whether the task has finished
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Task tracks one staging request
type Task struct {
	ID               string `json:"id"`
	AppID            int64  `json:"app_id"`
	AppName          string `json:"app_name"`
	ControllerTaskID string `json:"controller_task_id"`

	State State  `json:"state"`
	Stage string `json:"stage,omitempty"` // last orchestrator state reached
	Error string `json:"error,omitempty"`

	DropletKey string `json:"droplet_key,omitempty"`
	DropletSHA string `json:"droplet_sha256,omitempty"`
	CacheHit   bool   `json:"cache_hit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a pending task with a fresh ID
func New(appID int64, appName, controllerTaskID string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:               uuid.New().String(),
		AppID:            appID,
		AppName:          appName,
		ControllerTaskID: controllerTaskID,
		State:            StatePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a copy of t
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// Store persists tasks
type Store interface {
	// Create stores a new task. Existing IDs fail with ErrTaskExists.
	Create(ctx context.Context, t *Task) error

	// Update replaces a stored task. Unknown IDs fail with ErrTaskNotFound.
	Update(ctx context.Context, t *Task) error

	// Get returns a task or ErrTaskNotFound
	Get(ctx context.Context, id string) (*Task, error)

	// List returns up to limit tasks, newest first. A non-positive limit
	// returns every task.
	List(ctx context.Context, limit int) ([]*Task, error)

	// DeleteBefore removes finished tasks last updated before cutoff and
	// returns how many were removed
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases the store's connections
	Close() error
}

func validate(t *Task) error {
	if t == nil || t.ID == "" {
		return ErrInvalidTask
	}
	return nil
}
