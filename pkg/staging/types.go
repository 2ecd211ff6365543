package staging

import (
	"context"
	"time"

	"github.com/platinummonkey/stager/pkg/contextkeys"
)

// State is a step of a staging run
type State string

const (
	StateIdle             State = "idle"
	StateLoading          State = "loading"
	StateValidating       State = "validating"
	StateStagingFramework State = "staging_framework"
	StateStagingFeature   State = "staging_feature"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Terminal reports whether no further transitions follow s
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition is reported to observers each time a run changes state.
// Plugin is set for the staging states.
type Transition struct {
	RunID  string
	From   State
	To     State
	Plugin string
	At     time.Time
}

// ObserveTransitions returns a context under which RunPlugins also reports
// every transition of that run to fn. fn is called synchronously from the
// run's goroutine.
func ObserveTransitions(ctx context.Context, fn func(Transition)) context.Context {
	return context.WithValue(ctx, contextkeys.TransitionObserverKey, fn)
}

// Run records the outcome of one RunPlugins call
type Run struct {
	ID          string
	State       State
	Staged      []string
	StartedAt   time.Time
	CompletedAt time.Time
	Err         error
}

// Duration is the wall time of the run
func (r *Run) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
