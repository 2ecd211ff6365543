package staging

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/stager/pkg/plugins"
)

// ErrStageFailed is matched by every PluginStageFailure
var ErrStageFailed = errors.New("plugin stage failed")

// PluginStageFailure reports the plugin whose Stage call aborted a run
type PluginStageFailure struct {
	Plugin string
	Type   plugins.PluginType
	Err    error
}

func (e *PluginStageFailure) Error() string {
	return fmt.Sprintf("%s plugin %q failed: %v", e.Type, e.Plugin, e.Err)
}

func (e *PluginStageFailure) Unwrap() error {
	return e.Err
}

// Is matches ErrStageFailed
func (e *PluginStageFailure) Is(target error) bool {
	return target == ErrStageFailed
}
