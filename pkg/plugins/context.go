package plugins

import (
	"encoding/json"
	"strconv"

	"github.com/platinummonkey/stager/pkg/app"
)

// StageContext is the per-run record shared by every plugin invocation
type StageContext struct {
	SourceDir  string
	DestDir    string
	App        app.Descriptor
	Controller app.ControllerInfo
}

// NewStageContext assembles a stage context. It performs no I/O and does not
// check that the directories exist.
func NewStageContext(sourceDir, destDir string, desc app.Descriptor, controller app.ControllerInfo) *StageContext {
	return &StageContext{
		SourceDir:  sourceDir,
		DestDir:    destDir,
		App:        desc.Clone(),
		Controller: controller,
	}
}

// Env derives the environment handed to plugins that run external processes
func (sc *StageContext) Env() map[string]string {
	env := map[string]string{
		"STAGING_SOURCE_DIR": sc.SourceDir,
		"STAGING_DEST_DIR":   sc.DestDir,
		"VCAP_APP_ID":        strconv.FormatInt(sc.App.ID, 10),
		"VCAP_APP_NAME":      sc.App.Name,
		"VCAP_FRAMEWORK":     sc.App.Framework,
		"VCAP_RUNTIME":       sc.App.Runtime,
		"VCAP_TASK_ID":       sc.Controller.TaskID,
		"VCAP_CONTROLLER":    sc.Controller.Address(),
		"MEMORY_LIMIT":       strconv.FormatInt(sc.App.ResourceLimits.Memory, 10) + "m",
		"DISK_LIMIT":         strconv.FormatInt(sc.App.ResourceLimits.Disk, 10) + "m",
		"FD_LIMIT":           strconv.FormatInt(sc.App.ResourceLimits.FDs, 10),
	}

	if len(sc.App.ServiceBindings) > 0 {
		if data, err := json.Marshal(sc.App.ServiceBindings); err == nil {
			env["VCAP_SERVICES"] = string(data)
		}
	}

	return env
}
