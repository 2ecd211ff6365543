package plugins

import (
	"testing"

	"github.com/platinummonkey/stager/pkg/app"
	"github.com/stretchr/testify/assert"
)

func testDescriptor() app.Descriptor {
	return app.Descriptor{
		ID:              1,
		Name:            "testapp",
		Framework:       "sinatra",
		Runtime:         "ruby18",
		Plugins:         []app.PluginReference{},
		ServiceConfigs:  []map[string]any{},
		ServiceBindings: []map[string]any{{"label": "redis"}},
		ResourceLimits:  app.ResourceLimits{Memory: 128, Disk: 2048, FDs: 1024},
	}
}

func TestNewStageContext(t *testing.T) {
	desc := testDescriptor()
	ci := app.ControllerInfo{Host: "127.0.0.1", Port: 9090, TaskID: "test_task_id"}

	sc := NewStageContext("/src", "/dst", desc, ci)

	assert.Equal(t, "/src", sc.SourceDir)
	assert.Equal(t, "/dst", sc.DestDir)
	assert.Equal(t, desc, sc.App)
	assert.Equal(t, ci, sc.Controller)

	// The context holds its own copy of the descriptor records
	sc.App.ServiceBindings[0]["label"] = "changed"
	assert.Equal(t, "redis", desc.ServiceBindings[0]["label"])
}

func TestStageContext_Env(t *testing.T) {
	sc := NewStageContext("/src", "/dst", testDescriptor(),
		app.ControllerInfo{Host: "127.0.0.1", Port: 9090, TaskID: "test_task_id"})

	env := sc.Env()

	assert.Equal(t, "/src", env["STAGING_SOURCE_DIR"])
	assert.Equal(t, "/dst", env["STAGING_DEST_DIR"])
	assert.Equal(t, "1", env["VCAP_APP_ID"])
	assert.Equal(t, "testapp", env["VCAP_APP_NAME"])
	assert.Equal(t, "ruby18", env["VCAP_RUNTIME"])
	assert.Equal(t, "test_task_id", env["VCAP_TASK_ID"])
	assert.Equal(t, "127.0.0.1:9090", env["VCAP_CONTROLLER"])
	assert.Equal(t, "128m", env["MEMORY_LIMIT"])
	assert.Equal(t, "2048m", env["DISK_LIMIT"])
	assert.Equal(t, "1024", env["FD_LIMIT"])
	assert.JSONEq(t, `[{"label":"redis"}]`, env["VCAP_SERVICES"])
}

func TestStageContext_EnvWithoutServices(t *testing.T) {
	desc := testDescriptor()
	desc.ServiceBindings = nil

	env := NewStageContext("/src", "/dst", desc, app.ControllerInfo{}).Env()
	_, ok := env["VCAP_SERVICES"]
	assert.False(t, ok)
}
