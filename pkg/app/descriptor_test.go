package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDescriptorYAML = `
id: 1
name: testapp
framework: sinatra
runtime: ruby18
plugins:
  - gem:
      name: sinatra
  - kind: builtin
    name: services
  - name: limits
service_configs: []
service_bindings:
  - label: redis-2.2
    credentials:
      host: 10.0.0.1
resource_limits:
  memory: 128
  disk: 2048
  fds: 1024
`

func TestParseDescriptor_YAML(t *testing.T) {
	desc, err := ParseDescriptor([]byte(testDescriptorYAML), "yaml")
	require.NoError(t, err)

	assert.Equal(t, int64(1), desc.ID)
	assert.Equal(t, "testapp", desc.Name)
	assert.Equal(t, "sinatra", desc.Framework)
	assert.Equal(t, "ruby18", desc.Runtime)
	assert.Equal(t, []PluginReference{
		{Kind: "gem", Name: "sinatra"},
		{Kind: "builtin", Name: "services"},
		{Kind: DefaultReferenceKind, Name: "limits"},
	}, desc.Plugins)
	require.Len(t, desc.ServiceBindings, 1)
	assert.Equal(t, "redis-2.2", desc.ServiceBindings[0]["label"])
	assert.Equal(t, ResourceLimits{Memory: 128, Disk: 2048, FDs: 1024}, desc.ResourceLimits)
}

func TestParseDescriptor_JSON(t *testing.T) {
	data := []byte(`{
		"id": 7,
		"name": "api",
		"plugins": [{"gem": {"name": "invalid_gem"}}, {"kind": "container", "name": "jdk"}],
		"resource_limits": {"memory": 256, "disk": 1024, "fds": 256}
	}`)

	desc, err := ParseDescriptor(data, "json")
	require.NoError(t, err)

	assert.Equal(t, int64(7), desc.ID)
	assert.Equal(t, []PluginReference{
		{Kind: "gem", Name: "invalid_gem"},
		{Kind: "container", Name: "jdk"},
	}, desc.Plugins)
}

func TestParseDescriptor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  string
		errType error
	}{
		{
			name:    "unsupported format",
			data:    `{}`,
			format:  "toml",
			errType: ErrUnsupportedFormat,
		},
		{
			name:   "nested reference without name",
			data:   `{"plugins": [{"gem": {"version": "1.0"}}]}`,
			format: "json",
		},
		{
			name:   "reference with several kinds",
			data:   `{"plugins": [{"gem": {"name": "a"}, "builtin": {"name": "b"}}]}`,
			format: "json",
		},
		{
			name:   "nested reference with null name",
			data:   "plugins:\n  - gem: {name: null}\n",
			format: "yaml",
		},
		{
			name:   "nested reference with empty yaml name",
			data:   "plugins:\n  - gem: {name: }\n",
			format: "yaml",
		},
		{
			name:   "flat reference with numeric name",
			data:   `{"plugins": [{"kind": "gem", "name": 5}]}`,
			format: "json",
		},
		{
			name:   "flat reference with null name",
			data:   `{"plugins": [{"name": null}]}`,
			format: "json",
		},
		{
			name:   "flat reference with numeric kind",
			data:   "plugins:\n  - {kind: 3, name: sinatra}\n",
			format: "yaml",
		},
		{
			name:   "nested reference that is not a mapping",
			data:   "plugins:\n  - gem: sinatra\n",
			format: "yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(tt.data), tt.format)
			require.Error(t, err)
			if tt.errType != nil {
				assert.ErrorIs(t, err, tt.errType)
			}
		})
	}
}

func TestLoadDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yml")
	require.NoError(t, os.WriteFile(path, []byte(testDescriptorYAML), 0644))

	desc, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "testapp", desc.Name)

	_, err = LoadDescriptor(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestDescriptor_Clone(t *testing.T) {
	orig := Descriptor{
		Name:            "testapp",
		Plugins:         []PluginReference{{Kind: "gem", Name: "sinatra"}},
		ServiceBindings: []map[string]any{{"label": "mysql"}},
	}

	clone := orig.Clone()
	clone.Plugins[0].Name = "node"
	clone.ServiceBindings[0]["label"] = "postgres"

	assert.Equal(t, "sinatra", orig.Plugins[0].Name)
	assert.Equal(t, "mysql", orig.ServiceBindings[0]["label"])
	assert.Nil(t, orig.Clone().ServiceConfigs)
}

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		wantErr bool
	}{
		{name: "valid", desc: Descriptor{Name: "testapp", ResourceLimits: ResourceLimits{Memory: 128}}},
		{name: "missing name", desc: Descriptor{}, wantErr: true},
		{name: "negative memory", desc: Descriptor{Name: "a", ResourceLimits: ResourceLimits{Memory: -1}}, wantErr: true},
		{name: "negative fds", desc: Descriptor{Name: "a", ResourceLimits: ResourceLimits{FDs: -1}}, wantErr: true},
		{name: "empty reference", desc: Descriptor{Name: "a", Plugins: []PluginReference{{Kind: "gem"}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDescriptor)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestControllerInfo_Validate(t *testing.T) {
	tests := []struct {
		name    string
		info    ControllerInfo
		wantErr bool
	}{
		{name: "valid", info: ControllerInfo{Host: "127.0.0.1", Port: 9090, TaskID: "test_task_id"}},
		{name: "missing host", info: ControllerInfo{Port: 9090, TaskID: "t"}, wantErr: true},
		{name: "port zero", info: ControllerInfo{Host: "h", TaskID: "t"}, wantErr: true},
		{name: "port too large", info: ControllerInfo{Host: "h", Port: 65536, TaskID: "t"}, wantErr: true},
		{name: "missing task id", info: ControllerInfo{Host: "h", Port: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidControllerInfo)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Equal(t, "127.0.0.1:9090", ControllerInfo{Host: "127.0.0.1", Port: 9090}.Address())
}
