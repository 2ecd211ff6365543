package builtin

import (
	"github.com/platinummonkey/stager/pkg/plugins"
)

// DefaultFrameworks returns the framework specs staged by the default detector
func DefaultFrameworks() []FrameworkSpec {
	return []FrameworkSpec{
		getSinatraSpec(),
		getNodeSpec(),
		getStandaloneSpec(),
	}
}

func getSinatraSpec() FrameworkSpec {
	return FrameworkSpec{
		Name:         "sinatra",
		StartCommand: "bundle exec ruby app.rb -p $VCAP_APP_PORT",
		Runtimes:     []string{"ruby18", "ruby19"},
		Env: map[string]string{
			"RACK_ENV": "production",
		},
	}
}

func getNodeSpec() FrameworkSpec {
	return FrameworkSpec{
		Name:         "node",
		StartCommand: "node app.js",
		Runtimes:     []string{"node"},
		Env: map[string]string{
			"NODE_ENV": "production",
		},
	}
}

func getStandaloneSpec() FrameworkSpec {
	return FrameworkSpec{
		Name:         "standalone",
		StartCommand: "./start.sh",
	}
}

// DefaultPlugins returns the plugins registered by RegisterDefaults: one
// framework detector and the services and limits features.
func DefaultPlugins() []plugins.Plugin {
	return []plugins.Plugin{
		NewDetector(DetectorName, DefaultFrameworks()...),
		Services{},
		Limits{},
	}
}

// RegisterDefaults registers DefaultPlugins into reg
func RegisterDefaults(reg *plugins.Registry) error {
	for _, p := range DefaultPlugins() {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
