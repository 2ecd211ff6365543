package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/stager/pkg/plugins"
)

const (
	// ServicesFile holds the app's service configs and bindings
	ServicesFile = "services.json"
	// LimitsFile holds the app's resource limits as shell assignments
	LimitsFile = "limits.env"
)

// Services is a feature plugin that writes the app's service records into
// the droplet
type Services struct{}

func (Services) Name() string { return "services" }

func (Services) Type() plugins.PluginType { return plugins.PluginTypeFeature }

type servicesDocument struct {
	ServiceConfigs  []map[string]any `json:"service_configs"`
	ServiceBindings []map[string]any `json:"service_bindings"`
}

// Stage implements plugins.Plugin
func (Services) Stage(ctx context.Context, sc *plugins.StageContext) error {
	doc := servicesDocument{
		ServiceConfigs:  sc.App.ServiceConfigs,
		ServiceBindings: sc.App.ServiceBindings,
	}
	if doc.ServiceConfigs == nil {
		doc.ServiceConfigs = []map[string]any{}
	}
	if doc.ServiceBindings == nil {
		doc.ServiceBindings = []map[string]any{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode services: %w", err)
	}

	if err := os.WriteFile(filepath.Join(sc.DestDir, ServicesFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ServicesFile, err)
	}
	return nil
}

// Limits is a feature plugin that writes the app's resource limits
type Limits struct{}

func (Limits) Name() string { return "limits" }

func (Limits) Type() plugins.PluginType { return plugins.PluginTypeFeature }

// Stage implements plugins.Plugin
func (Limits) Stage(ctx context.Context, sc *plugins.StageContext) error {
	env := sc.Env()

	var b strings.Builder
	for _, key := range []string{"MEMORY_LIMIT", "DISK_LIMIT", "FD_LIMIT"} {
		fmt.Fprintf(&b, "%s=%s\n", key, env[key])
	}

	if err := os.WriteFile(filepath.Join(sc.DestDir, LimitsFile), []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", LimitsFile, err)
	}
	return nil
}
