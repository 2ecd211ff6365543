package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/platinummonkey/stager/pkg/app"
	"github.com/platinummonkey/stager/pkg/observability"
	"github.com/platinummonkey/stager/pkg/plugins"
)

func (c *Command) newValidateCommand() *Command {
	return &Command{
		Name:        "validate",
		Description: "Check the plugin set an app descriptor would stage with",
		Run:         c.runValidate,
	}
}

func (c *Command) runValidate(args []string) error {
	flags := c.newFlagSet("validate")
	appFile := flags.String("app", "", "App descriptor file (.yaml or .json)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *appFile == "" {
		return fmt.Errorf("-app is required")
	}

	desc, err := app.LoadDescriptor(*appFile)
	if err != nil {
		return err
	}
	if err := desc.Validate(); err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	log := observability.NewLogrus(cfg.Observability.LogLevel, os.Stderr)

	s := &stack{cfg: cfg, log: log}
	defer s.Close()
	if err := s.buildRegistry(context.Background()); err != nil {
		return err
	}

	set, err := s.newOrchestrator().Plan(*desc)
	if err != nil {
		if reason := plugins.ValidationReason(err); reason != "" {
			return fmt.Errorf("%s: %w", reason, err)
		}
		return err
	}

	fmt.Fprintf(c.out, "%s: valid\n", desc.Name)
	fmt.Fprintf(c.out, "  framework: %s\n", set.Framework.Name())
	features := make([]string, len(set.Features))
	for i, p := range set.Features {
		features[i] = p.Name()
	}
	fmt.Fprintf(c.out, "  features:  %s\n", strings.Join(features, ", "))
	return nil
}
