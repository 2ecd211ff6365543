package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/platinummonkey/stager/pkg/observability"
)

func (c *Command) newPluginsCommand() *Command {
	return &Command{
		Name:        "plugins",
		Description: "List builtin and discovered plugins",
		Run:         c.runPlugins,
	}
}

func (c *Command) runPlugins(args []string) error {
	flags := c.newFlagSet("plugins")
	asJSON := flags.Bool("json", false, "Print JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	s := &stack{cfg: cfg, log: observability.NewLogrus(cfg.Observability.LogLevel, os.Stderr)}
	defer s.Close()
	if err := s.buildRegistry(context.Background()); err != nil {
		return err
	}

	infos := s.newOrchestrator().Catalog()
	if *asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tSCOPE")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, info.Type, info.Scope)
	}
	return w.Flush()
}
