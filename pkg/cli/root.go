package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/platinummonkey/stager/pkg/config"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command

	out        io.Writer
	loadConfig func() (*config.Config, error)
}

// NewRootCommand creates the root command. Output goes to out, or stdout
// when out is nil.
func NewRootCommand(out io.Writer) *Command {
	if out == nil {
		out = os.Stdout
	}
	root := &Command{
		Name:        "stager",
		Description: "Stager - stages applications into droplets with plugins",
		Subcommands: make(map[string]*Command),
		out:         out,
		loadConfig:  config.LoadConfig,
	}

	root.Subcommands["stage"] = root.newStageCommand()
	root.Subcommands["validate"] = root.newValidateCommand()
	root.Subcommands["plugins"] = root.newPluginsCommand()
	root.Subcommands["serve"] = root.newServeCommand()

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Fprintf(c.out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(c.out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// newFlagSet returns a flag set that reports errors instead of exiting
func (c *Command) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}
