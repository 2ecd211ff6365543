package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/stager/pkg/app"
	"github.com/platinummonkey/stager/pkg/droplet"
	"github.com/platinummonkey/stager/pkg/observability"
	"github.com/platinummonkey/stager/pkg/service"
	"github.com/platinummonkey/stager/pkg/tasks"
)

func (c *Command) newStageCommand() *Command {
	return &Command{
		Name:        "stage",
		Description: "Stage an application once and store its droplet",
		Run:         c.runStage,
	}
}

func (c *Command) runStage(args []string) error {
	flags := c.newFlagSet("stage")
	appFile := flags.String("app", "", "App descriptor file (.yaml or .json)")
	srcDir := flags.String("src", "", "Application source directory")
	dropletDir := flags.String("droplets", "", "Store droplets in this directory instead of the configured store")
	workspaceRoot := flags.String("workspace", "", "Workspace root (default from STAGER_WORKSPACE_ROOT)")
	controller := flags.String("controller", "127.0.0.1:9022", "Controller host:port")
	taskID := flags.String("task-id", "", "Controller task ID (default: generated)")
	unpackDir := flags.String("unpack", "", "Verify the stored droplet and extract it into this directory")
	asJSON := flags.Bool("json", false, "Print the finished task as JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *appFile == "" || *srcDir == "" {
		return fmt.Errorf("-app and -src are required")
	}

	desc, err := app.LoadDescriptor(*appFile)
	if err != nil {
		return err
	}
	ci, err := parseController(*controller, *taskID)
	if err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if *dropletDir != "" {
		cfg.Droplets.StoreType = "filesystem"
		cfg.Droplets.Root = *dropletDir
	}
	if *workspaceRoot != "" {
		cfg.Staging.WorkspaceRoot = *workspaceRoot
	}
	// one-shot runs have nothing to reuse
	cfg.Cache.Enabled = false

	ctx := context.Background()
	log := observability.NewLogrus(cfg.Observability.LogLevel, os.Stderr)
	s, err := buildStack(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	defer s.svc.Shutdown(time.Second)

	task, err := s.svc.Stage(ctx, service.Request{SourceDir: *srcDir, App: *desc, Controller: ci})
	if task != nil && *asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(task); encErr != nil {
			return encErr
		}
	}
	if err != nil {
		if task != nil {
			return fmt.Errorf("staging failed at %s: %w", task.Stage, err)
		}
		return err
	}

	if *unpackDir != "" {
		if err := fetchDroplet(ctx, s.droplets, task, *unpackDir); err != nil {
			return err
		}
	}

	if !*asJSON {
		fmt.Fprintf(c.out, "Staged %s (task %s)\n", desc.Name, task.ID)
		fmt.Fprintf(c.out, "  droplet: %s\n", task.DropletKey)
		fmt.Fprintf(c.out, "  sha256:  %s\n", task.DropletSHA)
		if *unpackDir != "" {
			fmt.Fprintf(c.out, "  unpacked: %s\n", *unpackDir)
		}
	}
	return nil
}

// fetchDroplet downloads the task's droplet, checks it against the recorded
// digest and extracts it into dir
func fetchDroplet(ctx context.Context, store droplet.Store, task *tasks.Task, dir string) error {
	rc, err := store.Get(ctx, task.DropletKey)
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("%w: %v", droplet.ErrDownloadFailed, err)
	}
	if err := droplet.Verify(data, task.DropletSHA); err != nil {
		return err
	}
	return droplet.Unpack(bytes.NewReader(data), dir)
}

func parseController(addr, taskID string) (app.ControllerInfo, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return app.ControllerInfo{}, fmt.Errorf("invalid controller address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return app.ControllerInfo{}, fmt.Errorf("invalid controller port %q", portStr)
	}
	if taskID == "" {
		taskID = "cli-" + uuid.New().String()
	}

	ci := app.ControllerInfo{Host: host, Port: port, TaskID: taskID}
	return ci, ci.Validate()
}
