package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"nexustodo/internal/app"
	"nexustodo/internal/config"
	"nexustodo/internal/exitcode"
	"nexustodo/internal/service"
)

func init() {
	Register(&StatusCmd{})
	Register(&DoneCmd{})
}

// StatusCmd implements the status command.
type StatusCmd struct{}

func (c *StatusCmd) Name() string      { return "status" }
func (c *StatusCmd) Aliases() []string { return nil }
func (c *StatusCmd) Synopsis() string  { return "Set a task's status" }
func (c *StatusCmd) Usage() string {
	return "nexustodo status <ref> <todo|in_progress|done|deferred|cancelled>"
}
func (c *StatusCmd) NeedsApp() bool { return true }

func (c *StatusCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *StatusCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(errOut, "error: task reference and status required")
		return exitcode.UserError
	}
	label := strings.Join(args[1:], " ")
	status, ok := service.ParseStatus(label)
	if !ok {
		fmt.Fprintf(errOut, "error: invalid status: %s\n", label)
		return exitcode.UserError
	}
	return setStatus(ctx, cfg, a, args[:1], status, out, errOut)
}

// DoneCmd implements the done command.
type DoneCmd struct{}

func (c *DoneCmd) Name() string      { return "done" }
func (c *DoneCmd) Aliases() []string { return nil }
func (c *DoneCmd) Synopsis() string  { return "Mark a task done" }
func (c *DoneCmd) Usage() string     { return "nexustodo done <ref>" }
func (c *DoneCmd) NeedsApp() bool    { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	return setStatus(ctx, cfg, a, args, service.StatusDone, out, errOut)
}

// setStatus is the shared implementation for status and done.
func setStatus(ctx context.Context, cfg *config.Config, a *app.App, args []string, status service.Status, out, errOut io.Writer) int {
	task, code := findTask(ctx, a, args, errOut)
	if code != exitcode.Success {
		return code
	}

	if _, err := a.Service.UpdateTask(ctx, task.ID, service.TaskPatch{Status: &status}); err != nil {
		return backendError(errOut, err)
	}

	refresh(ctx, a)
	return printOK(cfg.Quiet, out)
}
