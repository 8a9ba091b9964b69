package commands

import (
	"context"
	"flag"
	"io"

	"nexustodo/internal/app"
	"nexustodo/internal/config"
	"nexustodo/internal/exitcode"
)

func init() {
	Register(&RmCmd{})
}

// RmCmd implements the rm command.
type RmCmd struct{}

func (c *RmCmd) Name() string      { return "rm" }
func (c *RmCmd) Aliases() []string { return []string{"delete"} }
func (c *RmCmd) Synopsis() string  { return "Delete a task" }
func (c *RmCmd) Usage() string     { return "nexustodo rm <ref>" }
func (c *RmCmd) NeedsApp() bool    { return true }

func (c *RmCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *RmCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	task, code := findTask(ctx, a, args, errOut)
	if code != exitcode.Success {
		return code
	}

	if err := a.Service.DeleteTask(ctx, task.ID); err != nil {
		return backendError(errOut, err)
	}

	refresh(ctx, a)
	return printOK(cfg.Quiet, out)
}
