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
	"nexustodo/internal/output"
	"nexustodo/internal/service"
)

func init() {
	Register(&EditCmd{})
	Register(&ShowCmd{})
}

// EditCmd implements the edit command. Only the given flags change.
type EditCmd struct {
	title     string
	desc      string
	tags      string
	setTitle  bool
	setDesc   bool
	setTags   bool
	clearTags bool
}

func (c *EditCmd) Name() string      { return "edit" }
func (c *EditCmd) Aliases() []string { return nil }
func (c *EditCmd) Synopsis() string  { return "Change a task's title, description or tags" }
func (c *EditCmd) Usage() string {
	return "nexustodo edit [--title <t>] [--desc <text>] [--tags <a,b>] [--clear-tags] <ref>"
}
func (c *EditCmd) NeedsApp() bool { return true }

func (c *EditCmd) RegisterFlags(fs *flag.FlagSet) {
	c.setTitle, c.setDesc, c.setTags = false, false, false
	fs.Func("title", "", func(v string) error {
		c.title, c.setTitle = v, true
		return nil
	})
	fs.Func("desc", "", func(v string) error {
		c.desc, c.setDesc = v, true
		return nil
	})
	fs.Func("tags", "", func(v string) error {
		c.tags, c.setTags = v, true
		return nil
	})
	fs.BoolVar(&c.clearTags, "clear-tags", false, "")
}

func (c *EditCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	patch, err := c.patch()
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	task, code := findTask(ctx, a, args, errOut)
	if code != exitcode.Success {
		return code
	}

	if _, err := a.Service.UpdateTask(ctx, task.ID, patch); err != nil {
		return backendError(errOut, err)
	}

	refresh(ctx, a)
	return printOK(cfg.Quiet, out)
}

func (c *EditCmd) patch() (service.TaskPatch, error) {
	var p service.TaskPatch
	if c.setTitle {
		title := strings.TrimSpace(c.title)
		if title == "" {
			return p, fmt.Errorf("title required")
		}
		p.Title = &title
	}
	if c.setDesc {
		desc := strings.TrimSpace(c.desc)
		p.Description = &desc
	}
	if c.setTags && c.clearTags {
		return p, fmt.Errorf("cannot use both --tags and --clear-tags")
	}
	if c.setTags || c.clearTags {
		tags := service.ParseTags(c.tags)
		if c.clearTags {
			tags = []string{}
		}
		p.Tags = &tags
	}
	if p.Empty() {
		return p, fmt.Errorf("nothing to change (use --title, --desc, --tags or --clear-tags)")
	}
	return p, nil
}

// ShowCmd implements the show command.
type ShowCmd struct {
	offline bool
}

func (c *ShowCmd) Name() string      { return "show" }
func (c *ShowCmd) Aliases() []string { return nil }
func (c *ShowCmd) Synopsis() string  { return "Print every field of a task" }
func (c *ShowCmd) Usage() string     { return "nexustodo show [--offline] <ref>" }
func (c *ShowCmd) NeedsApp() bool    { return true }

func (c *ShowCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.offline, "offline", false, "")
}

func (c *ShowCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	ref, err := ParseTaskRef(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	snap, code := loadSnapshot(ctx, a, c.offline, true, errOut)
	if code != exitcode.Success && code != exitcode.StaleData {
		return code
	}

	task, err := ref.Resolve(snap.Tasks)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	output.FormatTaskDetail(out, task)
	return code
}
