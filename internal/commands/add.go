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
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	desc string
	tags stringList
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string     { return "nexustodo add [--desc <text>] [--tag <t>]... <title...>" }
func (c *AddCmd) NeedsApp() bool    { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	c.tags = nil
	fs.StringVar(&c.desc, "desc", "", "")
	fs.Var(&c.tags, "tag", "")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}

	if !register(ctx, a, errOut) {
		return exitcode.DeviceError
	}

	var tags []string
	for _, t := range c.tags {
		tags = append(tags, service.ParseTags(t)...)
	}
	_, err := a.Service.CreateTask(ctx, service.TaskInput{
		Title:       title,
		Description: strings.TrimSpace(c.desc),
		Tags:        service.NormalizeTags(tags),
	})
	if err != nil {
		return backendError(errOut, err)
	}

	refresh(ctx, a)
	return printOK(cfg.Quiet, out)
}
