package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"nexustodo/internal/app"
	"nexustodo/internal/config"
	"nexustodo/internal/exitcode"
	"nexustodo/internal/tasksync"
)

func init() {
	Register(&TagsCmd{})
}

// TagsCmd implements the tags command.
type TagsCmd struct {
	offline bool
}

func (c *TagsCmd) Name() string      { return "tags" }
func (c *TagsCmd) Aliases() []string { return nil }
func (c *TagsCmd) Synopsis() string  { return "List tags in use" }
func (c *TagsCmd) Usage() string     { return "nexustodo tags [--offline]" }
func (c *TagsCmd) NeedsApp() bool    { return true }

func (c *TagsCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.offline, "offline", false, "")
}

func (c *TagsCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	snap, code := loadSnapshot(ctx, a, c.offline, true, errOut)
	if code != exitcode.Success && code != exitcode.StaleData {
		return code
	}

	tags := tasksync.Tags(snap.Tasks)
	for _, tag := range tags {
		fmt.Fprintf(out, "#%s\n", tag)
	}
	if len(tags) == 0 && !cfg.Quiet {
		fmt.Fprintln(out, "no tags found")
	}
	return code
}
