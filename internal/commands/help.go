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
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "nexustodo help" }
func (c *HelpCmd) NeedsApp() bool    { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, helpText)
	fmt.Fprintln(out, "\nCommands:")
	for _, cmd := range DefaultRegistry.All() {
		name := cmd.Name()
		if aliases := cmd.Aliases(); len(aliases) > 0 {
			name += " (" + strings.Join(aliases, ", ") + ")"
		}
		fmt.Fprintf(out, "  %-16s %s\n", name, cmd.Synopsis())
	}
	return exitcode.Success
}

const helpText = `Usage:
  nexustodo                                          Sync and list all tasks
  nexustodo list [common flags] [--status <s>] [--tag <t>]... [--search <text>]
                 [--sort <createdAt|updatedAt>:<asc|desc>] [--offline] [--counts]
  nexustodo add [common flags] [--desc <text>] [--tag <t>]... <title...>
  nexustodo edit [common flags] [--title <t>] [--desc <text>] [--tags <a,b>] [--clear-tags] <ref>
  nexustodo show [common flags] [--offline] <ref>
  nexustodo status [common flags] <ref> <todo|in_progress|done|deferred|cancelled>
  nexustodo done [common flags] <ref>
  nexustodo rm [common flags] <ref>
  nexustodo tags [common flags] [--offline]
  nexustodo chat [common flags] [--no-stream] [-e <message>]
  nexustodo review [common flags] [--offline] [--done]
  nexustodo register [common flags] [--force]
  nexustodo config [common flags] [show | set <name> <value>]
  nexustodo help
  nexustodo version

A <ref> is a task number from the default listing or a task id prefix.

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr

Exit codes:
  0 success, 1 user error, 2 device error, 3 backend error, 4 cached data shown
`
