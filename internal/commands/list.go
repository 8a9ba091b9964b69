package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"

	"nexustodo/internal/app"
	"nexustodo/internal/config"
	"nexustodo/internal/exitcode"
	"nexustodo/internal/output"
	"nexustodo/internal/service"
	"nexustodo/internal/tasksync"
)

func init() {
	Register(&ListCmd{})
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// ListCmd implements the list command.
// Handles both `nexustodo` (no args) and `nexustodo list [filters]`.
// Numbers are positions in the default listing, so they stay valid for
// done, edit, status and rm whatever the filters.
type ListCmd struct {
	status  string
	tags    stringList
	search  string
	sort    string
	offline bool
	counts  bool
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls", "sync"} }
func (c *ListCmd) Synopsis() string  { return "Sync and list tasks" }
func (c *ListCmd) Usage() string {
	return "nexustodo list [--status <s>] [--tag <t>]... [--search <text>] [--sort <field:dir>] [--offline] [--counts]"
}
func (c *ListCmd) NeedsApp() bool { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {
	c.tags = nil
	fs.StringVar(&c.status, "status", "", "")
	fs.Var(&c.tags, "tag", "")
	fs.StringVar(&c.search, "search", "", "")
	fs.StringVar(&c.sort, "sort", tasksync.DefaultSort.String(), "")
	fs.BoolVar(&c.offline, "offline", false, "")
	fs.BoolVar(&c.counts, "counts", false, "")
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	q, err := c.query()
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	snap, code := loadSnapshot(ctx, a, c.offline, false, errOut)
	if code != exitcode.Success && code != exitcode.StaleData {
		return code
	}

	if c.counts {
		output.FormatCounts(out, tasksync.Counts(snap.Tasks))
	}

	// Tag filters that match no task are dropped, as the tag list offers
	// only tags in use.
	pruned := q.Prune(tasksync.Tags(snap.Tasks))
	if !cfg.Quiet {
		for _, tag := range lo.Without(q.Tags, pruned.Tags...) {
			fmt.Fprintf(errOut, "unknown tag ignored: #%s\n", tag)
		}
	}
	q = pruned

	numbers := make(map[string]int, len(snap.Tasks))
	for i, t := range Listing(snap.Tasks) {
		numbers[t.ID] = i + 1
	}

	view := snap.Project(q)
	for _, task := range view.Tasks {
		output.FormatTask(out, numbers[task.ID], task)
	}

	if !cfg.Quiet {
		if len(view.Tasks) == 0 {
			fmt.Fprintln(out, "no tasks found")
		}
		output.FormatFooter(out, view.Freshness, a.Sync.LastSync(ctx))
	}
	return code
}

func (c *ListCmd) query() (tasksync.Query, error) {
	var q tasksync.Query
	if c.status != "" {
		st, ok := service.ParseStatus(c.status)
		if !ok {
			return q, fmt.Errorf("invalid status: %s", c.status)
		}
		q.Status = st
	}

	sort, err := tasksync.ParseSort(c.sort)
	if err != nil {
		return q, err
	}
	q.Sort = sort
	q.Tags = service.NormalizeTags(c.tags)
	q.Search = strings.TrimSpace(c.search)
	return q, nil
}
