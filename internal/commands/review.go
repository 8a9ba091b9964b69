package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"nexustodo/internal/app"
	"nexustodo/internal/config"
	"nexustodo/internal/exitcode"
	"nexustodo/internal/output"
	"nexustodo/internal/review"
	"nexustodo/internal/service"
	"nexustodo/internal/tasksync"
)

func init() {
	Register(&ReviewCmd{})
}

// ReviewCmd implements the review command: it reports whether the daily
// review is due, summarizes open work, and marks the review done.
type ReviewCmd struct {
	done    bool
	offline bool

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func (c *ReviewCmd) Name() string      { return "review" }
func (c *ReviewCmd) Aliases() []string { return nil }
func (c *ReviewCmd) Synopsis() string  { return "Daily review of open tasks" }
func (c *ReviewCmd) Usage() string     { return "nexustodo review [--offline] [--done]" }
func (c *ReviewCmd) NeedsApp() bool    { return true }

func (c *ReviewCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.done, "done", false, "")
	fs.BoolVar(&c.offline, "offline", false, "")
}

func (c *ReviewCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	if c.done {
		day := review.Complete(ctx, a.Store, now)
		if !cfg.Quiet {
			fmt.Fprintf(out, "review completed for %s\n", day)
		}
		return exitcode.Success
	}

	due, err := review.Due(now, cfg.Settings.ReviewTime, review.LastDone(ctx, a.Store))
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	snap, code := loadSnapshot(ctx, a, c.offline, true, errOut)
	if code != exitcode.Success && code != exitcode.StaleData {
		return code
	}

	switch {
	case due:
		fmt.Fprintln(out, "Daily review is due.")
	case review.LastDone(ctx, a.Store) == now.Format(review.DateLayout):
		fmt.Fprintln(out, "Daily review already completed today.")
	default:
		fmt.Fprintf(out, "Daily review starts at %s.\n", cfg.Settings.ReviewTime)
	}
	output.FormatCounts(out, tasksync.Counts(snap.Tasks))

	numbers := make(map[string]int, len(snap.Tasks))
	for i, t := range Listing(snap.Tasks) {
		numbers[t.ID] = i + 1
	}
	for _, status := range []service.Status{service.StatusInProgress, service.StatusTodo} {
		view := snap.Project(tasksync.Query{Status: status})
		if len(view.Tasks) == 0 {
			continue
		}
		output.FormatHeader(out, string(status))
		for _, task := range view.Tasks {
			output.FormatTask(out, numbers[task.ID], task)
		}
	}
	return code
}
