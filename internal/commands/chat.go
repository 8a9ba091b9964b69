package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"nexustodo/internal/app"
	"nexustodo/internal/chat"
	"nexustodo/internal/config"
	"nexustodo/internal/exitcode"
	"nexustodo/internal/output"
	"nexustodo/internal/review"
	"nexustodo/internal/tasksync"
)

func init() {
	Register(&ChatCmd{})
}

// LineReader reads one line of user input per call.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// interrupt holds the handler for SIGINT while a conversation is open.
var interrupt atomic.Pointer[func() bool]

// turns counts REPL turns that have been started and not yet settled.
var turns atomic.Int32

// Interrupt cancels the running chat turn. It returns false when no turn is
// running, in which case the caller should stop the process.
func Interrupt() bool {
	h := interrupt.Load()
	if h == nil {
		return false
	}
	return (*h)()
}

// ChatCmd implements the chat command: an interactive conversation with the
// task agent, or a single message with -e.
type ChatCmd struct {
	exec     string
	noStream bool

	// Reader opens the REPL input. Defaults to a readline terminal.
	Reader func(out io.Writer) (LineReader, error)

	// Now is the clock for the review reminder. Defaults to time.Now.
	Now func() time.Time
}

func (c *ChatCmd) Name() string      { return "chat" }
func (c *ChatCmd) Aliases() []string { return []string{"ask"} }
func (c *ChatCmd) Synopsis() string  { return "Talk to the task agent" }
func (c *ChatCmd) Usage() string     { return "nexustodo chat [--no-stream] [-e <message>]" }
func (c *ChatCmd) NeedsApp() bool    { return true }

func (c *ChatCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.exec, "e", "", "")
	fs.BoolVar(&c.noStream, "no-stream", false, "")
}

// SetExec sets the one-shot message (for testing).
func (c *ChatCmd) SetExec(msg string, noStream bool) {
	c.exec, c.noStream = msg, noStream
}

func (c *ChatCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	msg := strings.TrimSpace(c.exec)
	if msg == "" && len(args) > 0 {
		msg = strings.TrimSpace(strings.Join(args, " "))
	}

	if !register(ctx, a, errOut) {
		return exitcode.DeviceError
	}

	p := newTranscriptPrinter(out)
	if msg != "" {
		conv := a.NewChat(nil, p)
		return c.send(ctx, conv, msg, p, errOut)
	}
	return c.repl(ctx, cfg, a, p, out, errOut)
}

// send runs one turn and maps its outcome to an exit code. Failures are
// already in the transcript.
func (c *ChatCmd) send(ctx context.Context, conv *chat.Orchestrator, msg string, p *transcriptPrinter, errOut io.Writer) int {
	var err error
	if c.noStream {
		err = conv.Ask(ctx, msg)
	} else {
		err = conv.Submit(ctx, msg)
	}
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrTurnActive):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	case err != nil:
		return exitcode.BackendError
	case p.lastState() == chat.StateCancelled:
		return exitcode.BackendError
	}
	return exitcode.Success
}

func (c *ChatCmd) repl(ctx context.Context, cfg *config.Config, a *app.App, p *transcriptPrinter, out, errOut io.Writer) int {
	open := c.Reader
	if open == nil {
		open = newReadline
	}
	rl, err := open(out)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	defer rl.Close()

	// Turns run in the background while input is read. A message typed
	// during a turn is confirmed here, and the answer is handed to the
	// orchestrator when it asks.
	var approved atomic.Bool
	conv := a.NewChat(func(string) bool { return approved.Load() }, p)
	errOut = &lockedWriter{w: errOut}

	handler := func() bool {
		if !conv.Running() {
			return false
		}
		conv.Cancel()
		return true
	}
	interrupt.Store(&handler)
	defer interrupt.Store(nil)

	var wg sync.WaitGroup
	defer wg.Wait()

	if _, err := a.Sync.Sync(ctx, tasksync.Options{Silent: true}); err != nil {
		slog.Debug("initial sync failed", "error", err)
	}

	if !cfg.Quiet {
		p.interject(func(w io.Writer) {
			fmt.Fprintln(w, "Commands: /new /tasks /help /quit")
			c.remind(ctx, cfg, a, w)
		})
	}

	for {
		if ctx.Err() != nil {
			conv.Cancel()
			return exitcode.Success
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) && conv.Running() {
			conv.Cancel()
			continue
		}
		if isReadTermination(err) {
			break
		}
		if err != nil {
			fmt.Fprintf(errOut, "error: read failed: %v\n", err)
			conv.Cancel()
			return exitcode.UserError
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			var quit bool
			p.interject(func(w io.Writer) {
				quit = handleChatCommand(ctx, input, a, conv, w)
			})
			if quit {
				conv.Cancel()
				break
			}
			continue
		}

		if turns.Load() > 0 {
			p.interject(func(w io.Writer) {
				fmt.Fprintf(w, "%s [y/N] ", chat.ConfirmPrompt)
			})
			answer, err := rl.Readline()
			yes := err == nil && strings.EqualFold(strings.TrimSpace(answer), "y")
			if !yes {
				p.interject(func(w io.Writer) { fmt.Fprintln(w, "message not sent") })
				continue
			}
			approved.Store(true)
		} else {
			approved.Store(false)
		}

		select {
		case <-p.started:
		default:
		}
		settled := make(chan struct{})
		turns.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer turns.Add(-1)
			defer close(settled)
			c.send(ctx, conv, input, p, errOut)
		}()
		// Read the next line only once this turn owns the conversation.
		select {
		case <-p.started:
		case <-settled:
		}
	}
	wg.Wait()
	if !cfg.Quiet {
		p.interject(func(w io.Writer) { fmt.Fprintln(w, "bye") })
	}
	return exitcode.Success
}

// remind prints the daily review notice when it is due.
func (c *ChatCmd) remind(ctx context.Context, cfg *config.Config, a *app.App, out io.Writer) {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	due, err := review.Due(now, cfg.Settings.ReviewTime, review.LastDone(ctx, a.Store))
	if err == nil && due {
		fmt.Fprintln(out, "Daily review is due: ask for today's summary, then run `nexustodo review --done`.")
	}
}

func handleChatCommand(ctx context.Context, input string, a *app.App, conv *chat.Orchestrator, out io.Writer) (quit bool) {
	cmd := strings.ToLower(strings.Fields(input)[0])
	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/new":
		if err := conv.Reset(); err != nil {
			fmt.Fprintf(out, "%v\n", err)
			return false
		}
		fmt.Fprintln(out, "new conversation")
	case "/tasks":
		snap := a.Sync.Current()
		for i, task := range Listing(snap.Tasks) {
			output.FormatTask(out, i+1, task)
		}
		output.FormatFooter(out, snap.Freshness, a.Sync.LastSync(ctx))
	case "/help":
		fmt.Fprintln(out, "/new /tasks /help /quit")
	default:
		fmt.Fprintf(out, "unknown command: %s\n", cmd)
	}
	return false
}

func newReadline(out io.Writer) (LineReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		Stdout:          out,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return rl, nil
}

func isReadTermination(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt)
}

// lockedWriter serializes writes from the input loop and running turns.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}

// transcriptPrinter writes the transcript as it changes. Streaming text is
// printed incrementally on one line.
type transcriptPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	cur     int
	printed string
	broken  bool
	last    chat.State
	started chan struct{}
}

func newTranscriptPrinter(w io.Writer) *transcriptPrinter {
	return &transcriptPrinter{w: &lockedWriter{w: w}, cur: -1, started: make(chan struct{}, 1)}
}

// interject writes outside the transcript. A streaming line is broken
// first and reprinted whole on its next update.
func (p *transcriptPrinter) interject(fn func(w io.Writer)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur >= 0 && !p.broken {
		fmt.Fprintln(p.w)
		p.broken = true
	}
	fn(p.w)
}

func (p *transcriptPrinter) lastState() chat.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *transcriptPrinter) MessageAppended(index int, m chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case m.Role == chat.RoleUser:
	case m.Kind == chat.KindTasks:
		output.FormatCard(p.w, m)
	case m.Status == chat.StatusStreaming:
		fmt.Fprint(p.w, "agent> ")
		p.cur, p.printed, p.broken = index, "", false
	default:
		output.FormatMessage(p.w, m)
	}
}

func (p *transcriptPrinter) MessageReplaced(index int, m chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index != p.cur {
		output.FormatMessage(p.w, m)
		return
	}
	switch {
	case p.broken:
		fmt.Fprintf(p.w, "agent> %s", m.Text)
		p.broken = false
	case strings.HasPrefix(m.Text, p.printed):
		fmt.Fprint(p.w, m.Text[len(p.printed):])
	default:
		fmt.Fprintf(p.w, "\nagent> %s", m.Text)
	}
	p.printed = m.Text
	if m.Status == chat.StatusFinal {
		fmt.Fprintln(p.w)
		p.cur, p.printed = -1, ""
	}
}

func (p *transcriptPrinter) StateChanged(s chat.State) {
	if s == chat.StateSending {
		select {
		case p.started <- struct{}{}:
		default:
		}
	}
	if s == chat.StateIdle {
		return
	}
	p.mu.Lock()
	p.last = s
	p.mu.Unlock()
}
