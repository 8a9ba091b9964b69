// Package chat runs conversation turns against the agent: it sends one user
// message, folds the decoded event stream into the transcript, and settles
// the turn as finalized, cancelled or failed.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"nexustodo/internal/service"
	"nexustodo/internal/sse"
	"nexustodo/internal/tasksync"
	"nexustodo/internal/transport"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind is the shape of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindTasks Kind = "tasks"
)

// MessageStatus tells whether a message may still change.
type MessageStatus string

const (
	StatusStreaming MessageStatus = "streaming"
	StatusFinal     MessageStatus = "final"
)

// Message is one transcript entry. Task cards carry Title and Tasks.
type Message struct {
	Role   Role
	Kind   Kind
	Text   string
	Status MessageStatus
	Title  string
	Tasks  []service.Task
}

// State is the turn state.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateFinalized State = "finalized"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Fixed transcript texts.
const (
	Placeholder    = "..."
	TextCancelled  = "Task terminated by user."
	TextReceived   = "Request received."
	FailurePrefix  = "Request failed: "
	ConfirmPrompt  = "A task is running. Terminate it?"
	defaultFailure = "request failed"
)

var (
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotRegistered is returned when the device has no identity yet.
	ErrNotRegistered = errors.New("device is not registered")

	// ErrTurnActive is returned when a turn is running and the user chose
	// not to terminate it.
	ErrTurnActive = errors.New("a turn is already running")

	// ErrIncomplete is returned when the stream ends before a done event.
	ErrIncomplete = errors.New("agent stream ended unexpectedly")
)

// AgentError is a terminal error event sent by the agent.
type AgentError struct {
	Message string
}

func (e *AgentError) Error() string { return e.Message }

// Refresher refreshes the task snapshot after a successful execution.
type Refresher interface {
	Sync(ctx context.Context, opts tasksync.Options) (tasksync.Snapshot, error)
}

// Observer receives every transcript and state change, in order.
type Observer interface {
	MessageAppended(index int, m Message)
	MessageReplaced(index int, m Message)
	StateChanged(s State)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) MessageAppended(int, Message) {}
func (NopObserver) MessageReplaced(int, Message) {}
func (NopObserver) StateChanged(State)           {}

// Options configures an Orchestrator.
type Options struct {
	// Identity returns the device identity. Required.
	Identity func() service.Identity

	// Refresher is called once per turn after a successful execution.
	Refresher Refresher

	// Confirm asks whether a running turn may be terminated. Nil declines.
	Confirm func(prompt string) bool

	// Observer receives transitions. Nil ignores them.
	Observer Observer

	// Describe renders a failure for the transcript. Defaults to err.Error.
	Describe func(error) string
}

// Orchestrator owns one conversation.
type Orchestrator struct {
	agent service.Agent
	opts  Options

	mu        sync.Mutex
	messages  []Message
	sessionID string
	state     State
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an orchestrator for agent.
func New(agent service.Agent, opts Options) *Orchestrator {
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Identity == nil {
		opts.Identity = func() service.Identity { return service.Identity{} }
	}
	return &Orchestrator{agent: agent, opts: opts, state: StateIdle}
}

// Submit runs one streaming turn for text and returns when it settles.
// A cancelled turn is not an error.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	t, err := o.begin(ctx, text)
	if err != nil {
		return err
	}
	return t.end(t.stream())
}

// Ask runs one turn against the non-streaming agent endpoint.
func (o *Orchestrator) Ask(ctx context.Context, text string) error {
	t, err := o.begin(ctx, text)
	if err != nil {
		return err
	}
	return t.end(t.oneShot())
}

// Cancel aborts the running turn, if any.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Running reports whether a turn is in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancel != nil
}

// State returns the current turn state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SessionID returns the session adopted from the agent, "" before the
// first reply.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Messages returns a copy of the transcript.
func (o *Orchestrator) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// Reset starts a new conversation. It fails while a turn is running.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return ErrTurnActive
	}
	o.messages = nil
	o.sessionID = ""
	return nil
}

// begin validates input, settles any running turn, and opens a new one.
func (o *Orchestrator) begin(ctx context.Context, text string) (*turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	id := o.opts.Identity()
	if !id.Registered() {
		return nil, ErrNotRegistered
	}

	for {
		o.mu.Lock()
		if o.cancel == nil {
			break
		}
		done := o.done
		o.mu.Unlock()

		if o.opts.Confirm == nil || !o.opts.Confirm(ConfirmPrompt) {
			return nil, ErrTurnActive
		}
		o.Cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// o.mu is held.
	turnCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})

	o.messages = append(o.messages, Message{Role: RoleUser, Kind: KindText, Text: text, Status: StatusFinal})
	userIndex := len(o.messages) - 1
	o.messages = append(o.messages, Message{Role: RoleAssistant, Kind: KindText, Text: Placeholder, Status: StatusStreaming})
	pending := len(o.messages) - 1
	session := o.sessionID
	o.state = StateSending
	user, placeholder := o.messages[userIndex], o.messages[pending]
	o.mu.Unlock()

	o.opts.Observer.MessageAppended(userIndex, user)
	o.opts.Observer.MessageAppended(pending, placeholder)
	o.opts.Observer.StateChanged(StateSending)
	slog.Debug("chat turn started", "state", StateSending, "session", session)

	return &turn{
		o:       o,
		ctx:     turnCtx,
		pending: pending,
		req: service.ChatRequest{
			SessionID: session,
			UserID:    id.UserID,
			DeviceID:  id.DeviceID,
			Message:   text,
		},
	}, nil
}

func (o *Orchestrator) replace(index int, m Message) {
	o.mu.Lock()
	o.messages[index] = m
	o.mu.Unlock()
	o.opts.Observer.MessageReplaced(index, m)
}

func (o *Orchestrator) push(m Message) {
	o.mu.Lock()
	o.messages = append(o.messages, m)
	index := len(o.messages) - 1
	o.mu.Unlock()
	o.opts.Observer.MessageAppended(index, m)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.opts.Observer.StateChanged(s)
	slog.Debug("chat turn state", "state", s)
}

func (o *Orchestrator) adopt(session string) {
	if session == "" {
		return
	}
	o.mu.Lock()
	o.sessionID = session
	o.mu.Unlock()
}

func (o *Orchestrator) describe(err error) string {
	if o.opts.Describe != nil {
		if msg := o.opts.Describe(err); msg != "" {
			return msg
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return defaultFailure
}

// turn is one user-message-to-final-response cycle.
type turn struct {
	o       *Orchestrator
	ctx     context.Context
	pending int
	req     service.ChatRequest

	text      string
	action    json.RawMessage
	execution json.RawMessage
	finished  bool
}

type deltaPayload struct {
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
}

type donePayload struct {
	AssistantMessage string `json:"assistantMessage"`
	SessionID        string `json:"sessionId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (t *turn) stream() error {
	body, err := t.o.agent.OpenChatStream(t.ctx, t.req)
	if err != nil {
		return err
	}
	defer body.Close()

	t.o.setState(StateStreaming)
	if err := sse.Decode(t.ctx, body, t.handle); err != nil {
		return err
	}
	if !t.finished {
		return ErrIncomplete
	}
	return nil
}

func (t *turn) oneShot() error {
	reply, err := t.o.agent.AgentChat(t.ctx, t.req)
	if err != nil {
		return err
	}
	if err := t.ctx.Err(); err != nil {
		return err
	}
	t.action = reply.Action
	t.execution = reply.Execution
	t.complete(reply.AssistantMessage, reply.SessionID)
	return nil
}

// handle applies one event. Events after done are never applied.
func (t *turn) handle(ev sse.Event) error {
	if t.finished {
		return sse.ErrStop
	}
	switch ev.Kind {
	case "delta":
		var p deltaPayload
		if err := ev.Decode(&p); err != nil {
			return nil
		}
		t.o.adopt(p.SessionID)
		if p.Content == "" {
			return nil
		}
		t.text += p.Content
		t.o.replace(t.pending, Message{Role: RoleAssistant, Kind: KindText, Text: t.text, Status: StatusStreaming})
	case "action":
		t.action = ev.Data
	case "execution":
		t.execution = ev.Data
	case "done":
		var p donePayload
		_ = ev.Decode(&p)
		t.complete(p.AssistantMessage, p.SessionID)
		return sse.ErrStop
	case "error":
		var p errorPayload
		_ = ev.Decode(&p)
		if p.Message == "" {
			p.Message = defaultFailure
		}
		return &AgentError{Message: p.Message}
	}
	return nil
}

// complete finalizes the pending message and, once per turn, refreshes the
// tasks and appends a task card when the execution succeeded.
func (t *turn) complete(assistantMessage, session string) {
	t.finished = true
	t.o.adopt(session)

	text := t.text
	if text == "" {
		text = assistantMessage
	}
	if text == "" {
		text = TextReceived
	}
	t.o.replace(t.pending, Message{Role: RoleAssistant, Kind: KindText, Text: text, Status: StatusFinal})

	if !ExecutionSucceeded(t.execution) {
		return
	}
	if t.o.opts.Refresher != nil {
		if _, err := t.o.opts.Refresher.Sync(t.ctx, tasksync.Options{Silent: true}); err != nil {
			slog.Debug("post-execution sync failed", "error", err)
		}
	}
	if card, ok := ExtractCard(t.execution, t.action); ok {
		t.o.push(card)
	}
}

// end settles the turn and releases the running flag.
func (t *turn) end(err error) error {
	o := t.o
	var result error

	switch {
	case err == nil:
		o.setState(StateFinalized)
	case isCancelled(t.ctx, err):
		o.replace(t.pending, Message{Role: RoleAssistant, Kind: KindText, Text: TextCancelled, Status: StatusFinal})
		o.setState(StateCancelled)
	default:
		o.replace(t.pending, Message{Role: RoleAssistant, Kind: KindText, Text: FailurePrefix + o.describe(err), Status: StatusFinal})
		o.setState(StateFailed)
		result = err
	}

	o.mu.Lock()
	o.cancel()
	o.cancel = nil
	close(o.done)
	o.mu.Unlock()
	o.setState(StateIdle)
	return result
}

func isCancelled(ctx context.Context, err error) bool {
	return errors.Is(err, transport.ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(ctx.Err(), context.Canceled)
}
