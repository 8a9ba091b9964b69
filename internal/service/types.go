// Package service defines the backend-agnostic interface for task operations.
package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusDeferred   Status = "deferred"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone, StatusDeferred, StatusCancelled}

// statusAliases maps the labels used by older deployments of the task service.
var statusAliases = map[string]Status{
	"待办":  StatusTodo,
	"进行中": StatusInProgress,
	"已完成": StatusDone,
	"已延期": StatusDeferred,
	"已取消": StatusCancelled,
}

// ParseStatus returns the canonical status for s.
// Accepts canonical values (case-insensitive) and the legacy labels.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	if st, ok := statusAliases[s]; ok {
		return st, true
	}
	candidate := Status(strings.ToLower(strings.ReplaceAll(s, "-", "_")))
	for _, st := range Statuses {
		if st == candidate {
			return st, true
		}
	}
	return "", false
}

// Task represents a single task item.
type Task struct {
	ID          string    `json:"taskId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UnmarshalJSON decodes a task as returned by the service.
// Missing or unparseable timestamps decode as the zero time, a missing tag
// list decodes as an empty one, and legacy status labels are canonicalized.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string   `json:"taskId"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Status      string   `json:"status"`
		Tags        []string `json:"tags"`
		CreatedAt   string   `json:"createdAt"`
		UpdatedAt   string   `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := Status(raw.Status)
	if st, ok := ParseStatus(raw.Status); ok {
		status = st
	}
	*t = Task{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Status:      status,
		Tags:        NormalizeTags(raw.Tags),
		CreatedAt:   parseTime(raw.CreatedAt),
		UpdatedAt:   parseTime(raw.UpdatedAt),
	}
	return nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NormalizeTags trims tags, strips a leading '#', drops empty entries and
// duplicates. Matching is case-sensitive. A nil input yields an empty slice.
func NormalizeTags(tags []string) []string {
	cleaned := lo.FilterMap(tags, func(tag string, _ int) (string, bool) {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		return tag, tag != ""
	})
	return lo.Uniq(cleaned)
}

// ParseTags splits free-form tag input on whitespace and commas.
func ParseTags(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return NormalizeTags(fields)
}

// TaskInput holds the fields of a task to create.
type TaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags"`
}

// TaskPatch holds a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Status      *Status   `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Tags == nil && p.Status == nil
}

// Identity is the durable user/device pair obtained from device registration.
type Identity struct {
	UserID   string
	DeviceID string
}

// Registered reports whether both halves of the identity are known.
func (id Identity) Registered() bool {
	return id.UserID != "" && id.DeviceID != ""
}

// ChatRequest is one user message sent to the agent.
type ChatRequest struct {
	SessionID string
	UserID    string
	DeviceID  string
	Message   string
}

// ChatReply is the non-streaming agent response.
type ChatReply struct {
	SessionID        string          `json:"sessionId"`
	AssistantMessage string          `json:"assistantMessage"`
	Action           json.RawMessage `json:"action"`
	Execution        json.RawMessage `json:"execution"`
}
