// Package service defines the backend-agnostic interface for task operations.
package service

import (
	"context"
	"io"
)

// Service defines the interface for task backend operations.
// All task service and agent calls go through this interface.
// Commands and engines never build HTTP requests directly.
type Service interface {
	TaskService
	Agent

	// RegisterDevice registers deviceID and returns the durable identity.
	// This is the only call made without identity headers.
	RegisterDevice(ctx context.Context, deviceID string) (Identity, error)
}

// TaskService covers the task CRUD routes.
type TaskService interface {
	// ListTasks returns the full task set in service order.
	ListTasks(ctx context.Context) ([]Task, error)

	// CreateTask creates a new task and returns it.
	CreateTask(ctx context.Context, in TaskInput) (Task, error)

	// UpdateTask applies a partial update and returns the updated task.
	UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (Task, error)

	// DeleteTask deletes a task.
	DeleteTask(ctx context.Context, taskID string) error
}

// Agent covers the conversational endpoint.
type Agent interface {
	// OpenChatStream opens the event stream for one user message.
	// The caller must close the returned body. Reads fail with
	// transport.ErrCancelled once ctx is cancelled.
	OpenChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error)

	// AgentChat runs one user message against the non-streaming endpoint.
	AgentChat(ctx context.Context, req ChatRequest) (ChatReply, error)
}
