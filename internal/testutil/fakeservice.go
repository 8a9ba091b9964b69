// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"nexustodo/internal/service"
)

// DefaultUserID is the user id handed out by FakeService.RegisterDevice.
const DefaultUserID = "user-1"

// ErrNotFound is returned when a resource is not found.
var ErrNotFound = errors.New("not found")

// DoneStream is a minimal agent stream that finishes a turn with no text.
const DoneStream = "event: done\ndata: {}\n\n"

// FakeService is an in-memory implementation of service.Service for testing.
type FakeService struct {
	mu     sync.RWMutex
	tasks  []service.Task
	nextID int

	// Now stamps created and updated tasks. Defaults to a fixed instant.
	Now func() time.Time

	// Streams are returned by OpenChatStream in order. When exhausted,
	// DoneStream is used.
	Streams []string

	// StreamFunc, when set, replaces Streams.
	StreamFunc func(ctx context.Context, req service.ChatRequest) (io.ReadCloser, error)

	// Replies are returned by AgentChat in order.
	Replies []service.ChatReply

	// Recorded calls
	ChatRequests []service.ChatRequest
	DeviceIDs    []string
	ListCalls    int

	// Error injection for testing
	RegisterErr   error
	ListTasksErr  error
	CreateTaskErr error
	UpdateTaskErr error
	DeleteTaskErr error
	OpenStreamErr error
	AgentChatErr  error
}

// NewFakeService creates a new empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{}
}

func (f *FakeService) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
}

// AddTask adds a task as-is.
func (f *FakeService) AddTask(task service.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.Status == "" {
		task.Status = service.StatusTodo
	}
	task.Tags = service.NormalizeTags(task.Tags)
	f.tasks = append(f.tasks, task)
}

// Tasks returns a copy of the stored tasks.
func (f *FakeService) Tasks() []service.Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]service.Task, len(f.tasks))
	copy(out, f.tasks)
	return out
}

// RegisterDevice implements service.Service.
func (f *FakeService) RegisterDevice(ctx context.Context, deviceID string) (service.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeviceIDs = append(f.DeviceIDs, deviceID)
	if f.RegisterErr != nil {
		return service.Identity{}, f.RegisterErr
	}
	return service.Identity{UserID: DefaultUserID, DeviceID: deviceID}, nil
}

// ListTasks implements service.Service.
func (f *FakeService) ListTasks(ctx context.Context) ([]service.Task, error) {
	f.mu.Lock()
	f.ListCalls++
	f.mu.Unlock()
	if f.ListTasksErr != nil {
		return nil, f.ListTasksErr
	}
	return f.Tasks(), nil
}

// CreateTask implements service.Service.
func (f *FakeService) CreateTask(ctx context.Context, in service.TaskInput) (service.Task, error) {
	if f.CreateTaskErr != nil {
		return service.Task{}, f.CreateTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	now := f.now()
	task := service.Task{
		ID:          fmt.Sprintf("task-%d", f.nextID),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      service.StatusTodo,
		Tags:        service.NormalizeTags(in.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.tasks = append(f.tasks, task)
	return task, nil
}

// UpdateTask implements service.Service.
func (f *FakeService) UpdateTask(ctx context.Context, taskID string, patch service.TaskPatch) (service.Task, error) {
	if f.UpdateTaskErr != nil {
		return service.Task{}, f.UpdateTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.tasks {
		if f.tasks[i].ID != taskID {
			continue
		}
		t := &f.tasks[i]
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Tags != nil {
			t.Tags = service.NormalizeTags(*patch.Tags)
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		t.UpdatedAt = f.now()
		return *t, nil
	}
	return service.Task{}, ErrNotFound
}

// DeleteTask implements service.Service.
func (f *FakeService) DeleteTask(ctx context.Context, taskID string) error {
	if f.DeleteTaskErr != nil {
		return f.DeleteTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, t := range f.tasks {
		if t.ID == taskID {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// OpenChatStream implements service.Service.
func (f *FakeService) OpenChatStream(ctx context.Context, req service.ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.ChatRequests = append(f.ChatRequests, req)
	fn := f.StreamFunc
	body := DoneStream
	if len(f.Streams) > 0 {
		body, f.Streams = f.Streams[0], f.Streams[1:]
	}
	f.mu.Unlock()

	if f.OpenStreamErr != nil {
		return nil, f.OpenStreamErr
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

// AgentChat implements service.Service.
func (f *FakeService) AgentChat(ctx context.Context, req service.ChatRequest) (service.ChatReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChatRequests = append(f.ChatRequests, req)
	if f.AgentChatErr != nil {
		return service.ChatReply{}, f.AgentChatErr
	}
	if len(f.Replies) == 0 {
		return service.ChatReply{SessionID: req.SessionID}, nil
	}
	reply := f.Replies[0]
	f.Replies = f.Replies[1:]
	return reply, nil
}

// Requests returns a copy of the recorded chat requests.
func (f *FakeService) Requests() []service.ChatRequest {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]service.ChatRequest(nil), f.ChatRequests...)
}
