// Package tasksync keeps the client's view of the task set: it fetches the
// authoritative list, falls back to the last-known-good cache when the
// service is unreachable, and projects snapshots through filters and sorts.
package tasksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nexustodo/internal/notify"
	"nexustodo/internal/service"
	"nexustodo/internal/store"
	"nexustodo/internal/transport"
)

// Freshness tells whether a snapshot came from the service or the cache.
type Freshness string

const (
	Live   Freshness = "live"
	Cached Freshness = "cached"
)

// Notice texts.
const (
	BannerStale  = "Network unavailable, showing cached data (may be out of date)."
	BannerNoData = "Network unavailable, tasks could not be loaded."
	ToastSynced  = "Tasks synced"
)

// LastSyncLayout formats the persisted last-sync display time.
const LastSyncLayout = "15:04"

// ErrStale is wrapped by Sync errors when cached data was served instead.
var ErrStale = errors.New("showing cached tasks")

// Snapshot is an immutable task set. It is replaced whole, never mutated.
type Snapshot struct {
	Tasks     []service.Task
	Freshness Freshness
	At        time.Time
}

// Options controls one Sync call.
type Options struct {
	// Silent suppresses toasts. Banners are always updated.
	Silent bool
}

// Engine owns the current snapshot.
type Engine struct {
	svc      service.TaskService
	kv       store.KV
	notifier notify.Notifier

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// Describe renders a sync failure for the user. Defaults to err.Error.
	Describe func(error) string

	mu   sync.Mutex // serializes Sync
	snap atomic.Pointer[Snapshot]
}

// NewEngine creates an engine whose initial snapshot is the persisted cache
// marked cached, or an empty cached snapshot when there is none.
func NewEngine(ctx context.Context, svc service.TaskService, kv store.KV, notifier notify.Notifier) *Engine {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	e := &Engine{svc: svc, kv: kv, notifier: notifier}
	initial := &Snapshot{Tasks: []service.Task{}, Freshness: Cached}
	if tasks, ok := e.loadCache(ctx); ok {
		initial.Tasks = tasks
	}
	e.snap.Store(initial)
	return e
}

// Current returns the current snapshot.
func (e *Engine) Current() Snapshot {
	return *e.snap.Load()
}

// LastSync returns the display time of the last successful sync, "" if
// there was none.
func (e *Engine) LastSync(ctx context.Context) string {
	return store.GetString(ctx, e.kv, store.KeyLastSync)
}

// Sync fetches the task list and replaces the snapshot.
//
// On failure with a usable cache the snapshot becomes the cache and the
// returned error wraps ErrStale. On failure without a cache the snapshot is
// left as it was. A cancelled fetch changes nothing.
func (e *Engine) Sync(ctx context.Context, opts Options) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tasks, err := e.svc.ListTasks(ctx)
	if err == nil {
		return e.succeed(ctx, tasks, opts), nil
	}
	if errors.Is(err, transport.ErrCancelled) || errors.Is(err, context.Canceled) {
		return e.Current(), err
	}

	slog.Debug("sync failed", "error", err)
	if !opts.Silent {
		e.notifier.Toast(e.describe(err))
	}

	cached, ok := e.loadCache(ctx)
	if !ok {
		e.notifier.Banner(BannerNoData)
		return e.Current(), err
	}

	snap := &Snapshot{Tasks: cached, Freshness: Cached, At: e.Current().At}
	e.snap.Store(snap)
	e.notifier.Banner(BannerStale)
	slog.Debug("sync served cache", "freshness", snap.Freshness, "tasks", len(snap.Tasks))
	return *snap, fmt.Errorf("%w: %w", ErrStale, err)
}

func (e *Engine) succeed(ctx context.Context, tasks []service.Task, opts Options) Snapshot {
	now := e.now()
	normalized := make([]service.Task, len(tasks))
	for i, t := range tasks {
		t.Tags = service.NormalizeTags(t.Tags)
		normalized[i] = t
	}

	snap := &Snapshot{Tasks: normalized, Freshness: Live, At: now}
	e.snap.Store(snap)

	if data, err := json.Marshal(normalized); err == nil {
		store.Put(ctx, e.kv, store.KeyTasksCache, string(data))
	}
	store.Put(ctx, e.kv, store.KeyLastSync, now.Format(LastSyncLayout))

	e.notifier.Banner("")
	if !opts.Silent {
		e.notifier.Toast(ToastSynced)
	}
	slog.Debug("sync succeeded", "freshness", snap.Freshness, "tasks", len(normalized))
	return *snap
}

func (e *Engine) loadCache(ctx context.Context) ([]service.Task, bool) {
	raw := store.GetString(ctx, e.kv, store.KeyTasksCache)
	if raw == "" {
		return nil, false
	}
	var tasks []service.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		slog.Debug("discarding unreadable task cache", "error", err)
		return nil, false
	}
	if tasks == nil {
		tasks = []service.Task{}
	}
	return tasks, true
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) describe(err error) string {
	if e.Describe != nil {
		return e.Describe(err)
	}
	return err.Error()
}
