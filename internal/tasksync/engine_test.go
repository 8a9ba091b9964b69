package tasksync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexustodo/internal/notify"
	"nexustodo/internal/service"
	"nexustodo/internal/store"
	"nexustodo/internal/testutil"
	"nexustodo/internal/transport"
)

func newEngine(t *testing.T) (*Engine, *testutil.FakeService, *testutil.MemoryKV, *notify.Recorder) {
	t.Helper()
	svc := testutil.NewFakeService()
	kv := testutil.NewMemoryKV()
	var notices notify.Recorder
	e := NewEngine(context.Background(), svc, kv, &notices)
	e.Now = func() time.Time { return time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC) }
	return e, svc, kv, &notices
}

func TestNewEngine_InitialSnapshot(t *testing.T) {
	e, _, _, _ := newEngine(t)
	snap := e.Current()
	assert.Equal(t, Cached, snap.Freshness)
	assert.Empty(t, snap.Tasks)
	assert.True(t, snap.At.IsZero())

	kv := testutil.NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), store.KeyTasksCache, `[{"taskId":"t1","title":"cached","status":"todo"}]`))
	e = NewEngine(context.Background(), testutil.NewFakeService(), kv, nil)
	snap = e.Current()
	assert.Equal(t, Cached, snap.Freshness)
	assert.Equal(t, []string{"t1"}, ids(snap.Tasks))
}

func TestSync_SuccessThenFailureServesCache(t *testing.T) {
	ctx := context.Background()
	e, svc, kv, notices := newEngine(t)
	svc.AddTask(service.Task{ID: "t1", Title: "one", Tags: []string{"#work", "work"}})
	svc.AddTask(service.Task{ID: "t2", Title: "two"})

	snap, err := e.Sync(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, Live, snap.Freshness)
	assert.Equal(t, []string{"t1", "t2"}, ids(snap.Tasks))
	assert.Equal(t, []string{"work"}, snap.Tasks[0].Tags)
	assert.NotEmpty(t, kv.Value(store.KeyTasksCache))
	assert.Equal(t, "14:05", e.LastSync(ctx))
	assert.Equal(t, []string{ToastSynced}, notices.Toasts())
	assert.Equal(t, "", notices.CurrentBanner())

	svc.ListTasksErr = &transport.NetworkError{URL: "http://svc/api/tasks", Err: errors.New("refused")}
	snap, err = e.Sync(ctx, Options{Silent: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStale)
	var netErr *transport.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.Equal(t, Cached, snap.Freshness)
	assert.Equal(t, []string{"t1", "t2"}, ids(snap.Tasks))
	assert.Equal(t, snap, e.Current())
	assert.Equal(t, BannerStale, notices.CurrentBanner())
	assert.Len(t, notices.Toasts(), 1, "silent sync must not toast")

	// Recovery clears the banner.
	svc.ListTasksErr = nil
	_, err = e.Sync(ctx, Options{Silent: true})
	require.NoError(t, err)
	assert.Equal(t, "", notices.CurrentBanner())
}

func TestSync_FailureWithoutCacheLeavesSnapshot(t *testing.T) {
	ctx := context.Background()
	e, svc, _, notices := newEngine(t)
	before := e.Current()

	boom := errors.New("service down")
	svc.ListTasksErr = boom
	e.Describe = func(err error) string { return "failed: " + err.Error() }

	snap, err := e.Sync(ctx, Options{})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrStale)
	assert.Equal(t, before, snap)
	assert.Equal(t, before, e.Current())
	assert.Equal(t, BannerNoData, notices.CurrentBanner())
	assert.Equal(t, []string{"failed: service down"}, notices.Toasts())
}

func TestSync_CancelledChangesNothing(t *testing.T) {
	ctx := context.Background()
	e, svc, _, notices := newEngine(t)
	svc.ListTasksErr = transport.ErrCancelled

	_, err := e.Sync(ctx, Options{})
	assert.ErrorIs(t, err, transport.ErrCancelled)
	assert.Empty(t, notices.Banners())
	assert.Empty(t, notices.Toasts())
}

func TestSync_PersistenceFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	svc := testutil.NewFakeService()
	svc.AddTask(service.Task{ID: "t1", Title: "one"})
	kv := testutil.NewMemoryKV()
	kv.Err = errors.New("disk full")

	e := NewEngine(ctx, svc, kv, nil)
	snap, err := e.Sync(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, Live, snap.Freshness)
	assert.Equal(t, []string{"t1"}, ids(e.Current().Tasks))
}
