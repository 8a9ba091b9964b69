package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	_, path := openTemp(t)

	_, err := os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestSQLite_SetGetRemove(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyUserID, "u1"))
	require.NoError(t, s.Set(ctx, KeyUserID, "u2"))

	value, ok, err := s.Get(ctx, KeyUserID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u2", value)

	require.NoError(t, s.Remove(ctx, KeyUserID))
	require.NoError(t, s.Remove(ctx, KeyUserID))
	_, ok, err = s.Get(ctx, KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, KeyTasksCache, `[{"taskId":"t1"}]`))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, `[{"taskId":"t1"}]`, GetString(ctx, s2, KeyTasksCache))
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}
func (failingKV) Set(context.Context, string, string) error { return errors.New("disk gone") }
func (failingKV) Remove(context.Context, string) error      { return errors.New("disk gone") }

func TestBestEffortHelpersSwallowFailures(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", GetString(ctx, failingKV{}, KeyLastSync))
	assert.NotPanics(t, func() {
		Put(ctx, failingKV{}, KeyLastSync, "10:00")
		Drop(ctx, failingKV{}, KeyLastSync)
		Put(ctx, nil, KeyLastSync, "10:00")
	})
}
