package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexustodo/internal/testutil"
)

func TestDue(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 5, 4, h, m, 0, 0, time.Local) }

	tests := []struct {
		name     string
		now      time.Time
		lastDone string
		want     bool
	}{
		{"before time", at(17, 59), "", false},
		{"at time", at(18, 0), "", true},
		{"after time", at(23, 10), "2026-05-03", true},
		{"done today", at(23, 10), "2026-05-04", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Due(tt.now, "18:00", tt.lastDone)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Due(at(1, 0), "6pm", "")
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	now := time.Date(2026, 5, 4, 19, 0, 0, 0, time.Local)

	assert.Equal(t, "", LastDone(ctx, kv))
	assert.Equal(t, "2026-05-04", Complete(ctx, kv, now))
	assert.Equal(t, "2026-05-04", LastDone(ctx, kv))

	due, err := Due(now, "18:00", LastDone(ctx, kv))
	require.NoError(t, err)
	assert.False(t, due)
}
