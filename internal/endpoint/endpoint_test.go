package endpoint

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexustodo/internal/notify"
	"nexustodo/internal/store"
	"nexustodo/internal/testutil"
	"nexustodo/internal/transport"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		primary string
		want    string
	}{
		{"http://host/api", "http://host/agent"},
		{"http://host/api/", "http://host/agent"},
		{"http://host/svc", "http://host/svc/agent"},
		{"http://host", "http://host/agent"},
		{"http://host/apis", "http://host/apis/agent"},
	}
	for _, tt := range tests {
		t.Run(tt.primary, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.primary))
		})
	}
}

// scripted answers each base with a fixed status and records the calls.
type scripted struct {
	status map[string]int
	err    map[string]error
	calls  []string
}

func (s *scripted) try(ctx context.Context, base string) (transport.Response, error) {
	s.calls = append(s.calls, base)
	if err := s.err[base]; err != nil {
		return transport.Response{}, err
	}
	code := s.status[base]
	if code == 0 {
		code = http.StatusOK
	}
	return transport.Response{Head: transport.Head{
		OK:         code >= 200 && code < 300,
		Status:     code,
		StatusText: http.StatusText(code),
	}, Text: base}, nil
}

func TestWithFallback_ProbesOnceThenReuses(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	var notices notify.Recorder
	r := NewResolver(ctx, "http://svc/api", "", kv, &notices)

	s := &scripted{status: map[string]int{"http://svc/agent": http.StatusNotFound}}
	var discarded int
	resp, err := WithFallback(ctx, r, s.try, func(transport.Response) { discarded++ })
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, FallbackBase, resp.Text)
	assert.Equal(t, []string{"http://svc/agent", FallbackBase}, s.calls)
	assert.Equal(t, 1, discarded)

	assert.Equal(t, FallbackBase, r.AgentBase())
	assert.Equal(t, FallbackBase, kv.Value(store.KeyAgentBaseURL))
	assert.Equal(t, []string{"Switched agent endpoint to " + FallbackBase}, notices.Toasts())

	// Later calls go straight to the discovered address.
	s.calls = nil
	_, err = WithFallback(ctx, r, s.try, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{FallbackBase}, s.calls)
	assert.Len(t, notices.Toasts(), 1)
}

func TestWithFallback_LoadsPersistedDiscovery(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, store.KeyAgentBaseURL, FallbackBase))

	r := NewResolver(ctx, "http://svc/api", "", kv, nil)
	assert.Equal(t, FallbackBase, r.AgentBase())

	s := &scripted{status: map[string]int{FallbackBase: http.StatusNotFound}}
	resp, err := WithFallback(ctx, r, s.try, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, []string{FallbackBase}, s.calls)
}

func TestWithFallback_RetryFailureIsSurfaced(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	r := NewResolver(ctx, "http://svc/api", "", kv, nil)

	t.Run("status", func(t *testing.T) {
		s := &scripted{status: map[string]int{
			"http://svc/agent": http.StatusNotFound,
			FallbackBase:       http.StatusBadGateway,
		}}
		resp, err := WithFallback(ctx, r, s.try, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.Status)
		assert.Equal(t, "", r.Discovered())
		assert.Equal(t, "", kv.Value(store.KeyAgentBaseURL))
	})

	t.Run("network", func(t *testing.T) {
		netErr := &transport.NetworkError{URL: FallbackBase, Err: errors.New("refused")}
		s := &scripted{
			status: map[string]int{"http://svc/agent": http.StatusNotFound},
			err:    map[string]error{FallbackBase: netErr},
		}
		_, err := WithFallback(ctx, r, s.try, nil)
		assert.ErrorIs(t, err, netErr)
		assert.Equal(t, "http://svc/agent", r.AgentBase())
	})
}

func TestWithFallback_ExplicitSecondaryNeverProbes(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(ctx, "http://svc/api", "http://agent.example/agent/", testutil.NewMemoryKV(), nil)
	assert.True(t, r.Explicit())
	assert.Equal(t, "http://agent.example/agent", r.AgentBase())

	s := &scripted{status: map[string]int{"http://agent.example/agent": http.StatusNotFound}}
	resp, err := WithFallback(ctx, r, s.try, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, []string{"http://agent.example/agent"}, s.calls)
}

func TestWithFallback_OnlyExact404Probes(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(ctx, "http://svc/api", "", nil, nil)

	for _, code := range []int{http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusInternalServerError} {
		s := &scripted{status: map[string]int{"http://svc/agent": code}}
		resp, err := WithFallback(ctx, r, s.try, nil)
		require.NoError(t, err)
		assert.Equal(t, code, resp.Status)
		assert.Len(t, s.calls, 1)
	}
}

func TestWithFallback_DerivedEqualToFallbackDoesNotProbe(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	r := NewResolver(ctx, "http://127.0.0.1:15590/api", "", kv, nil)
	require.Equal(t, FallbackBase, r.AgentBase())

	s := &scripted{status: map[string]int{FallbackBase: http.StatusNotFound}}
	resp, err := WithFallback(ctx, r, s.try, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, []string{FallbackBase}, s.calls)
	assert.Empty(t, r.Discovered())
	assert.Empty(t, kv.Value(store.KeyAgentBaseURL))
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, store.KeyAgentBaseURL, FallbackBase))
	r := NewResolver(ctx, "http://svc/api", "", kv, nil)

	r.Forget(ctx)
	assert.Equal(t, "http://svc/agent", r.AgentBase())
	_, ok, err := kv.Get(ctx, store.KeyAgentBaseURL)
	require.NoError(t, err)
	assert.False(t, ok)
}
