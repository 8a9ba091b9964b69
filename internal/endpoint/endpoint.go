// Package endpoint decides which base address agent requests go to, and
// performs the one-shot fallback to the local agent address when the derived
// address answers 404.
package endpoint

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"nexustodo/internal/notify"
	"nexustodo/internal/store"
	"nexustodo/internal/transport"
)

// FallbackBase is the local agent address tried when the derived agent
// address does not exist.
const FallbackBase = "http://127.0.0.1:15590/agent"

// Derive returns the agent base for a primary service base.
//
//	http://host/api  -> http://host/agent
//	http://host/svc  -> http://host/svc/agent
func Derive(primary string) string {
	base := strings.TrimRight(primary, "/")
	if strings.HasSuffix(base, "/api") {
		return strings.TrimSuffix(base, "/api") + "/agent"
	}
	return base + "/agent"
}

// Resolver holds the endpoint configuration: the primary base, an optional
// explicit agent base and the discovered fallback.
type Resolver struct {
	primary  string
	explicit string
	kv       store.KV
	notifier notify.Notifier

	mu         sync.Mutex
	discovered string
}

// NewResolver creates a resolver. A previously discovered fallback is loaded
// from kv. kv and notifier may be nil.
func NewResolver(ctx context.Context, primary, explicit string, kv store.KV, notifier notify.Notifier) *Resolver {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Resolver{
		primary:    strings.TrimRight(primary, "/"),
		explicit:   strings.TrimRight(strings.TrimSpace(explicit), "/"),
		kv:         kv,
		notifier:   notifier,
		discovered: store.GetString(ctx, kv, store.KeyAgentBaseURL),
	}
}

// Primary returns the task service base.
func (r *Resolver) Primary() string { return r.primary }

// Explicit reports whether an agent base was configured by the user.
func (r *Resolver) Explicit() bool { return r.explicit != "" }

// AgentBase returns the address agent requests go to.
func (r *Resolver) AgentBase() string {
	if r.explicit != "" {
		return r.explicit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.discovered != "" {
		return r.discovered
	}
	return Derive(r.primary)
}

// Discovered returns the persisted fallback address, "" if none.
func (r *Resolver) Discovered() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discovered
}

// Forget clears the discovered fallback.
func (r *Resolver) Forget(ctx context.Context) {
	r.mu.Lock()
	r.discovered = ""
	r.mu.Unlock()
	store.Drop(ctx, r.kv, store.KeyAgentBaseURL)
}

// shouldProbe reports whether a 404 from tried may be retried against
// FallbackBase.
func (r *Resolver) shouldProbe(tried string) bool {
	if r.explicit != "" || tried == FallbackBase {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discovered == ""
}

func (r *Resolver) remember(ctx context.Context, base string) {
	r.mu.Lock()
	r.discovered = base
	r.mu.Unlock()
	store.Put(ctx, r.kv, store.KeyAgentBaseURL, base)
	slog.Info("agent endpoint switched", "primary", r.primary, "fallback", base)
	r.notifier.Toast("Switched agent endpoint to " + base)
}

// Result is satisfied by transport.Response and *transport.Stream.
type Result interface {
	Meta() transport.Head
}

// WithFallback runs try against the current agent base. When that answers
// exactly 404 and fallback is allowed, the result is passed to discard and
// try runs once more against FallbackBase. The retry's outcome is returned
// in every case; a successful retry makes FallbackBase the agent base for
// all later calls. discard may be nil.
func WithFallback[T Result](ctx context.Context, r *Resolver, try func(ctx context.Context, base string) (T, error), discard func(T)) (T, error) {
	base := r.AgentBase()
	res, err := try(ctx, base)
	if err != nil || res.Meta().Status != http.StatusNotFound || !r.shouldProbe(base) {
		return res, err
	}

	if discard != nil {
		discard(res)
	}
	slog.Debug("agent endpoint not found, trying fallback", "primary", r.primary, "fallback", FallbackBase)

	retry, err := try(ctx, FallbackBase)
	if err != nil {
		return retry, err
	}
	if retry.Meta().OK {
		r.remember(ctx, FallbackBase)
	}
	return retry, nil
}
