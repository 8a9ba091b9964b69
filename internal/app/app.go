// Package app holds the per-process application context: configuration,
// local state, the task service client and the engines built on them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"nexustodo/internal/backend/nexusapi"
	"nexustodo/internal/chat"
	"nexustodo/internal/config"
	"nexustodo/internal/endpoint"
	"nexustodo/internal/notify"
	"nexustodo/internal/service"
	"nexustodo/internal/store"
	"nexustodo/internal/tasksync"
	"nexustodo/internal/transport"
)

// App is created once per process and closed on shutdown.
type App struct {
	Config   *config.Config
	Store    store.KV
	Service  service.Service
	Resolver *endpoint.Resolver
	Sync     *tasksync.Engine
	Notifier notify.Notifier

	mu       sync.Mutex
	identity service.Identity
	loaded   bool
	closers  []io.Closer
}

// Parts are the collaborators Assemble wires together. Tests supply fakes.
type Parts struct {
	Config   *config.Config
	Store    store.KV
	Service  service.Service
	Resolver *endpoint.Resolver
	Notifier notify.Notifier
}

// Assemble builds an App from ready-made parts.
func Assemble(ctx context.Context, p Parts) *App {
	a := &App{}
	a.wire(ctx, p)
	return a
}

func (a *App) wire(ctx context.Context, p Parts) {
	if p.Notifier == nil {
		p.Notifier = notify.Discard{}
	}
	a.Config = p.Config
	a.Store = p.Store
	a.Service = p.Service
	a.Resolver = p.Resolver
	a.Notifier = p.Notifier
	a.Sync = tasksync.NewEngine(ctx, p.Service, p.Store, p.Notifier)
	a.Sync.Describe = nexusapi.Message
}

// Open builds the production App: the state database under the config
// directory, the transport selected by the settings, and the task service
// client.
func Open(ctx context.Context, cfg *config.Config, notifier notify.Notifier) (*App, error) {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if err := cfg.EnsureDir(); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}
	db, err := store.Open(cfg.StatePath())
	if err != nil {
		return nil, err
	}

	s := cfg.Settings
	var tr transport.Transport
	var closers []io.Closer
	if s.BridgeURL != "" {
		bridge := transport.NewBridge(s.BridgeURL, s.Timeout)
		tr = bridge
		closers = append(closers, bridge)
		slog.Debug("using host bridge", "url", s.BridgeURL)
	} else {
		tr = transport.NewHTTP(nil, s.Timeout)
	}
	closers = append(closers, db)

	resolver := endpoint.NewResolver(ctx, s.BaseURL, s.AgentBaseURL, db, notifier)

	a := &App{closers: closers}
	client := nexusapi.New(tr, resolver, s.Token, a.Identity)
	a.wire(ctx, Parts{
		Config:   cfg,
		Store:    db,
		Service:  client,
		Resolver: resolver,
		Notifier: notifier,
	})
	return a, nil
}

// Close releases the transport and the state database.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Identity returns the persisted identity. It may be unregistered.
func (a *App) Identity() service.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		ctx := context.Background()
		a.identity = service.Identity{
			UserID:   store.GetString(ctx, a.Store, store.KeyUserID),
			DeviceID: store.GetString(ctx, a.Store, store.KeyDeviceID),
		}
		a.loaded = true
	}
	return a.identity
}

// EnsureRegistered returns the identity, registering this device first if
// needed.
func (a *App) EnsureRegistered(ctx context.Context) (service.Identity, error) {
	if id := a.Identity(); id.Registered() {
		return id, nil
	}
	return a.Register(ctx)
}

// Register registers the device with the service, generating a device id
// on first use, and persists the returned identity.
func (a *App) Register(ctx context.Context) (service.Identity, error) {
	deviceID := a.Identity().DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
		store.Put(ctx, a.Store, store.KeyDeviceID, deviceID)
	}

	id, err := a.Service.RegisterDevice(ctx, deviceID)
	if err != nil {
		return service.Identity{}, fmt.Errorf("device registration failed: %w", err)
	}
	if id.DeviceID == "" {
		id.DeviceID = deviceID
	}
	store.Put(ctx, a.Store, store.KeyDeviceID, id.DeviceID)
	store.Put(ctx, a.Store, store.KeyUserID, id.UserID)

	a.mu.Lock()
	a.identity = id
	a.loaded = true
	a.mu.Unlock()
	slog.Debug("device registered", "device", id.DeviceID, "user", id.UserID)
	return id, nil
}

// NewChat creates a conversation bound to this app's identity and sync
// engine.
func (a *App) NewChat(confirm func(prompt string) bool, observer chat.Observer) *chat.Orchestrator {
	return chat.New(a.Service, chat.Options{
		Identity:  a.Identity,
		Refresher: a.Sync,
		Confirm:   confirm,
		Observer:  observer,
		Describe:  nexusapi.Message,
	})
}
