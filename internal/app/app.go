// Package app wires the core subsystems (Store, Attention Engine, Event
// Bus, Backend Registry, Broker, Scheduler, Sync/Index Coordinator)
// into a running App from a loaded Config, the way command main.go
// wiring is done: one bootstrap path shared by every entry point
// instead of each command reassembling the stack by hand.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dopectx/core/internal/attention"
	"github.com/dopectx/core/internal/broker"
	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/eventbus"
	"github.com/dopectx/core/internal/logging"
	"github.com/dopectx/core/internal/registry"
	"github.com/dopectx/core/internal/scheduler"
	"github.com/dopectx/core/internal/session"
	"github.com/dopectx/core/internal/store"
	"github.com/dopectx/core/internal/syncindex"
)

// App holds every wired subsystem for one workspace.
type App struct {
	Config    *config.Config
	Store     *store.Store
	Attn      *attention.Engine
	Bus       *eventbus.Bus
	Registry  *registry.Registry
	Broker    *broker.Broker
	SyncIndex *syncindex.Coordinator
	Session   *session.Service
	Scheduler *scheduler.Scheduler

	workspaceID string
	workspaceDir string
}

// priorityWeight maps a backend's configured priority tier to the
// integer weight the registry orders candidates by (startup warmup
// order tiers, descending).
var priorityWeight = map[string]int{
	"critical_path": 100,
	"workflow":       80,
	"research":       60,
	"quality":        40,
	"coordination":   60,
	"utility":        20,
}

func resolvePriority(tier string) int {
	if w, ok := priorityWeight[tier]; ok {
		return w
	}
	return 10
}

// New boots every subsystem for workspaceID rooted at workspaceDir and
// starts the scheduler. Call Close when done.
func New(ctx context.Context, cfg *config.Config, workspaceID, workspaceDir string) (*App, error) {
	if err := logging.Init(cfg.Logging.Debug); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := eventbus.New(cfg.EventBus.SubscriberQueueSize)
	attn := attention.New(cfg.Attention, bus)

	reg := registry.NewRegistry(cfg.Registry.ProbeTimeout)
	for _, b := range cfg.Registry.Backends {
		rc := registry.BackendConfig{
			Name:      b.Name,
			Transport: registry.Transport(b.Transport),
			Endpoint:  b.Endpoint,
			RoleTags:  b.RoleTags,
			Priority:  resolvePriority(b.Priority),
			Timeout:   b.DefaultTimeout,
			Enabled:   b.Enabled,
		}
		if err := reg.Register(rc); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("register backend %s: %w", b.Name, err)
		}
	}

	br := broker.New(cfg.Broker, reg, attn, bus)
	sync := syncindex.New(cfg.SyncIndex)
	svc := session.New(st, attn, bus, reg, br)

	sched := scheduler.New(logging.Get(logging.CategoryScheduler))
	sched.AddJob(&scheduler.RegistryProbeJob{Registry: reg}, cfg.Registry.ProbeInterval)
	sched.AddJob(&scheduler.AttentionBreakTickJob{Engine: attn}, time.Minute)
	sched.AddJob(&scheduler.SyncIndexSnapshotJob{
		Coordinator: sync,
		Bus:         bus,
		WorkspaceID: workspaceID,
		RootDir:     workspaceDir,
	}, 5*time.Minute)
	sched.Start(ctx)

	return &App{
		Config:       cfg,
		Store:        st,
		Attn:         attn,
		Bus:          bus,
		Registry:     reg,
		Broker:       br,
		SyncIndex:    sync,
		Session:      svc,
		Scheduler:    sched,
		workspaceID:  workspaceID,
		workspaceDir: workspaceDir,
	}, nil
}

// Close stops the scheduler and closes the store.
func (a *App) Close() error {
	a.Scheduler.Stop()
	logging.Sync()
	return a.Store.Close()
}
