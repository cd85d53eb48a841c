package scheduler

import (
	"context"

	"github.com/dopectx/core/internal/attention"
	"github.com/dopectx/core/internal/eventbus"
	"github.com/dopectx/core/internal/registry"
	"github.com/dopectx/core/internal/syncindex"
)

// RegistryProbeJob periodically probes every registered backend so
// health transitions are detected even between invocations.
type RegistryProbeJob struct {
	Registry *registry.Registry
}

func (j *RegistryProbeJob) Name() string { return "registry.probe_all" }

func (j *RegistryProbeJob) Run(ctx context.Context) error {
	return j.Registry.ProbeAll(ctx)
}

// AttentionBreakTickJob periodically evaluates the break policy for
// every workspace with an active session, so a mandatory break is
// surfaced even if the user stops invoking tools.
type AttentionBreakTickJob struct {
	Engine *attention.Engine
}

func (j *AttentionBreakTickJob) Name() string { return "attention.break_tick" }

func (j *AttentionBreakTickJob) Run(ctx context.Context) error {
	for _, workspaceID := range j.Engine.ActiveWorkspaceIDs() {
		j.Engine.RecommendBreak(ctx, workspaceID)
	}
	return nil
}

// SyncIndexSnapshotJob periodically re-snapshots a workspace outside of
// fsnotify-triggered runs, as a fallback for filesystems where events
// are unreliable (network mounts, some CI sandboxes).
type SyncIndexSnapshotJob struct {
	Coordinator *syncindex.Coordinator
	Bus         *eventbus.Bus
	WorkspaceID string
	RootDir     string
}

func (j *SyncIndexSnapshotJob) Name() string { return "syncindex.snapshot_tick" }

func (j *SyncIndexSnapshotJob) Run(ctx context.Context) error {
	hash := syncindex.WorkspaceHash(j.RootDir)

	oldSnap, err := j.Coordinator.Load(hash)
	if err != nil {
		return err
	}
	newSnap, err := j.Coordinator.Snapshot(j.WorkspaceID, j.RootDir)
	if err != nil {
		return err
	}
	diff := syncindex.Diff(oldSnap, newSnap)
	if diff.Empty() {
		return nil
	}
	if err := j.Coordinator.Save(hash, newSnap); err != nil {
		return err
	}
	return j.Bus.Publish(ctx, eventbus.Event{
		SourceSystem:  "code-navigation",
		TargetSystems: []string{"task-planning", "session-store"},
		Type:          eventbus.EventCodeChanged,
		WorkspaceID:   j.WorkspaceID,
		Priority:      eventbus.PriorityLow,
		Payload: map[string]any{
			"trigger":  "scheduler_tick",
			"added":    diff.Added,
			"modified": diff.Modified,
			"removed":  diff.Removed,
		},
	})
}
