// Package session implements the thin dispatcher layer behind the
// command surface: session.start/save/load/break/
// resume/end, task.assess/implement, and stats. It holds no state of
// its own — every operation reads and writes through the Store, the
// Attention Engine, and the Event Bus, and the command layer (cmd/
// dopectl, cmd/dopebrokerd) is a thin wrapper over this package.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dopectx/core/internal/attention"
	"github.com/dopectx/core/internal/broker"
	"github.com/dopectx/core/internal/domain"
	"github.com/dopectx/core/internal/eventbus"
	"github.com/dopectx/core/internal/registry"
	"github.com/dopectx/core/internal/store"
)

// Service wires the Store, Attention Engine, Event Bus, Registry, and
// Broker into the operations the command surface calls.
type Service struct {
	Store    *store.Store
	Attn     *attention.Engine
	Bus      *eventbus.Bus
	Registry *registry.Registry
	Broker   *broker.Broker
	clock    func() time.Time
}

// New builds a Service over already-constructed subsystems.
func New(st *store.Store, attn *attention.Engine, bus *eventbus.Bus, reg *registry.Registry, br *broker.Broker) *Service {
	return &Service{Store: st, Attn: attn, Bus: bus, Registry: reg, Broker: br, clock: time.Now}
}

// Start reads the current active context; if the workspace has never
// had a session, it initializes session_start/mode and emits
// EventAttentionStateChanged as a session-start marker.
func (s *Service) Start(ctx context.Context, workspaceID string) (domain.ActiveContext, error) {
	current, err := s.Store.GetActiveContext(ctx, workspaceID)
	if err != nil {
		return domain.ActiveContext{}, fmt.Errorf("read active context: %w", err)
	}
	if _, started := current.Data["session_start"]; started {
		return current, nil
	}

	patched, err := s.Store.PatchActiveContext(ctx, workspaceID, map[string]any{
		"session_start": s.clock().UTC().Format(time.RFC3339),
		"mode":          "ACT",
	})
	if err != nil {
		return domain.ActiveContext{}, fmt.Errorf("initialize session: %w", err)
	}
	s.Attn.Resume(workspaceID)

	_ = s.Bus.Publish(ctx, eventbus.Event{
		SourceSystem:  "attention",
		TargetSystems: []string{"broker"},
		Type:          eventbus.EventAttentionStateChanged,
		WorkspaceID:   workspaceID,
		Priority:      eventbus.PriorityLow,
		Payload:       map[string]any{"event": "session_started"},
	})
	return patched, nil
}

// RecordDecision appends an immutable decision to the log and publishes
// the authoritative decision_logged event, the only event type
// "session-store" may emit.
func (s *Service) RecordDecision(ctx context.Context, workspaceID string, d domain.Decision) (domain.Decision, error) {
	d.WorkspaceID = workspaceID
	recorded, err := s.Store.RecordDecision(ctx, d)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("record decision: %w", err)
	}
	_ = s.Bus.Publish(ctx, eventbus.Event{
		SourceSystem:  "session-store",
		TargetSystems: []string{"task-planning"},
		Type:          eventbus.EventDecisionLogged,
		WorkspaceID:   workspaceID,
		Priority:      eventbus.PriorityNormal,
		Payload:       map[string]any{"decision_id": recorded.ID, "summary": recorded.Summary},
	})
	return recorded, nil
}

// SaveInput carries the fields session.save is allowed to patch.
type SaveInput struct {
	CurrentFocus   string
	CompletedTasks []string
	NextSteps      []string
}

// Save patches the active context with the caller's progress notes.
func (s *Service) Save(ctx context.Context, workspaceID string, in SaveInput) (domain.ActiveContext, error) {
	patch := map[string]any{"session_saved": s.clock().UTC().Format(time.RFC3339)}
	if in.CurrentFocus != "" {
		patch["current_focus"] = in.CurrentFocus
	}
	if len(in.CompletedTasks) > 0 {
		patch["completed_tasks"] = in.CompletedTasks
	}
	if len(in.NextSteps) > 0 {
		patch["next_steps"] = in.NextSteps
	}
	return s.Store.PatchActiveContext(ctx, workspaceID, patch)
}

// LoadResult bundles the active context with a recap of what the user
// was doing.
type LoadResult struct {
	Context         domain.ActiveContext
	RecentActivity  []store.ActivityEntry
	RecentProgress  []domain.ProgressEntry
}

// Load returns the active context plus a recent-activity summary and
// the most recent progress entries.
func (s *Service) Load(ctx context.Context, workspaceID string, recentLimit int) (LoadResult, error) {
	active, err := s.Store.GetActiveContext(ctx, workspaceID)
	if err != nil {
		return LoadResult{}, fmt.Errorf("read active context: %w", err)
	}
	activity, err := s.Store.RecentActivity(ctx, workspaceID, recentLimit)
	if err != nil {
		return LoadResult{}, fmt.Errorf("read recent activity: %w", err)
	}
	progress, err := s.Store.ListProgressEntries(ctx, workspaceID, "")
	if err != nil {
		return LoadResult{}, fmt.Errorf("list progress entries: %w", err)
	}
	if len(progress) > recentLimit {
		progress = progress[len(progress)-recentLimit:]
	}
	return LoadResult{Context: active, RecentActivity: activity, RecentProgress: progress}, nil
}

// Break marks the workspace as on break and emits a break-started marker.
func (s *Service) Break(ctx context.Context, workspaceID string) (domain.ActiveContext, error) {
	patched, err := s.Store.PatchActiveContext(ctx, workspaceID, map[string]any{
		"on_break":    true,
		"break_start": s.clock().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return domain.ActiveContext{}, fmt.Errorf("record break start: %w", err)
	}
	_ = s.Bus.Publish(ctx, eventbus.Event{
		SourceSystem:  "attention",
		TargetSystems: []string{"broker"},
		Type:          eventbus.EventAttentionStateChanged,
		WorkspaceID:   workspaceID,
		Priority:      eventbus.PriorityNormal,
		Payload:       map[string]any{"event": "break_started"},
	})
	return patched, nil
}

// Resume clears the break flag and resets the Attention Engine's
// uninterrupted-session clock for the workspace, which is what clears
// the mandatory-break soft-preemption gate in the Broker.
func (s *Service) Resume(ctx context.Context, workspaceID string) (domain.ActiveContext, error) {
	patched, err := s.Store.PatchActiveContext(ctx, workspaceID, map[string]any{
		"on_break":    false,
		"resume_time": s.clock().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return domain.ActiveContext{}, fmt.Errorf("record resume: %w", err)
	}
	s.Attn.Resume(workspaceID)

	_ = s.Bus.Publish(ctx, eventbus.Event{
		SourceSystem:  "attention",
		TargetSystems: []string{"broker"},
		Type:          eventbus.EventAttentionStateChanged,
		WorkspaceID:   workspaceID,
		Priority:      eventbus.PriorityNormal,
		Payload:       map[string]any{"event": "break_ended"},
	})
	return patched, nil
}

// End finalizes the session: it evaluates the break policy one last
// time and emits a session-ended marker.
func (s *Service) End(ctx context.Context, workspaceID string) (domain.BreakUrgency, error) {
	urgency := s.Attn.RecommendBreak(ctx, workspaceID)
	_ = s.Bus.Publish(ctx, eventbus.Event{
		SourceSystem:  "attention",
		TargetSystems: []string{"broker"},
		Type:          eventbus.EventAttentionStateChanged,
		WorkspaceID:   workspaceID,
		Priority:      eventbus.PriorityLow,
		Payload:       map[string]any{"event": "session_ended", "break_urgency": string(urgency)},
	})
	return urgency, nil
}
