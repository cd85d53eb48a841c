// Package attention implements the Attention Engine:
// attention/energy classification, break policy, and task-suitability
// scoring.
package attention

import (
	"context"
	"sync"
	"time"

	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/domain"
	"github.com/dopectx/core/internal/eventbus"
	"github.com/dopectx/core/internal/logging"
)

// sessionState tracks one workspace's running attention session: when
// the current uninterrupted stretch began and its recent samples.
type sessionState struct {
	startedAt    time.Time
	lastSampleAt time.Time
	samples      []domain.AttentionSample
	breakSince   time.Time
}

// Engine is the Attention Engine. One Engine instance serves all
// workspaces; each workspace carries its own session state.
type Engine struct {
	mu      sync.Mutex
	cfg     config.AttentionConfig
	bus     *eventbus.Bus
	clock   func() time.Time
	byWorkspace map[string]*sessionState
}

// New constructs an Engine. bus may be nil, in which case break/state
// transitions are not published as events (useful in tests).
func New(cfg config.AttentionConfig, bus *eventbus.Bus) *Engine {
	return &Engine{
		cfg:         cfg,
		bus:         bus,
		clock:       time.Now,
		byWorkspace: make(map[string]*sessionState),
	}
}

func (e *Engine) state(workspaceID string) *sessionState {
	s, ok := e.byWorkspace[workspaceID]
	if !ok {
		now := e.clock()
		s = &sessionState{startedAt: now, lastSampleAt: now}
		e.byWorkspace[workspaceID] = s
	}
	return s
}

// ReportSample records an attention/energy data point for a workspace
// and returns the freshly classified attention state.
func (e *Engine) ReportSample(ctx context.Context, sample domain.AttentionSample) (domain.AttentionState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state(sample.WorkspaceID)
	now := e.clock()
	sample.SampledAt = now
	s.samples = append(s.samples, sample)
	s.lastSampleAt = now

	cutoff := now.Add(-e.cfg.SampleRetention)
	trimmed := s.samples[:0]
	for _, smp := range s.samples {
		if smp.SampledAt.After(cutoff) {
			trimmed = append(trimmed, smp)
		}
	}
	s.samples = trimmed

	state := e.classifyLocked(sample.WorkspaceID)
	if e.bus != nil {
		_ = e.bus.Publish(ctx, eventbus.Event{
			SourceSystem:  "attention",
			TargetSystems: []string{"broker"},
			Type:          eventbus.EventAttentionStateChanged,
			WorkspaceID:   sample.WorkspaceID,
			Payload:       map[string]any{"state": string(state)},
			Priority:      eventbus.PriorityNormal,
		})
	}
	return state, nil
}

// CurrentState classifies the current attention state for a workspace
// without recording a new sample.
func (e *Engine) CurrentState(workspaceID string) domain.AttentionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.classifyLocked(workspaceID)
}

// classifyLocked must be called with e.mu held.
func (e *Engine) classifyLocked(workspaceID string) domain.AttentionState {
	s, ok := e.byWorkspace[workspaceID]
	if !ok || len(s.samples) == 0 {
		return domain.AttentionTransitioning
	}

	latest := s.samples[len(s.samples)-1]
	duration := s.lastSampleAt.Sub(s.startedAt)

	switch {
	case latest.SwitchRate > e.cfg.ScatteredSwitchRateThreshold && latest.TypingCadence > e.cfg.ScatteredCadenceThreshold:
		return domain.AttentionScattered
	case duration >= e.cfg.HyperfocusMinDuration && latest.SwitchRate <= e.cfg.HyperfocusMaxSwitchRate:
		return domain.AttentionHyperfocused
	case latest.SwitchRate <= e.cfg.HyperfocusMaxSwitchRate*2:
		return domain.AttentionFocused
	case latest.ReportedEnergy == domain.EnergyVeryLow || latest.ReportedEnergy == domain.EnergyLow:
		return domain.AttentionOverwhelmed
	default:
		return domain.AttentionTransitioning
	}
}

// RecommendBreak evaluates the break policy (recommended at
// 25m, strongly recommended at 60m, mandatory at 90m) against the
// workspace's current uninterrupted session length.
func (e *Engine) RecommendBreak(ctx context.Context, workspaceID string) domain.BreakUrgency {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.byWorkspace[workspaceID]
	if !ok {
		return domain.BreakNone
	}
	elapsed := e.clock().Sub(s.startedAt)

	var urgency domain.BreakUrgency
	switch {
	case elapsed >= e.cfg.BreakMandatoryAfter:
		urgency = domain.BreakMandatory
	case elapsed >= e.cfg.BreakStronglyRecommendedAfter:
		urgency = domain.BreakStronglyRecommended
	case elapsed >= e.cfg.BreakRecommendedAfter:
		urgency = domain.BreakRecommended
	default:
		urgency = domain.BreakNone
	}

	if urgency == domain.BreakMandatory && e.bus != nil {
		_ = e.bus.Publish(ctx, eventbus.Event{
			SourceSystem:  "attention",
			TargetSystems: []string{"broker"},
			Type:          eventbus.EventBreakRequired,
			WorkspaceID:   workspaceID,
			Payload:       map[string]any{"elapsed_minutes": elapsed.Minutes()},
			Priority:      eventbus.PriorityHigh,
		})
	}
	return urgency
}

// ActiveWorkspaceIDs lists every workspace with a tracked session,
// for the scheduler's periodic break-urgency tick.
func (e *Engine) ActiveWorkspaceIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.byWorkspace))
	for id := range e.byWorkspace {
		ids = append(ids, id)
	}
	return ids
}

// Resume starts a fresh uninterrupted-session clock for a workspace,
// called by session.resume after a break.
func (e *Engine) Resume(workspaceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byWorkspace[workspaceID] = &sessionState{startedAt: e.clock(), lastSampleAt: e.clock()}
}

// AssessTask scores a candidate task's fit against the current
// attention/energy state.
func (e *Engine) AssessTask(workspaceID string, cognitiveLoad float64, requiredEnergy domain.EnergyLevel) domain.TaskSuitability {
	e.mu.Lock()
	state := e.classifyLocked(workspaceID)
	e.mu.Unlock()

	energyRank := map[domain.EnergyLevel]float64{
		domain.EnergyVeryLow: 0, domain.EnergyLow: 1, domain.EnergyMedium: 2,
		domain.EnergyHigh: 3, domain.EnergyHyperfocus: 4,
	}
	currentEnergy := stateToEnergy(state)

	delta := energyRank[currentEnergy] - energyRank[requiredEnergy]
	energyMatch := 1.0 - absFloat(delta)/4.0
	if energyMatch < 0 {
		energyMatch = 0
	}

	suitability := energyMatch*0.6 + (1-cognitiveLoad)*0.4

	rec := "defer"
	switch {
	case suitability >= 0.7:
		rec = "proceed"
	case suitability >= 0.4:
		rec = "proceed_with_caution"
	}

	logging.Get(logging.CategoryAttention).Debugf(
		"assessed task for workspace %s: state=%s load=%.2f score=%.2f -> %s",
		workspaceID, state, cognitiveLoad, suitability, rec)

	return domain.TaskSuitability{
		EnergyMatch:      energyMatch,
		CognitiveLoad:    cognitiveLoad,
		SuitabilityScore: suitability,
		Recommendation:   rec,
	}
}

func stateToEnergy(state domain.AttentionState) domain.EnergyLevel {
	switch state {
	case domain.AttentionHyperfocused:
		return domain.EnergyHyperfocus
	case domain.AttentionFocused:
		return domain.EnergyHigh
	case domain.AttentionScattered:
		return domain.EnergyMedium
	case domain.AttentionOverwhelmed:
		return domain.EnergyVeryLow
	default:
		return domain.EnergyMedium
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
