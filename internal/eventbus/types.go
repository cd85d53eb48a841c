// Package eventbus implements the Event Bus: validated
// typed events, an authority matrix of which source systems may publish
// which event types, and bounded per-subscriber delivery with a
// priority-based drop policy under backpressure.
package eventbus

import "time"

// EventType enumerates the events the core's subsystems exchange.
type EventType string

const (
	// EventTaskCreated, EventStatusChanged, EventCodeChanged, and
	// EventDecisionLogged are the four event types with an explicit,
	// literal authoritative-emitter rule: only the named source system
	// may ever publish them.
	EventTaskCreated    EventType = "task_created"
	EventStatusChanged  EventType = "status_changed"
	EventCodeChanged    EventType = "code_changed"
	EventDecisionLogged EventType = "decision_logged"

	EventAttentionStateChanged EventType = "attention.state_changed"
	EventBreakRequired         EventType = "attention.break_required"
	EventBudgetExceeded        EventType = "broker.budget_exceeded"
)

// Priority governs which queued events are dropped first once a
// subscriber's bounded queue is full.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Event is the envelope carried over the bus. ID and CreatedAt are
// stamped by Publish, so every delivered event has a timestamp and a
// correlation id regardless of what the caller supplied; Type,
// SourceSystem, and TargetSystems must be supplied by the caller and are
// rejected if missing.
type Event struct {
	ID            string         `json:"id"`
	SourceSystem  string         `json:"source_system"`
	TargetSystems []string       `json:"target_systems"`
	Type          EventType      `json:"type"`
	WorkspaceID   string         `json:"workspace_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Priority      Priority       `json:"priority"`
	CreatedAt     time.Time      `json:"created_at"`
}

// authorityMatrix maps each event type to the set of source systems
// permitted to publish it: publishing from outside this set
// is a validation error, not a silent no-op.
var authorityMatrix = map[EventType]map[string]bool{
	EventTaskCreated:    {"task-planning": true},
	EventStatusChanged:  {"project-management": true},
	EventCodeChanged:    {"code-navigation": true},
	EventDecisionLogged: {"session-store": true},

	EventAttentionStateChanged: {"attention": true},
	EventBreakRequired:         {"attention": true},
	EventBudgetExceeded:        {"broker": true},
}

func authorized(sourceSystem string, eventType EventType) bool {
	allowed, ok := authorityMatrix[eventType]
	if !ok {
		return false
	}
	return allowed[sourceSystem]
}
