package session

import (
	"context"
	"time"

	"github.com/dopectx/core/internal/domain"
	"github.com/dopectx/core/internal/registry"
)

// BackendHealthSummary counts registered backends by health state.
type BackendHealthSummary struct {
	Up       int `json:"up"`
	Degraded int `json:"degraded"`
	Down     int `json:"down"`
	Unknown  int `json:"unknown"`
}

// RoleBudgetStatus is one role's remaining-budget snapshot.
type RoleBudgetStatus struct {
	Role      domain.Role `json:"role"`
	Remaining int         `json:"remaining"`
	Unlimited bool        `json:"unlimited"`
}

// Stats is the combined response to the stats command:
// current attention state, recent completion counts, budget remaining
// per role, and a backend health summary.
type Stats struct {
	AttentionState    domain.AttentionState  `json:"attention_state"`
	BreakUrgency      domain.BreakUrgency    `json:"break_urgency"`
	CompletedToday    int                    `json:"completed_today"`
	RoleBudgets       []RoleBudgetStatus     `json:"role_budgets"`
	BackendHealth     BackendHealthSummary   `json:"backend_health"`
}

var allRoles = []domain.Role{
	domain.RoleResearch, domain.RoleImplementation, domain.RoleQuality, domain.RoleCoordination,
}

// Stats computes the current snapshot for a workspace.
func (s *Service) Stats(ctx context.Context, workspaceID string) (Stats, error) {
	done, err := s.Store.ListProgressEntries(ctx, workspaceID, domain.ProgressDone)
	if err != nil {
		return Stats{}, err
	}

	budgets := make([]RoleBudgetStatus, 0, len(allRoles))
	for _, role := range allRoles {
		remaining, unlimited := s.Broker.BudgetRemaining(workspaceID, role)
		budgets = append(budgets, RoleBudgetStatus{Role: role, Remaining: remaining, Unlimited: unlimited})
	}

	var health BackendHealthSummary
	for _, backend := range s.Registry.List() {
		switch backend.Health {
		case registry.HealthUp:
			health.Up++
		case registry.HealthDegraded:
			health.Degraded++
		case registry.HealthDown:
			health.Down++
		default:
			health.Unknown++
		}
	}

	year, month, day := s.clock().UTC().Date()
	todayStart := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	completedToday := 0
	for _, entry := range done {
		if !entry.UpdatedAt.Before(todayStart) {
			completedToday++
		}
	}

	return Stats{
		AttentionState: s.Attn.CurrentState(workspaceID),
		BreakUrgency:   s.Attn.RecommendBreak(ctx, workspaceID),
		CompletedToday: completedToday,
		RoleBudgets:    budgets,
		BackendHealth:  health,
	}, nil
}
