package broker

import (
	"sync"
	"time"

	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/domain"
)

// budgetKey identifies one rolling budget window (budgets
// are scoped per workspace and per role, not globally).
type budgetKey struct {
	workspaceID string
	role        domain.Role
}

// window is a single rolling accounting window: tokens/cost spent since
// windowStart, reset lazily once the window elapses.
type window struct {
	windowStart time.Time
	tokensSpent int
}

// budgetTracker enforces the rolling per-(workspace,role) token budgets
// from the broker's role configuration.
type budgetTracker struct {
	mu      sync.Mutex
	roles   map[string]config.RoleBudget
	windows map[budgetKey]*window
	clock   func() time.Time
}

func newBudgetTracker(roles map[string]config.RoleBudget) *budgetTracker {
	return &budgetTracker{
		roles:   roles,
		windows: make(map[budgetKey]*window),
		clock:   time.Now,
	}
}

// Reserve checks whether estimatedTokens would push workspaceID/role
// over its rolling budget. On success it immediately debits the
// estimate; the caller should call Adjust once the actual spend is
// known, which only ever raises the debited amount (see Adjust).
func (b *budgetTracker) Reserve(workspaceID string, role domain.Role, estimatedTokens int) (ok bool, remaining int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	budget, hasBudget := b.roles[string(role)]
	if !hasBudget || budget.Budget <= 0 {
		return true, -1 // unbudgeted role: unlimited
	}

	key := budgetKey{workspaceID: workspaceID, role: role}
	w, ok := b.windows[key]
	now := b.clock()
	if !ok || now.Sub(w.windowStart) >= budget.RollingWindow {
		w = &window{windowStart: now}
		b.windows[key] = w
	}

	if w.tokensSpent+estimatedTokens > budget.Budget {
		return false, budget.Budget - w.tokensSpent
	}
	w.tokensSpent += estimatedTokens
	return true, budget.Budget - w.tokensSpent
}

// Remaining reports the tokens left in the current rolling window for
// workspaceID/role without reserving anything, for the stats command
// surface.
func (b *budgetTracker) Remaining(workspaceID string, role domain.Role) (remaining int, unlimited bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	budget, hasBudget := b.roles[string(role)]
	if !hasBudget || budget.Budget <= 0 {
		return 0, true
	}

	key := budgetKey{workspaceID: workspaceID, role: role}
	w, ok := b.windows[key]
	if !ok || b.clock().Sub(w.windowStart) >= budget.RollingWindow {
		return budget.Budget, false
	}
	return budget.Budget - w.tokensSpent, false
}

// Adjust corrects a prior reservation once the actual token spend for an
// invocation is known. Accumulated spend never decreases within a
// window: if actual exceeds the estimate, the excess is added; if
// actual is less than the estimate, the over-reservation is left in
// place rather than refunded, so a workspace that has already hit
// BudgetExceeded cannot have spend "refunded" mid-window by an
// unrelated cheaper call.
func (b *budgetTracker) Adjust(workspaceID string, role domain.Role, estimated, actual int) {
	if actual <= estimated {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := budgetKey{workspaceID: workspaceID, role: role}
	w, ok := b.windows[key]
	if !ok {
		return
	}
	w.tokensSpent += actual - estimated
}
