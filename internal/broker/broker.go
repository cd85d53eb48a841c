// Package broker implements the MCP Meta-Broker: the
// single entry point that resolves a tool invocation to a healthy
// backend, applies role budgets and attention-aware shaping, and
// retries across backends behind a per-backend circuit breaker.
package broker

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/dopectx/core/internal/attention"
	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/coreerr"
	"github.com/dopectx/core/internal/domain"
	"github.com/dopectx/core/internal/eventbus"
	"github.com/dopectx/core/internal/logging"
	"github.com/dopectx/core/internal/registry"
)

// Broker is the Meta-Broker.
type Broker struct {
	cfg      config.BrokerConfig
	registry *registry.Registry
	attn     *attention.Engine
	bus      *eventbus.Bus

	budgets      *budgetTracker
	circuits     *circuitRegistry
	docPreferred map[string]bool
}

// New constructs a Broker wired to a backend registry and attention
// engine. bus may be nil to disable event emission (useful in tests).
func New(cfg config.BrokerConfig, reg *registry.Registry, attn *attention.Engine, bus *eventbus.Bus) *Broker {
	docPreferred := make(map[string]bool, len(cfg.DocumentationPreferredTools))
	for _, name := range cfg.DocumentationPreferredTools {
		docPreferred[name] = true
	}
	return &Broker{
		cfg:          cfg,
		registry:     reg,
		attn:         attn,
		bus:          bus,
		budgets:      newBudgetTracker(cfg.Roles),
		circuits:     newCircuitRegistry(cfg),
		docPreferred: docPreferred,
	}
}

// InvokeRequest describes one tool invocation to resolve and execute.
type InvokeRequest struct {
	WorkspaceID     string
	Role            domain.Role
	ToolName        string
	Args            map[string]any
	EstimatedTokens int
	// Override bypasses the mandatory-break soft-preemption, for the
	// rare case the caller has already obtained explicit user consent.
	Override bool
}

// Invoke resolves req to a backend and executes it, retrying across
// backends on failure.
func (b *Broker) Invoke(ctx context.Context, req InvokeRequest) (*registry.InvokeResult, error) {
	if req.WorkspaceID == "" || req.ToolName == "" {
		return nil, coreerr.New(coreerr.KindValidationError, "workspace_id and tool_name are required")
	}

	if !req.Override && b.attn != nil {
		if urgency := b.attn.RecommendBreak(ctx, req.WorkspaceID); urgency == domain.BreakMandatory {
			return nil, coreerr.New(coreerr.KindBreakRequired,
				"a mandatory break is due before another tool invocation").
				WithPresentational("You've been at this a while — a short break will help, not hurt, the next step.").
				WithCorrelation("", "", req.WorkspaceID)
		}
	}

	estimated := req.EstimatedTokens
	if estimated <= 0 {
		estimated = 1
	}
	ok, remaining := b.budgets.Reserve(req.WorkspaceID, req.Role, estimated)
	if !ok {
		if b.bus != nil {
			_ = b.bus.Publish(ctx, eventbus.Event{
				SourceSystem:  "broker",
				TargetSystems: []string{"session-store"},
				Type:          eventbus.EventBudgetExceeded,
				WorkspaceID:   req.WorkspaceID,
				Payload:       map[string]any{"role": string(req.Role), "remaining": remaining},
				Priority:      eventbus.PriorityHigh,
			})
		}
		return nil, coreerr.New(coreerr.KindBudgetExceeded,
			fmt.Sprintf("role %q token budget exhausted for this window (remaining=%d)", req.Role, remaining)).
			WithCorrelation("", "", req.WorkspaceID)
	}

	candidates := resolveCandidates(b.registry.ByRole(string(req.Role)), req.ToolName, b.docPreferred)
	if len(candidates) == 0 {
		return nil, coreerr.New(coreerr.KindNoBackend,
			fmt.Sprintf("no enabled, healthy backend advertises role %q", req.Role)).
			WithCorrelation("", "", req.WorkspaceID)
	}

	var lastErr error
	for _, backend := range candidates {
		result, err := b.invokeBackend(ctx, backend, req)
		if err == nil {
			actual := estimateActualTokens(result, estimated)
			b.budgets.Adjust(req.WorkspaceID, req.Role, estimated, actual)
			return b.shapeResult(req.WorkspaceID, result), nil
		}
		lastErr = err
		logging.Get(logging.CategoryBroker).Warnf("backend %s failed for tool %s: %v", backend.Config.Name, req.ToolName, err)
	}

	b.budgets.Adjust(req.WorkspaceID, req.Role, estimated, 0)
	return nil, coreerr.New(coreerr.KindUnavailable,
		fmt.Sprintf("all candidate backends failed for role %q: %v", req.Role, lastErr)).
		WithRetryable(true).
		WithCorrelation("", "", req.WorkspaceID)
}

// invokeBackend executes req against one backend through its circuit
// breaker, retrying cfg.MaxRetries times with exponential backoff and
// jitter before giving up on that backend.
func (b *Broker) invokeBackend(ctx context.Context, backend *registry.Backend, req InvokeRequest) (*registry.InvokeResult, error) {
	transport, ok := b.registry.Transport(backend.Config.Name)
	if !ok {
		return nil, fmt.Errorf("backend %s has no live transport", backend.Config.Name)
	}

	cb := b.circuits.get(backend.Config.Name)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.cfg.RetryBaseDelay
	bo.RandomizationFactor = b.cfg.RetryJitter
	bo.Multiplier = 2.0
	bounded := backoff.WithMaxRetries(bo, uint64(b.cfg.MaxRetries))
	bounded = backoff.WithContext(bounded, ctx)

	var result *registry.InvokeResult
	operation := func() error {
		out, err := cb.Execute(func() (any, error) {
			if !transport.Connected() {
				if err := transport.Connect(ctx); err != nil {
					return nil, err
				}
			}
			res, err := transport.Invoke(ctx, req.ToolName, req.Args)
			if err != nil {
				return nil, err
			}
			if !res.Success {
				return nil, fmt.Errorf("tool invocation failed: %s", res.Error)
			}
			return res, nil
		})
		if err != nil {
			if err == gobreaker.ErrOpenState {
				return backoff.Permanent(err)
			}
			return err
		}
		result = out.(*registry.InvokeResult)
		result.BackendName = backend.Config.Name
		return nil
	}

	if err := backoff.Retry(operation, bounded); err != nil {
		return nil, err
	}
	return result, nil
}

// BudgetRemaining reports the tokens left in the current rolling
// window for a workspace/role pair, for the stats command surface.
func (b *Broker) BudgetRemaining(workspaceID string, role domain.Role) (remaining int, unlimited bool) {
	return b.budgets.Remaining(workspaceID, role)
}

// shapeResult applies attention-aware output shaping: when
// the workspace's attention state is "scattered", payloads are capped to
// cfg.ScatteredTokenLimit bytes so a distractible user is not handed a
// wall of text.
func (b *Broker) shapeResult(workspaceID string, result *registry.InvokeResult) *registry.InvokeResult {
	if b.attn == nil || b.cfg.ScatteredTokenLimit <= 0 {
		return result
	}
	if b.attn.CurrentState(workspaceID) != domain.AttentionScattered {
		return result
	}
	if len(result.Output) <= b.cfg.ScatteredTokenLimit {
		return result
	}

	shaped := *result
	shaped.Output = append(append([]byte{}, result.Output[:b.cfg.ScatteredTokenLimit]...), []byte("...")...)
	return &shaped
}

// estimateActualTokens approximates real spend from output size (roughly
// 4 bytes/token, at least 1), falling back to the pre-call estimate when
// the output is empty. budgetTracker.Adjust only ever raises the debit,
// so an actual cost below the reservation leaves the reservation spent.
func estimateActualTokens(result *registry.InvokeResult, estimated int) int {
	if result == nil || len(result.Output) == 0 {
		return estimated
	}
	actual := len(result.Output) / 4
	if actual == 0 {
		actual = 1
	}
	return actual
}
