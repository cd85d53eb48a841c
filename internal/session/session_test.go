package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dopectx/core/internal/attention"
	"github.com/dopectx/core/internal/broker"
	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/domain"
	"github.com/dopectx/core/internal/eventbus"
	"github.com/dopectx/core/internal/registry"
	"github.com/dopectx/core/internal/store"
)

type fakeTransport struct {
	connected bool
	output    string
}

func (f *fakeTransport) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeTransport) Disconnect() error                 { f.connected = false; return nil }
func (f *fakeTransport) ListTools(ctx context.Context) ([]registry.ToolSchema, error) {
	return nil, nil
}
func (f *fakeTransport) Invoke(ctx context.Context, tool string, args map[string]any) (*registry.InvokeResult, error) {
	return &registry.InvokeResult{Success: true, Output: json.RawMessage(f.output)}, nil
}
func (f *fakeTransport) Probe(ctx context.Context) error { return nil }
func (f *fakeTransport) Connected() bool                 { return f.connected }

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), config.StoreConfig{RootDir: dir, BusyTimeoutMS: 2000}, "ws-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New(32)
	engine := attention.New(config.DefaultAttentionConfig(), bus)

	reg := registry.NewRegistry(time.Second)
	require.NoError(t, reg.RegisterWithTransport(registry.BackendConfig{
		Name: "alpha", Transport: registry.TransportHTTP, RoleTags: []string{"research"}, Priority: 1, Enabled: true,
	}, &fakeTransport{output: `{"ok":true}`}))

	brokerCfg := config.DefaultBrokerConfig()
	brokerCfg.MaxRetries = 0
	b := broker.New(brokerCfg, reg, engine, bus)

	return New(st, engine, bus, reg, b)
}

func TestStartInitializesSessionOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ac, err := svc.Start(ctx, "ws-test")
	require.NoError(t, err)
	assert.Contains(t, ac.Data, "session_start")
	assert.Equal(t, "ACT", ac.Data["mode"])

	again, err := svc.Start(ctx, "ws-test")
	require.NoError(t, err)
	assert.Equal(t, ac.Data["session_start"], again.Data["session_start"])
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Start(ctx, "ws-test")
	require.NoError(t, err)

	_, err = svc.Save(ctx, "ws-test", SaveInput{
		CurrentFocus:   "fixing the budget tracker",
		CompletedTasks: []string{"task-1"},
		NextSteps:      []string{"write tests"},
	})
	require.NoError(t, err)

	loaded, err := svc.Load(ctx, "ws-test", 10)
	require.NoError(t, err)
	assert.Equal(t, "fixing the budget tracker", loaded.Context.Data["current_focus"])
}

func TestBreakThenResumeClearsOnBreakFlag(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ac, err := svc.Break(ctx, "ws-test")
	require.NoError(t, err)
	assert.Equal(t, true, ac.Data["on_break"])

	ac, err = svc.Resume(ctx, "ws-test")
	require.NoError(t, err)
	assert.Equal(t, false, ac.Data["on_break"])
}

func TestRecordDecisionAppendsAndPublishesDecisionLogged(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	received := make(chan eventbus.Event, 1)
	unsubscribe := svc.Bus.Subscribe(ctx, func(e eventbus.Event) { received <- e }, eventbus.EventDecisionLogged)
	defer unsubscribe()

	d, err := svc.RecordDecision(ctx, "ws-test", domain.Decision{Summary: "use sqlite for storage"})
	require.NoError(t, err)
	assert.NotZero(t, d.ID)

	select {
	case evt := <-received:
		assert.Equal(t, "session-store", evt.SourceSystem)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decision_logged event")
	}
}

func TestAssessTaskReturnsSuitability(t *testing.T) {
	svc := newTestService(t)
	result := svc.AssessTask("ws-test", TaskInput{
		ComplexityScore:  0.5,
		EstimatedMinutes: 30,
		TaskTypeFactor:   0.2,
		RequiredEnergy:   domain.EnergyMedium,
	})
	assert.GreaterOrEqual(t, result.SuitabilityScore, 0.0)
	assert.LessOrEqual(t, result.SuitabilityScore, 1.0)
}

func TestImplementTaskTransitionsToInProgress(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Store.CreateProgressEntry(ctx, domain.ProgressEntry{ID: "task-1", WorkspaceID: "ws-test", Title: "write docs"})
	require.NoError(t, err)

	entry, handle, err := svc.ImplementTask(ctx, "ws-test", "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressInProgress, entry.Status)
	handle.Stop()
}

func TestCreateTaskPersistsADHDMetadataAndEmitsTaskCreated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	entry, err := svc.CreateTask(ctx, "ws-test", CreateTaskInput{
		ID:               "task-2",
		Title:            "refactor the budget tracker",
		ComplexityScore:  0.6,
		EstimatedMinutes: 45,
		EnergyRequired:   domain.EnergyHigh,
		TaskTypeFactor:   0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressTODO, entry.Status)
	assert.Equal(t, domain.EnergyHigh, entry.EnergyRequired)
	assert.Greater(t, entry.CognitiveLoad, 0.0)

	fetched, err := svc.Store.GetProgressEntry(ctx, "ws-test", "task-2")
	require.NoError(t, err)
	assert.Equal(t, entry.CognitiveLoad, fetched.CognitiveLoad)
	assert.Equal(t, entry.EstimatedMinutes, fetched.EstimatedMinutes)
}

func TestImplementTaskPicksMostSuitableOverFIFO(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, "ws-test", CreateTaskInput{
		ID: "task-old-heavy", Title: "rewrite the scheduler",
		ComplexityScore: 1.0, EstimatedMinutes: 120, EnergyRequired: domain.EnergyHyperfocus,
	})
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, "ws-test", CreateTaskInput{
		ID: "task-new-light", Title: "tidy up a log message",
		ComplexityScore: 0.05, EstimatedMinutes: 5, EnergyRequired: domain.EnergyMedium,
	})
	require.NoError(t, err)

	entry, handle, err := svc.ImplementTask(ctx, "ws-test", "")
	require.NoError(t, err)
	defer handle.Stop()

	assert.Equal(t, "task-new-light", entry.ID, "attention-aware pick should prefer the low-load task over FIFO order")
}

func TestStatsReportsAttentionAndBudget(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	stats, err := svc.Stats(ctx, "ws-test")
	require.NoError(t, err)
	require.Len(t, stats.RoleBudgets, 4)
	assert.Equal(t, 1, stats.BackendHealth.Unknown)
}
