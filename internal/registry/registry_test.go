package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transporter for registry tests, grounded
// on the same "fake transport behind a real interface" pattern used for
// storage doubles elsewhere in this repo.
type fakeTransport struct {
	connected bool
	probeErr  error
	tools     []ToolSchema
}

func (f *fakeTransport) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeTransport) Disconnect() error                 { f.connected = false; return nil }
func (f *fakeTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	return f.tools, nil
}
func (f *fakeTransport) Invoke(ctx context.Context, tool string, args map[string]any) (*InvokeResult, error) {
	return &InvokeResult{Success: true, Output: json.RawMessage(`{}`)}, nil
}
func (f *fakeTransport) Probe(ctx context.Context) error { return f.probeErr }
func (f *fakeTransport) Connected() bool                 { return f.connected }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(time.Second)
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Register(BackendConfig{
		Name: "alpha", Transport: TransportHTTP, Endpoint: "http://example.invalid",
		RoleTags: []string{"research"}, Priority: 10, Enabled: true,
	})
	require.NoError(t, err)

	backends := r.List()
	require.Len(t, backends, 1)
	assert.Equal(t, "alpha", backends[0].Config.Name)
	assert.Equal(t, HealthUnknown, backends[0].Health)
}

func TestRegistry_RegisterRejectsEmptyName(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Register(BackendConfig{Transport: TransportHTTP, Endpoint: "http://x"})
	assert.Error(t, err)
}

func TestRegistry_ByRoleOrdersByPriorityDescending(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(BackendConfig{
		Name: "low", Transport: TransportHTTP, Endpoint: "http://a", RoleTags: []string{"quality"}, Priority: 1, Enabled: true,
	}))
	require.NoError(t, r.Register(BackendConfig{
		Name: "high", Transport: TransportHTTP, Endpoint: "http://b", RoleTags: []string{"quality"}, Priority: 9, Enabled: true,
	}))
	require.NoError(t, r.Register(BackendConfig{
		Name: "disabled", Transport: TransportHTTP, Endpoint: "http://c", RoleTags: []string{"quality"}, Priority: 100, Enabled: false,
	}))

	ordered := r.ByRole("quality")
	require.Len(t, ordered, 2)
	assert.Equal(t, "high", ordered[0].Config.Name)
	assert.Equal(t, "low", ordered[1].Config.Name)
}

func TestRegistry_UnregisterRemovesBackend(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(BackendConfig{
		Name: "alpha", Transport: TransportHTTP, Endpoint: "http://example.invalid", Enabled: true,
	}))
	require.NoError(t, r.Unregister("alpha"))

	_, ok := r.Get("alpha")
	assert.False(t, ok)
}

func TestRegistry_UnregisterUnknownBackendErrors(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Unregister("ghost")
	assert.Error(t, err)
}

func TestRegistry_ProbeDegradesThenDownsAfterConsecutiveFailures(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(BackendConfig{
		Name: "alpha", Transport: TransportHTTP, Endpoint: "http://example.invalid", Enabled: true,
	}))

	fake := &fakeTransport{connected: true, probeErr: assertErr}
	r.mu.Lock()
	r.transports["alpha"] = fake
	r.mu.Unlock()

	ctx := context.Background()
	_ = r.Probe(ctx, "alpha")
	b, _ := r.Get("alpha")
	assert.Equal(t, HealthDegraded, b.Health)

	_ = r.Probe(ctx, "alpha")
	_ = r.Probe(ctx, "alpha")
	b, _ = r.Get("alpha")
	assert.Equal(t, HealthDown, b.Health)
	assert.Equal(t, 3, b.ConsecutiveFailures)
}

func TestRegistry_ProbeRecoversToUp(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(BackendConfig{
		Name: "alpha", Transport: TransportHTTP, Endpoint: "http://example.invalid", Enabled: true,
	}))

	fake := &fakeTransport{connected: true, probeErr: assertErr}
	r.mu.Lock()
	r.transports["alpha"] = fake
	r.mu.Unlock()

	ctx := context.Background()
	_ = r.Probe(ctx, "alpha")

	fake.probeErr = nil
	require.NoError(t, r.Probe(ctx, "alpha"))

	b, _ := r.Get("alpha")
	assert.Equal(t, HealthUp, b.Health)
	assert.Equal(t, 0, b.ConsecutiveFailures)
}

type probeError struct{}

func (probeError) Error() string { return "probe failed" }

var assertErr error = probeError{}
