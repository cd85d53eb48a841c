package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dopectx/core/internal/coreerr"
	"github.com/dopectx/core/internal/logging"
)

// degradedAfter is the number of consecutive probe failures after which a
// backend that was "up" is downgraded to "degraded" rather than "down"
// outright, giving a single flaky probe room to self-heal.
const degradedAfter = 1

// downAfter is the number of consecutive failures after which a backend
// is classified "down".
const downAfter = 3

// Registry is the Backend Registry: the catalog of tool backends known
// to the Meta-Broker, their role tags, priorities, and live health.
type Registry struct {
	mu sync.RWMutex

	backends    map[string]*Backend
	transports  map[string]Transporter
	probeGroup  singleflight.Group
	probeTimeout time.Duration
}

// NewRegistry constructs an empty registry. probeTimeout bounds every
// individual backend probe.
func NewRegistry(probeTimeout time.Duration) *Registry {
	return &Registry{
		backends:     make(map[string]*Backend),
		transports:   make(map[string]Transporter),
		probeTimeout: probeTimeout,
	}
}

// Register adds (or replaces) a backend in the registry. The backend
// starts in HealthUnknown until its first probe completes.
func (r *Registry) Register(cfg BackendConfig) error {
	if cfg.Name == "" {
		return coreerr.New(coreerr.KindValidationError, "backend name must not be empty")
	}

	transport, err := r.buildTransport(cfg)
	if err != nil {
		return err
	}
	return r.RegisterWithTransport(cfg, transport)
}

// RegisterWithTransport adds a backend using a caller-supplied transport
// rather than one built from cfg.Transport/cfg.Endpoint. Production code
// should use Register; this exists so callers (and tests) can wire in a
// transport that isn't one of the two wire protocols this package ships.
func (r *Registry) RegisterWithTransport(cfg BackendConfig, transport Transporter) error {
	if cfg.Name == "" {
		return coreerr.New(coreerr.KindValidationError, "backend name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.backends[cfg.Name] = &Backend{
		Config:        cfg,
		Health:        HealthUnknown,
		RegisteredAt:  time.Now(),
	}
	r.transports[cfg.Name] = transport

	logging.Get(logging.CategoryRegistry).Infof("registered backend %s (transport=%s, roles=%v, priority=%d)",
		cfg.Name, cfg.Transport, cfg.RoleTags, cfg.Priority)
	return nil
}

func (r *Registry) buildTransport(cfg BackendConfig) (Transporter, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch cfg.Transport {
	case TransportHTTP:
		return NewHTTPTransport(cfg.Endpoint, timeout), nil
	case TransportStdio:
		return NewStdioTransport(cfg.Endpoint), nil
	default:
		return nil, coreerr.New(coreerr.KindValidationError, fmt.Sprintf("unsupported transport %q", cfg.Transport))
	}
}

// Unregister removes a backend and disconnects its transport.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	transport, ok := r.transports[name]
	if !ok {
		r.mu.Unlock()
		return coreerr.New(coreerr.KindNoBackend, fmt.Sprintf("backend %q is not registered", name))
	}
	delete(r.backends, name)
	delete(r.transports, name)
	r.mu.Unlock()

	return transport.Disconnect()
}

// Get returns the current record for a backend.
func (r *Registry) Get(name string) (*Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, false
	}
	cp := *b
	return &cp, true
}

// List returns a snapshot of all registered backends.
func (r *Registry) List() []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Backend, 0, len(r.backends))
	for _, b := range r.backends {
		cp := *b
		out = append(out, &cp)
	}
	return out
}

// ByRole returns all enabled backends advertising roleTag, ordered by
// descending priority.
func (r *Registry) ByRole(roleTag string) []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Backend
	for _, b := range r.backends {
		if !b.Config.Enabled || !b.HasRole(roleTag) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Config.Priority > out[j-1].Config.Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Transport returns the live transport for a backend, for use by the
// broker's invoke path.
func (r *Registry) Transport(name string) (Transporter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[name]
	return t, ok
}

// Probe checks a single backend's liveness and updates its health record.
// Concurrent probes of the same backend collapse onto a single in-flight
// probe via singleflight, since a probe stampede against a degraded
// backend makes the situation strictly worse.
func (r *Registry) Probe(ctx context.Context, name string) error {
	_, err, _ := r.probeGroup.Do(name, func() (any, error) {
		return nil, r.probeOnce(ctx, name)
	})
	return err
}

func (r *Registry) probeOnce(ctx context.Context, name string) error {
	r.mu.RLock()
	transport, ok := r.transports[name]
	r.mu.RUnlock()
	if !ok {
		return coreerr.New(coreerr.KindNoBackend, fmt.Sprintf("backend %q is not registered", name))
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	if !transport.Connected() {
		if err := transport.Connect(probeCtx); err != nil {
			r.recordProbeResult(name, err)
			return err
		}
	}

	err := transport.Probe(probeCtx)
	r.recordProbeResult(name, err)
	return err
}

func (r *Registry) recordProbeResult(name string, probeErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.backends[name]
	if !ok {
		return
	}
	b.LastProbeAt = time.Now()

	if probeErr == nil {
		b.ConsecutiveFailures = 0
		b.Health = HealthUp
		b.LastError = ""
		return
	}

	b.ConsecutiveFailures++
	b.LastError = probeErr.Error()
	switch {
	case b.ConsecutiveFailures >= downAfter:
		b.Health = HealthDown
	case b.ConsecutiveFailures >= degradedAfter:
		b.Health = HealthDegraded
	}
	logging.Get(logging.CategoryRegistry).Warnf("probe failed for backend %s (failures=%d): %v",
		name, b.ConsecutiveFailures, probeErr)
}

// ProbeAll probes every registered backend concurrently, bounding total
// wall time to probeTimeout regardless of backend count.
func (r *Registry) ProbeAll(ctx context.Context) error {
	r.mu.RLock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	r.mu.RUnlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			_ = r.Probe(gCtx, name)
			return nil
		})
	}
	return g.Wait()
}
