package broker

import (
	"sync"

	"github.com/sony/gobreaker"

	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/logging"
)

// circuitRegistry lazily creates and caches one gobreaker.CircuitBreaker
// per backend name, since gobreaker's breakers are not dynamically
// re-keyable.
type circuitRegistry struct {
	mu       sync.Mutex
	cfg      config.BrokerConfig
	breakers map[string]*gobreaker.CircuitBreaker
}

func newCircuitRegistry(cfg config.BrokerConfig) *circuitRegistry {
	return &circuitRegistry{cfg: cfg, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (c *circuitRegistry) get(backendName string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[backendName]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        backendName,
		MaxRequests: 1, // half-open: allow exactly one probe request through
		Timeout:     c.cfg.CircuitBreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.cfg.CircuitBreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Get(logging.CategoryBroker).Infof("circuit for backend %s: %s -> %s", name, from, to)
		},
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	c.breakers[backendName] = cb
	return cb
}

// state reports the current circuit state for a backend without
// tripping a request through it.
func (c *circuitRegistry) state(backendName string) gobreaker.State {
	return c.get(backendName).State()
}
