package geocode

import (
	"context"

	"github.com/sells-group/ptel-geocoder/internal/resilience"
)

// guarded wraps an Adapter with a circuit breaker.
type guarded struct {
	Adapter
	cb *resilience.CircuitBreaker
}

// Guarded returns an Adapter that rejects calls with resilience.ErrCircuitOpen
// while the breaker is open.
func Guarded(a Adapter, cb *resilience.CircuitBreaker) Adapter {
	return &guarded{Adapter: a, cb: cb}
}

// Geocode implements Adapter.
func (g *guarded) Geocode(ctx context.Context, q Query) (*Outcome, error) {
	return resilience.ExecuteVal(ctx, g.cb, func(ctx context.Context) (*Outcome, error) {
		return g.Adapter.Geocode(ctx, q)
	})
}
