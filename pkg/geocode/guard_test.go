package geocode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ptel-geocoder/internal/resilience"
)

func TestGuarded_OpensAfterFailures(t *testing.T) {
	inner := &stubAdapter{id: "flaky", err: errors.New("boom")}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		ShouldTrip:       func(error) bool { return true },
	})
	g := Guarded(inner, cb)
	assert.Equal(t, "flaky", g.ID())

	for range 2 {
		_, err := g.Geocode(context.Background(), Query{Name: "x"})
		require.Error(t, err)
	}
	_, err := g.Geocode(context.Background(), Query{Name: "x"})
	assert.True(t, eris.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, 2, inner.calls)
}

func TestGuarded_PassesThrough(t *testing.T) {
	inner := &stubAdapter{id: "ok", outcome: &Outcome{MatchScore: 70}}
	g := Guarded(inner, resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()))

	out, err := g.Geocode(context.Background(), Query{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, 70.0, out.MatchScore)
}
