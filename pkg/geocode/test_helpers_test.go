package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ptel-geocoder/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func withLimiter(l *rate.Limiter) Option {
	return func(s *source) {
		s.limiter = l
	}
}

// testOptions points an adapter at srv with no rate limit and millisecond retries.
func testOptions(srv *httptest.Server, extra ...Option) []Option {
	opts := []Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		withLimiter(newTestLimiter()),
		WithRetry(resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		}),
	}
	return append(opts, extra...)
}

func jsonServer(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

// stubAdapter is a programmable Adapter for decorator tests.
type stubAdapter struct {
	id      string
	outcome *Outcome
	err     error
	calls   int
}

func (s *stubAdapter) ID() string               { return s.id }
func (s *stubAdapter) Name() string             { return s.id }
func (s *stubAdapter) AuthorityWeight() float64 { return 1 }
func (s *stubAdapter) Timeout() time.Duration   { return 0 }
func (s *stubAdapter) Geocode(_ context.Context, _ Query) (*Outcome, error) {
	s.calls++
	return s.outcome, s.err
}
