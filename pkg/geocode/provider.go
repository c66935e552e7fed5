package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/ptel-geocoder/internal/resilience"
)

// Adapter is the single capability every geocoding source exposes. Geocode
// returns (nil, nil) when the provider explicitly found nothing.
type Adapter interface {
	// ID is the unique source identifier used in configs and results.
	ID() string
	// Name is a human-readable provider name.
	Name() string
	// AuthorityWeight is the a priori trust in [0,1].
	AuthorityWeight() float64
	// Timeout overrides the engine default when positive.
	Timeout() time.Duration
	Geocode(ctx context.Context, q Query) (*Outcome, error)
}

// source carries the identity and transport settings shared by the HTTP and
// database adapters.
type source struct {
	id         string
	name       string
	weight     float64
	timeout    time.Duration
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// Option configures an adapter.
type Option func(*source)

// WithID overrides the adapter's source ID.
func WithID(id string) Option {
	return func(s *source) {
		if id != "" {
			s.id = id
		}
	}
}

// WithName overrides the adapter's display name.
func WithName(name string) Option {
	return func(s *source) {
		if name != "" {
			s.name = name
		}
	}
}

// WithAuthorityWeight sets the a priori trust, clamped to [0,1].
func WithAuthorityWeight(w float64) Option {
	return func(s *source) {
		switch {
		case w < 0:
			s.weight = 0
		case w > 1:
			s.weight = 1
		default:
			s.weight = w
		}
	}
}

// WithTimeout sets the per-call timeout override.
func WithTimeout(d time.Duration) Option {
	return func(s *source) {
		s.timeout = d
	}
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) Option {
	return func(s *source) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *source) {
		s.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for the provider.
func WithRateLimit(rps float64) Option {
	return func(s *source) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for transient HTTP failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *source) {
		s.retry = cfg
	}
}

// WithUserAgent sets the User-Agent header; Nominatim and Overpass require one.
func WithUserAgent(ua string) Option {
	return func(s *source) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

func newSource(id, name, baseURL string, weight float64, opts []Option) source {
	s := source{
		id:         id,
		name:       name,
		weight:     weight,
		baseURL:    baseURL,
		userAgent:  "ptel-geocoder/1.0",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// ID implements Adapter.
func (s *source) ID() string { return s.id }

// Name implements Adapter.
func (s *source) Name() string { return s.name }

// AuthorityWeight implements Adapter.
func (s *source) AuthorityWeight() float64 { return s.weight }

// Timeout implements Adapter.
func (s *source) Timeout() time.Duration { return s.timeout }

// getJSON performs a rate-limited GET and decodes the JSON body into dst.
// 429 and 5xx responses are retried according to the source retry policy.
func (s *source) getJSON(ctx context.Context, reqURL string, dst any) error {
	return s.doJSON(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	}, dst)
}

func (s *source) doJSON(ctx context.Context, build func(context.Context) (*http.Request, error), dst any) error {
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger(s.id, "geocode")

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "geocode: %s rate limit", s.id)
		}

		req, err := build(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s build request", s.id)
		}
		req.Header.Set("User-Agent", s.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s request", s.id)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError(eris.Errorf("geocode: %s returned status %d", s.id, resp.StatusCode), resp)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s read body", s.id)
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return eris.Wrapf(err, "geocode: %s parse response", s.id)
	}
	return nil
}
