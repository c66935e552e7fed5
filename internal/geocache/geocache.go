// Package geocache memoises adapter outcomes so repeated batch runs do not
// hit rate-limited public services for infrastructures already resolved.
package geocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/textnorm"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// ErrMiss is returned by Store.Get when no entry exists.
var ErrMiss = eris.New("geocache: miss")

// Entry is one cached adapter answer. Found is false for a cached
// "no results" so empty answers are not re-requested either.
type Entry struct {
	Source   string
	Key      string
	Found    bool
	Outcome  geocode.Outcome
	CachedAt time.Time
}

// Store persists cache entries.
type Store interface {
	Get(ctx context.Context, source, key string) (*Entry, error)
	Put(ctx context.Context, e Entry) error
	Close() error
}

// Key derives the cache key for a query. Text is folded and whitespace
// collapsed so that accent, case and spacing variants share an entry.
func Key(q geocode.Query) string {
	parts := []string{
		canon(q.Name),
		strings.TrimSpace(q.MunicipalityCode),
		canon(q.MunicipalityName),
		canon(q.Address),
		string(q.Category),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func canon(s string) string {
	return strings.Join(strings.Fields(textnorm.Fold(s)), " ")
}

type cachedAdapter struct {
	geocode.Adapter
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Cached wraps a so that outcomes are served from store while younger than
// ttl. A ttl of zero never expires. Adapter errors are not cached.
func Cached(a geocode.Adapter, store Store, ttl time.Duration) geocode.Adapter {
	return &cachedAdapter{Adapter: a, store: store, ttl: ttl, now: time.Now}
}

func (c *cachedAdapter) Geocode(ctx context.Context, q geocode.Query) (*geocode.Outcome, error) {
	id := c.ID()
	key := Key(q)

	e, err := c.store.Get(ctx, id, key)
	switch {
	case err == nil && c.fresh(e):
		zap.L().Debug("geocache: hit", zap.String("source", id), zap.Bool("found", e.Found))
		if !e.Found {
			return nil, nil
		}
		out := e.Outcome
		return &out, nil
	case err != nil && !eris.Is(err, ErrMiss):
		zap.L().Warn("geocache: lookup failed", zap.String("source", id), zap.Error(err))
	}

	out, err := c.Adapter.Geocode(ctx, q)
	if err != nil {
		return nil, err
	}

	entry := Entry{Source: id, Key: key, Found: out != nil, CachedAt: c.now()}
	if out != nil {
		entry.Outcome = *out
	}
	if err := c.store.Put(ctx, entry); err != nil {
		zap.L().Warn("geocache: store failed", zap.String("source", id), zap.Error(err))
	}
	return out, nil
}

func (c *cachedAdapter) fresh(e *Entry) bool {
	return c.ttl <= 0 || c.now().Sub(e.CachedAt) < c.ttl
}
