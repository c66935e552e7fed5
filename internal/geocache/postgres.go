package geocache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ptel-geocoder/internal/db"
)

// PostgresStore implements Store on the ptel.geocode_cache table. The pool
// is owned by the caller.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore. Run db.Migrate first.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, source, key string) (*Entry, error) {
	e := Entry{Source: source, Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT found, x, y, matched_name, match_score, cached_at
		 FROM ptel.geocode_cache WHERE source = $1 AND cache_key = $2`,
		source, key,
	).Scan(&e.Found, &e.Outcome.Coordinates.X, &e.Outcome.Coordinates.Y,
		&e.Outcome.MatchedName, &e.Outcome.MatchScore, &e.CachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cache %s", source)
	}
	return &e, nil
}

// Put implements Store, replacing any existing entry.
func (s *PostgresStore) Put(ctx context.Context, e Entry) error {
	if e.CachedAt.IsZero() {
		e.CachedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ptel.geocode_cache (source, cache_key, found, x, y, matched_name, match_score, cached_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (source, cache_key) DO UPDATE SET
			found = EXCLUDED.found, x = EXCLUDED.x, y = EXCLUDED.y,
			matched_name = EXCLUDED.matched_name, match_score = EXCLUDED.match_score,
			cached_at = EXCLUDED.cached_at`,
		e.Source, e.Key, e.Found,
		e.Outcome.Coordinates.X, e.Outcome.Coordinates.Y,
		e.Outcome.MatchedName, e.Outcome.MatchScore,
		e.CachedAt,
	)
	return eris.Wrapf(err, "postgres: put cache %s", e.Source)
}

// Close is a no-op; the pool outlives the store.
func (s *PostgresStore) Close() error { return nil }
