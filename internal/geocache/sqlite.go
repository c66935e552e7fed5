package geocache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite cache at dsn, configures WAL mode and creates
// the cache table.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// In-memory databases are per-connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	source       TEXT    NOT NULL,
	cache_key    TEXT    NOT NULL,
	found        INTEGER NOT NULL,
	x            REAL    NOT NULL DEFAULT 0,
	y            REAL    NOT NULL DEFAULT 0,
	matched_name TEXT    NOT NULL DEFAULT '',
	match_score  REAL    NOT NULL DEFAULT 0,
	cached_at    INTEGER NOT NULL,
	PRIMARY KEY (source, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_cached_at ON geocode_cache(cached_at);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, source, key string) (*Entry, error) {
	e := Entry{Source: source, Key: key}
	var cachedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT found, x, y, matched_name, match_score, cached_at
		 FROM geocode_cache WHERE source = ? AND cache_key = ?`,
		source, key,
	).Scan(&e.Found, &e.Outcome.Coordinates.X, &e.Outcome.Coordinates.Y,
		&e.Outcome.MatchedName, &e.Outcome.MatchScore, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cache %s", source)
	}
	e.CachedAt = time.UnixMilli(cachedAt).UTC()
	return &e, nil
}

// Put implements Store, replacing any existing entry.
func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	if e.CachedAt.IsZero() {
		e.CachedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (source, cache_key, found, x, y, matched_name, match_score, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, cache_key) DO UPDATE SET
			found = excluded.found, x = excluded.x, y = excluded.y,
			matched_name = excluded.matched_name, match_score = excluded.match_score,
			cached_at = excluded.cached_at`,
		e.Source, e.Key, e.Found,
		e.Outcome.Coordinates.X, e.Outcome.Coordinates.Y,
		e.Outcome.MatchedName, e.Outcome.MatchScore,
		e.CachedAt.UnixMilli(),
	)
	return eris.Wrapf(err, "sqlite: put cache %s", e.Source)
}

// Prune deletes entries cached before cutoff and returns how many went.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM geocode_cache WHERE cached_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune cache")
	}
	return res.RowsAffected()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
