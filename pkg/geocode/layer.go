package geocode

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ptel-geocoder/internal/db"
	"github.com/sells-group/ptel-geocoder/internal/geo"
)

// layerMatchSQL picks the best trigram match among locally synced DERA
// features of the given groups inside one municipality.
const layerMatchSQL = `
SELECT name, ST_X(geom), ST_Y(geom),
       similarity(lower(unaccent(name)), lower(unaccent($1))) * 100 AS score
FROM ptel.dera_features
WHERE category = ANY($2)
  AND (($3 <> '' AND muni_code = $3) OR lower(unaccent(municipality)) = lower(unaccent($4)))
ORDER BY score DESC
LIMIT 1`

// LayerAdapter resolves queries against DERA layers previously synced into
// PostGIS by `layers sync`. It is the offline twin of WFSAdapter.
type LayerAdapter struct {
	source
	pool   db.Pool
	groups []string
}

// NewLayerAdapter creates an adapter over the given DERA group keys.
func NewLayerAdapter(pool db.Pool, groups []string, opts ...Option) *LayerAdapter {
	return &LayerAdapter{
		source: newSource("dera_local", "DERA (PostGIS)", "", 0.95, opts),
		pool:   pool,
		groups: groups,
	}
}

// Geocode implements Adapter.
func (a *LayerAdapter) Geocode(ctx context.Context, q Query) (*Outcome, error) {
	var (
		name  string
		x, y  float64
		score float64
	)
	err := a.pool.QueryRow(ctx, layerMatchSQL, q.Name, a.groups, q.MunicipalityCode, q.MunicipalityName).
		Scan(&name, &x, &y, &score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: %s query", a.id)
	}

	return &Outcome{
		Coordinates: geo.Point{X: x, Y: y},
		MatchedName: name,
		MatchScore:  score,
	}, nil
}
