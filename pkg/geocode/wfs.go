package geocode

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/dera"
	"github.com/sells-group/ptel-geocoder/internal/geo"
	"github.com/sells-group/ptel-geocoder/internal/textnorm"
)

// WFSAdapter queries DERA layers live and returns the feature whose name is
// most similar to the query inside the query's municipality.
type WFSAdapter struct {
	source
	client *dera.Client
	layers []dera.Layer
}

// NewWFSAdapter creates an adapter over the given DERA layers.
func NewWFSAdapter(client *dera.Client, layers []dera.Layer, opts ...Option) *WFSAdapter {
	return &WFSAdapter{
		source: newSource("dera_wfs", "DERA WFS", "", 0.95, opts),
		client: client,
		layers: layers,
	}
}

// NewWFSGroupAdapter creates an adapter over one catalogue group, using the
// group key in its ID (e.g. "dera_health").
func NewWFSGroupAdapter(client *dera.Client, key string, opts ...Option) (*WFSAdapter, error) {
	g, err := dera.Lookup(key)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithID("dera_" + key), WithName("DERA " + g.Name)}, opts...)
	return NewWFSAdapter(client, g.Layers, opts...), nil
}

// Geocode implements Adapter.
func (a *WFSAdapter) Geocode(ctx context.Context, q Query) (*Outcome, error) {
	if q.MunicipalityName == "" {
		return nil, nil
	}

	var best *Outcome
	for _, layer := range a.layers {
		features, err := a.client.Fetch(ctx, layer, layer.MunicipalityFilter(q.MunicipalityName))
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s layer %s", a.id, layer.TypeName)
		}

		for _, f := range features {
			raw, ok := f.Properties[layer.NameAttr()]
			if !ok || raw == nil {
				continue
			}
			name := fmt.Sprint(raw)
			score := textnorm.Similarity(q.Name, name)
			if best != nil && score <= best.MatchScore {
				continue
			}
			pt, ok := geo.PointFromGeom(f.Geometry)
			if !ok {
				continue
			}
			best = &Outcome{Coordinates: pt, MatchedName: name, MatchScore: score}
		}
	}

	if best == nil || best.MatchScore == 0 {
		return nil, nil
	}
	zap.L().Debug("geocode: wfs match",
		zap.String("source", a.id),
		zap.String("matched", best.MatchedName),
		zap.Float64("score", best.MatchScore),
	)
	return best, nil
}
