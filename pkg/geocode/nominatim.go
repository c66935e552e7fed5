package geocode

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ptel-geocoder/internal/geo"
	"github.com/sells-group/ptel-geocoder/internal/textnorm"
)

const nominatimURL = "https://nominatim.openstreetmap.org/search"

type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

// NominatimAdapter searches OpenStreetMap by name and municipality. It is the
// last-resort source of every cascade.
type NominatimAdapter struct {
	source
}

// NewNominatimAdapter creates a Nominatim adapter. The public instance allows
// one request per second.
func NewNominatimAdapter(opts ...Option) *NominatimAdapter {
	opts = append([]Option{WithRateLimit(1)}, opts...)
	return &NominatimAdapter{
		source: newSource("nominatim", "Nominatim (OSM)", nominatimURL, 0.5, opts),
	}
}

// Geocode implements Adapter.
func (a *NominatimAdapter) Geocode(ctx context.Context, q Query) (*Outcome, error) {
	params := url.Values{
		"q":            {q.NameLine()},
		"format":       {"jsonv2"},
		"countrycodes": {"es"},
		"limit":        {"5"},
	}

	var places []nominatimPlace
	if err := a.getJSON(ctx, a.baseURL+"?"+params.Encode(), &places); err != nil {
		return nil, err
	}

	var best *Outcome
	for _, p := range places {
		lat, err := strconv.ParseFloat(p.Lat, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s parse lat %q", a.id, p.Lat)
		}
		lon, err := strconv.ParseFloat(p.Lon, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s parse lon %q", a.id, p.Lon)
		}

		name := p.Name
		if name == "" {
			name, _, _ = strings.Cut(p.DisplayName, ",")
		}
		score := nominatimScore(q.Name, name, p.Importance)
		if best == nil || score > best.MatchScore {
			best = &Outcome{
				Coordinates: geo.FromLonLat(lon, lat),
				MatchedName: p.DisplayName,
				MatchScore:  score,
			}
		}
	}
	return best, nil
}

// nominatimScore blends name similarity with OSM importance (0-1).
func nominatimScore(query, name string, importance float64) float64 {
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}
	return 0.8*textnorm.Similarity(query, name) + 20*importance
}
