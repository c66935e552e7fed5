package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sells-group/ptel-geocoder/internal/geo"
	"github.com/sells-group/ptel-geocoder/internal/textnorm"
)

const overpassURL = "https://overpass-api.de/api/interpreter"

// TelecomFilter selects masts, towers and transmitters in Overpass QL.
const TelecomFilter = `["man_made"~"^(mast|tower|communications_tower|antenna)$"]`

// soleCandidateScore is assigned when the municipality holds exactly one
// unnamed feature matching the tag filter.
const soleCandidateScore = 60

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// OverpassAdapter searches OSM map features inside the query's municipality.
type OverpassAdapter struct {
	source
	filter string
}

// NewOverpassAdapter creates an adapter restricted by an Overpass QL tag
// filter; an empty filter matches any named feature.
func NewOverpassAdapter(filter string, opts ...Option) *OverpassAdapter {
	return &OverpassAdapter{
		source: newSource("overpass", "Overpass (OSM)", overpassURL, 0.5, opts),
		filter: filter,
	}
}

// NewOverpassTelecomAdapter creates the telecom-specific Overpass adapter.
func NewOverpassTelecomAdapter(opts ...Option) *OverpassAdapter {
	opts = append([]Option{WithID("overpass_telecom"), WithName("Overpass telecom")}, opts...)
	return NewOverpassAdapter(TelecomFilter, opts...)
}

// buildQuery renders the Overpass QL for a municipality.
func (a *OverpassAdapter) buildQuery(municipality string) string {
	filter := a.filter
	if filter == "" {
		filter = `["name"]`
	}
	muni := strings.ReplaceAll(municipality, `"`, `\"`)
	return fmt.Sprintf(`[out:json][timeout:25];
area["boundary"="administrative"]["admin_level"="8"]["name"="%s"]->.m;
(node%s(area.m);way%s(area.m););
out center 50;`, muni, filter, filter)
}

// Geocode implements Adapter.
func (a *OverpassAdapter) Geocode(ctx context.Context, q Query) (*Outcome, error) {
	if q.MunicipalityName == "" {
		return nil, nil
	}

	form := url.Values{"data": {a.buildQuery(q.MunicipalityName)}}
	var resp overpassResponse
	err := a.doJSON(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, &resp)
	if err != nil {
		return nil, err
	}

	var best *Outcome
	for _, el := range resp.Elements {
		lat, lon := el.Lat, el.Lon
		if el.Center != nil {
			lat, lon = el.Center.Lat, el.Center.Lon
		}
		if lat == 0 && lon == 0 {
			continue
		}

		name := el.Tags["name"]
		score := 0.0
		if name != "" {
			score = textnorm.Similarity(q.Name, name)
		} else if len(resp.Elements) == 1 {
			score = soleCandidateScore
			name = fmt.Sprintf("%s/%d", el.Type, el.ID)
		}
		if score == 0 || (best != nil && score <= best.MatchScore) {
			continue
		}
		best = &Outcome{
			Coordinates: geo.FromLonLat(lon, lat),
			MatchedName: name,
			MatchScore:  score,
		}
	}
	return best, nil
}
