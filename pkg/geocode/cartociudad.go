package geocode

import (
	"context"
	"net/url"

	"github.com/sells-group/ptel-geocoder/internal/geo"
)

const cartoCiudadURL = "https://www.cartociudad.es/geocoder/api/geocoder/find"

// cartoCiudadResponse is the JSON body of the CartoCiudad find endpoint.
type cartoCiudadResponse struct {
	ID       string  `json:"id"`
	Address  string  `json:"address"`
	Muni     string  `json:"muni"`
	Province string  `json:"province"`
	Type     string  `json:"type"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	State    int     `json:"state"`
	StateMsg string  `json:"stateMsg"`
}

// CartoCiudadAdapter geocodes postal addresses through the Spanish national
// CartoCiudad service.
type CartoCiudadAdapter struct {
	source
}

// NewCartoCiudadAdapter creates a CartoCiudad adapter.
func NewCartoCiudadAdapter(opts ...Option) *CartoCiudadAdapter {
	return &CartoCiudadAdapter{
		source: newSource("cartociudad", "CartoCiudad", cartoCiudadURL, 0.8, opts),
	}
}

// Geocode implements Adapter.
func (a *CartoCiudadAdapter) Geocode(ctx context.Context, q Query) (*Outcome, error) {
	params := url.Values{"q": {q.AddressLine()}}

	var resp cartoCiudadResponse
	if err := a.getJSON(ctx, a.baseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Lat == 0 && resp.Lng == 0 {
		return nil, nil
	}

	matched := resp.Address
	if resp.Muni != "" {
		matched += ", " + resp.Muni
	}
	return &Outcome{
		Coordinates: geo.FromLonLat(resp.Lng, resp.Lat),
		MatchedName: matched,
		MatchScore:  cartoCiudadStateScore(resp.State),
	}, nil
}

// cartoCiudadStateScore maps the CartoCiudad match state to a 0-100 score.
// State 1 is an exact portal match; 2 is the nearest portal on the street;
// 3 and 4 are street or locality level.
func cartoCiudadStateScore(state int) float64 {
	switch state {
	case 1:
		return 95
	case 2:
		return 80
	case 3, 4:
		return 65
	default:
		return 50
	}
}
