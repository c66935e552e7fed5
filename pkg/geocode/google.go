package geocode

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ptel-geocoder/internal/geo"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
	PartialMatch     bool   `json:"partial_match"`
}

// GoogleAdapter geocodes addresses through the Google Geocoding API.
type GoogleAdapter struct {
	source
	apiKey string
}

// NewGoogleAdapter creates a Google adapter. Calls fail without an API key.
func NewGoogleAdapter(apiKey string, opts ...Option) *GoogleAdapter {
	return &GoogleAdapter{
		source: newSource("google", "Google Geocoding", googleGeocodeURL, 0.7, opts),
		apiKey: apiKey,
	}
}

// Geocode implements Adapter.
func (a *GoogleAdapter) Geocode(ctx context.Context, q Query) (*Outcome, error) {
	if a.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	params := url.Values{
		"address":    {q.AddressLine()},
		"region":     {"es"},
		"components": {"country:ES"},
		"key":        {a.apiKey},
	}

	var resp googleGeocodeResponse
	if err := a.getJSON(ctx, a.baseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, eris.Errorf("geocode: google status %s: %s", resp.Status, resp.ErrorMessage)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	r := resp.Results[0]
	score := googleLocationTypeScore(r.Geometry.LocationType)
	if r.PartialMatch {
		score -= 10
	}
	return &Outcome{
		Coordinates: geo.FromLonLat(r.Geometry.Location.Lng, r.Geometry.Location.Lat),
		MatchedName: r.FormattedAddress,
		MatchScore:  score,
	}, nil
}

// googleLocationTypeScore maps Google's location_type to a 0-100 score.
func googleLocationTypeScore(locType string) float64 {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return 95
	case "RANGE_INTERPOLATED":
		return 85
	case "GEOMETRIC_CENTER":
		return 70
	default:
		return 50
	}
}
