// Package geocode defines the source adapter capability shared by the cascade
// and consensus resolvers, and the concrete adapters for each provider
// (DERA WFS layers, PostGIS layer store, CartoCiudad, Nominatim, Overpass,
// Google).
package geocode

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ptel-geocoder/internal/geo"
)

// ErrInvalidQuery is returned for queries that cannot be dispatched at all.
var ErrInvalidQuery = eris.New("geocode: invalid query")

// Category is a coarse infrastructure class used to order cascade sources.
type Category string

// Infrastructure categories in classifier priority order.
const (
	CategoryHealth         Category = "health"
	CategoryEducation      Category = "education"
	CategoryCultural       Category = "cultural"
	CategoryTelecom        Category = "telecom"
	CategorySports         Category = "sports"
	CategoryAdministrative Category = "administrative"
	CategoryGeneric        Category = "generic"
)

// Categories lists every category in classifier priority order.
var Categories = []Category{
	CategoryHealth,
	CategoryEducation,
	CategoryCultural,
	CategoryTelecom,
	CategorySports,
	CategoryAdministrative,
	CategoryGeneric,
}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", eris.Errorf("unknown category: %q", s)
}

// Query is the subject to resolve. It is passed by value so one query can be
// handed to many adapters concurrently.
type Query struct {
	Name             string   `json:"name"`
	MunicipalityCode string   `json:"municipality_code,omitempty"`
	MunicipalityName string   `json:"municipality,omitempty"`
	Address          string   `json:"address,omitempty"`
	Category         Category `json:"category,omitempty"`
}

// Validate rejects queries without a name.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return eris.Wrap(ErrInvalidQuery, "name is required")
	}
	return nil
}

// AddressLine formats the address and municipality as one line, falling back
// to the name when no address is known.
func (q Query) AddressLine() string {
	head := q.Address
	if strings.TrimSpace(head) == "" {
		head = q.Name
	}
	return joinNonEmpty(head, q.MunicipalityName)
}

// NameLine formats the name and municipality as one line.
func (q Query) NameLine() string {
	return joinNonEmpty(q.Name, q.MunicipalityName)
}

func joinNonEmpty(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

// Outcome is a successful adapter answer.
type Outcome struct {
	Coordinates geo.Point `json:"coordinates"`
	MatchedName string    `json:"matched_name,omitempty"`
	// MatchScore is the provider confidence on a 0-100 scale.
	MatchScore float64 `json:"match_score"`
}

// Status is the terminal state of one adapter call in a parallel query.
type Status string

// Terminal adapter states.
const (
	StatusSuccess   Status = "success"
	StatusNoResults Status = "no_results"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
)

// SourceResult is the uniform record produced for every adapter in a
// parallel query, whatever happened to the call.
type SourceResult struct {
	SourceID        string   `json:"source_id"`
	SourceName      string   `json:"source_name"`
	AuthorityWeight float64  `json:"authority_weight"`
	Result          *Outcome `json:"result"`
	Error           string   `json:"error,omitempty"`
	ResponseTimeMs  int64    `json:"response_time_ms"`
	Status          Status   `json:"status"`
}

// Succeeded reports whether the record carries coordinates.
func (r SourceResult) Succeeded() bool {
	return r.Status == StatusSuccess && r.Result != nil
}
