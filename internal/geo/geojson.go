package geo

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Geom converts p into a go-geom point tagged with SRID.
func (p Point) Geom() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.X, p.Y}).SetSRID(SRID)
}

// EWKB encodes p as little-endian EWKB for PostGIS COPY.
func (p Point) EWKB() ([]byte, error) {
	data, err := ewkb.Marshal(p.Geom(), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

// PointFromGeom returns a representative point for any geometry: the point
// itself, or the center of the bounding box for lines and polygons.
func PointFromGeom(g geom.T) (Point, bool) {
	if g == nil {
		return Point{}, false
	}
	if pt, ok := g.(*geom.Point); ok {
		if pt.Empty() {
			return Point{}, false
		}
		return Point{X: pt.X(), Y: pt.Y()}, true
	}
	b := g.Bounds()
	if b == nil || b.IsEmpty() {
		return Point{}, false
	}
	return Point{
		X: (b.Min(0) + b.Max(0)) / 2,
		Y: (b.Min(1) + b.Max(1)) / 2,
	}, true
}

type namedCRS struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

// FeatureCollection is a GeoJSON FeatureCollection carrying a named CRS
// member, as GeoServer emits for projected output.
type FeatureCollection struct {
	Type     string             `json:"type"`
	CRS      namedCRS           `json:"crs"`
	Features []*geojson.Feature `json:"features"`
	Metadata map[string]any     `json:"metadata,omitempty"`
}

// NewFeatureCollection wraps features in a collection tagged EPSG:25830.
func NewFeatureCollection(features []*geojson.Feature) *FeatureCollection {
	if features == nil {
		features = []*geojson.Feature{}
	}
	return &FeatureCollection{
		Type: "FeatureCollection",
		CRS: namedCRS{
			Type:       "name",
			Properties: map[string]string{"name": "EPSG:25830"},
		},
		Features: features,
	}
}

// PointFeature builds a GeoJSON feature for p with the given properties.
func PointFeature(id string, p Point, props map[string]any) *geojson.Feature {
	return &geojson.Feature{
		ID:         id,
		Geometry:   p.Geom(),
		Properties: props,
	}
}

// Marshal encodes the collection as JSON.
func (fc *FeatureCollection) Marshal() ([]byte, error) {
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrap(err, "geo: marshal feature collection")
	}
	return data, nil
}
