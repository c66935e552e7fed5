package dera

import (
	"fmt"
	"strings"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/ptel-geocoder/internal/geo"
)

// muniCodeAttrs are the attribute spellings DERA layers use for the INE
// municipality code.
var muniCodeAttrs = []string{"cod_mun", "codmun", "cod_ine", "codigo_ine"}

// Record is a feature flattened for the ptel.dera_features table.
type Record struct {
	FeatureID    string
	Layer        string
	Category     string
	Name         string
	Municipality string
	MuniCode     string
	Source       string
	Point        geo.Point
}

// RecordColumns lists the table columns in Row order.
var RecordColumns = []string{
	"feature_id", "layer", "category", "name", "municipality",
	"muni_code", "source", "geom", "synced_at",
}

// Row returns the record as COPY values. The geometry is EWKB.
func (r Record) Row(syncedAt time.Time) ([]any, error) {
	wkb, err := r.Point.EWKB()
	if err != nil {
		return nil, err
	}
	return []any{
		r.FeatureID, r.Layer, r.Category, r.Name, r.Municipality,
		r.MuniCode, r.Source, wkb, syncedAt,
	}, nil
}

// Records flattens features fetched by FetchGroup. Features are matched to
// their layer through the SourceProperty tag; features without a usable
// geometry or name are dropped.
func Records(g Group, features []*geojson.Feature) []Record {
	byDescription := make(map[string]Layer, len(g.Layers))
	for _, l := range g.Layers {
		byDescription[l.Description] = l
	}

	out := make([]Record, 0, len(features))
	for i, f := range features {
		src, _ := f.Properties[SourceProperty].(string)
		layer, ok := byDescription[src]
		if !ok {
			continue
		}
		pt, ok := geo.PointFromGeom(f.Geometry)
		if !ok {
			continue
		}
		name := stringProp(f.Properties, layer.NameAttr())
		if name == "" {
			continue
		}

		id := f.ID
		if id == "" {
			id = fmt.Sprintf("%s.%d", layer.TypeName, i)
		}

		rec := Record{
			FeatureID:    id,
			Layer:        layer.TypeName,
			Category:     g.Key,
			Name:         name,
			Municipality: stringProp(f.Properties, layer.MunicipalityAttr()),
			Source:       src,
			Point:        pt,
		}
		for _, attr := range muniCodeAttrs {
			if v := stringProp(f.Properties, attr); v != "" {
				rec.MuniCode = v
				break
			}
		}
		out = append(out, rec)
	}
	return out
}

// stringProp reads a property as trimmed text; numeric codes are formatted
// without a fractional part.
func stringProp(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
