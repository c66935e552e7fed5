package dera

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/ptel-geocoder/internal/geo"
)

func TestRecords(t *testing.T) {
	g, err := Lookup("health")
	require.NoError(t, err)

	features := []*geojson.Feature{
		{
			ID:       "g12_01_CentroSalud.17",
			Geometry: geom.NewPointFlat(geom.XY, []float64{441000, 4136000}),
			Properties: map[string]any{
				"nombre":       " Consultorio de Colomera ",
				"municipio":    "Colomera",
				"cod_mun":      float64(18051),
				SourceProperty: "Centros de Atención Primaria",
			},
		},
		{
			// Polygon features collapse to the bbox center.
			Geometry: geom.NewPolygonFlat(geom.XY, []float64{0, 0, 10, 0, 10, 20, 0, 20, 0, 0}, []int{10}),
			Properties: map[string]any{
				"nombre":       "Hospital de Baza",
				"municipio":    "Baza",
				"codmun":       "18024",
				SourceProperty: "Hospitales y CAE",
			},
		},
		{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{1, 1}),
			Properties: map[string]any{"nombre": "", SourceProperty: "Hospitales y CAE"},
		},
		{
			Geometry:   nil,
			Properties: map[string]any{"nombre": "Sin geometría", SourceProperty: "Hospitales y CAE"},
		},
		{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{1, 1}),
			Properties: map[string]any{"nombre": "Capa ajena", SourceProperty: "Parques Eólicos"},
		},
	}

	recs := Records(g, features)
	require.Len(t, recs, 2)

	assert.Equal(t, Record{
		FeatureID:    "g12_01_CentroSalud.17",
		Layer:        "DERA_g12_servicios:g12_01_CentroSalud",
		Category:     "health",
		Name:         "Consultorio de Colomera",
		Municipality: "Colomera",
		MuniCode:     "18051",
		Source:       "Centros de Atención Primaria",
		Point:        geo.Point{X: 441000, Y: 4136000},
	}, recs[0])

	assert.Equal(t, "DERA_g12_servicios:g12_02_Hospital_CAE.1", recs[1].FeatureID)
	assert.Equal(t, geo.Point{X: 5, Y: 10}, recs[1].Point)
	assert.Equal(t, "18024", recs[1].MuniCode)
}

func TestRecordRow(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	row, err := Record{FeatureID: "f1", Layer: "l", Category: "health", Name: "n", Point: geo.Point{X: 1, Y: 2}}.Row(at)
	require.NoError(t, err)
	require.Len(t, row, len(RecordColumns))
	assert.Equal(t, "f1", row[0])
	assert.IsType(t, []byte{}, row[7])
	assert.Equal(t, at, row[8])
}
