package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/ptel-geocoder/internal/dera"
	"github.com/sells-group/ptel-geocoder/internal/geo"
)

// fakeFetcher returns one feature per layer of each group.
type fakeFetcher struct {
	fail string

	mu      sync.Mutex
	fetched []string
}

func (f *fakeFetcher) FetchGroup(_ context.Context, g dera.Group) ([]*geojson.Feature, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, g.Key)
	f.mu.Unlock()
	if g.Key == f.fail {
		return nil, errors.New("wfs: status 503")
	}

	var out []*geojson.Feature
	for i, l := range g.Layers {
		out = append(out, &geojson.Feature{
			ID:         l.TypeName,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{440000 + float64(i), 4140000}),
			Properties: map[string]any{
				"nombre":             "Centro " + g.Key,
				"municipio":          "Lucena",
				"cod_mun":            "14038",
				dera.SourceProperty: l.Description,
			},
		})
	}
	return out, nil
}

func TestPrintCatalog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printCatalog(&buf, dera.Groups()))

	out := buf.String()
	assert.Contains(t, out, "GROUP")
	assert.Contains(t, out, "DERA_g12_servicios:g12_01_CentroSalud")
	assert.Contains(t, out, "Parques Eólicos")
}

func TestSelectGroups(t *testing.T) {
	all, err := selectGroups(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(dera.Keys()))

	some, err := selectGroups([]string{"health", "education"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "health", some[0].Key)
	assert.Equal(t, "education", some[1].Key)

	_, err = selectGroups([]string{"ports"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown layer group")
}

func TestSyncLayers_FileSink(t *testing.T) {
	dir := t.TempDir()
	groups, err := selectGroups([]string{"health", "municipal"})
	require.NoError(t, err)

	total, err := syncLayers(context.Background(), &fakeFetcher{}, groups, fileSink(dir))
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	data, err := os.ReadFile(filepath.Join(dir, "health.geojson"))
	require.NoError(t, err)

	var fc struct {
		Type string `json:"type"`
		CRS  struct {
			Properties map[string]string `json:"properties"`
		} `json:"crs"`
		Features []struct {
			ID         string         `json:"id"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
		Metadata map[string]any `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Equal(t, "EPSG:25830", fc.CRS.Properties["name"])
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Centro health", fc.Features[0].Properties["name"])
	assert.Equal(t, "14038", fc.Features[0].Properties["muni_code"])
	assert.Equal(t, "health", fc.Metadata["group"])
	assert.EqualValues(t, 2, fc.Metadata["count"])
}

func TestSyncLayers_FetchError(t *testing.T) {
	groups, err := selectGroups([]string{"health", "energy"})
	require.NoError(t, err)

	_, err = syncLayers(context.Background(), &fakeFetcher{fail: "energy"}, groups, fileSink(t.TempDir()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layers: fetch energy")
}

func TestTableSink_Upserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_ptel_dera_features"}, dera.RecordColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "ptel"."dera_features"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	g, err := dera.Lookup("emergency")
	require.NoError(t, err)
	records := []dera.Record{{
		FeatureID: "g12_35.1",
		Layer:     g.Layers[0].TypeName,
		Category:  g.Key,
		Name:      "Centro de Emergencias 112",
		Point:     geo.Point{X: 235000, Y: 4140000},
	}}

	n, err := tableSink(mock)(context.Background(), g, records)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableSink_NoRecords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := tableSink(mock)(context.Background(), dera.Group{Key: "energy"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
