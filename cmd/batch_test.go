package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ptel-geocoder/internal/intake"
	"github.com/sells-group/ptel-geocoder/internal/waterfall"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

func TestNewBatchReport(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	results := []waterfall.Result{
		{Query: geocode.Query{Name: "a"}, Result: at(1, 2, 80)},
		{Query: geocode.Query{Name: "b"}, Error: waterfall.ErrNoCoordinatesFound.Error()},
		{Query: geocode.Query{Name: "c"}, Result: at(3, 4, 70)},
	}

	r := newBatchReport("run-1", "inventario.csv", started, started.Add(time.Minute), results)
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Resolved)
	assert.Equal(t, time.Minute, r.FinishedAt.Sub(r.StartedAt))
}

func TestBatch_InventoryThroughCascade(t *testing.T) {
	carto := &fixedSource{id: "cartociudad", weight: 0.8, outcome: at(447000, 4131000, 70)}
	env := newTestEnv(carto)

	queries, err := intake.ReadCSV(context.Background(), strings.NewReader(
		"Nombre;Municipio;Dirección\n"+
			"Centro de Salud Sur;Sevilla;Calle Luis Montoto 2\n"+
			"Colegio Público Andalucía;Sevilla;Avenida de la Paz 1\n"))
	require.NoError(t, err)
	require.Len(t, queries, 2)

	var seen []int
	results := env.Cascade.ResolveBatch(context.Background(), queries, func(done, _ int, _ waterfall.Result) {
		seen = append(seen, done)
	})

	r := newBatchReport("run-2", "inline", time.Now(), time.Now(), results)
	assert.Equal(t, 2, r.Resolved)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, 2, carto.calls)
}
