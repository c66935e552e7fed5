package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/consensus"
	"github.com/sells-group/ptel-geocoder/internal/fanout"
	"github.com/sells-group/ptel-geocoder/internal/geo"
	"github.com/sells-group/ptel-geocoder/internal/monitoring"
	"github.com/sells-group/ptel-geocoder/internal/waterfall"
	"github.com/sells-group/ptel-geocoder/internal/waterfall/provider"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fixedSource answers every query with the same outcome.
type fixedSource struct {
	id      string
	weight  float64
	outcome *geocode.Outcome
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fixedSource) ID() string               { return f.id }
func (f *fixedSource) Name() string             { return "fixed " + f.id }
func (f *fixedSource) AuthorityWeight() float64 { return f.weight }
func (f *fixedSource) Timeout() time.Duration   { return 0 }
func (f *fixedSource) Geocode(_ context.Context, _ geocode.Query) (*geocode.Outcome, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.outcome, f.err
}

func at(x, y, score float64) *geocode.Outcome {
	return &geocode.Outcome{Coordinates: geo.Point{X: x, Y: y}, MatchedName: "match", MatchScore: score}
}

// newTestEnv wires sources into an env without touching config or network.
func newTestEnv(sources ...geocode.Adapter) *geoEnv {
	reg := provider.NewRegistry()
	for _, s := range sources {
		reg.Register(s)
	}
	levels := waterfall.Default()
	levels.Defaults.PauseMs = 0

	m := monitoring.New(monitoring.Config{Enabled: true, Namespace: "ptel_test"})
	return &geoEnv{
		Sources: reg,
		Levels:  levels,
		Cascade: waterfall.New(levels, reg, waterfall.WithRecorder(m)),
		Engine:  fanout.New(fanout.WithDefaultTimeout(time.Second), fanout.WithObserver(m)),
		Metrics: m,
		Params:  consensus.DefaultParams(),
	}
}
