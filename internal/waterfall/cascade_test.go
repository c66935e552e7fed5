package waterfall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/geo"
	"github.com/sells-group/ptel-geocoder/internal/waterfall/provider"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type scriptedSource struct {
	id      string
	outcome *geocode.Outcome
	err     error
	panics  bool
	delay   time.Duration
	calls   int
	spans   []span
}

type span struct{ start, end time.Time }

func (s *scriptedSource) ID() string               { return s.id }
func (s *scriptedSource) Name() string             { return s.id }
func (s *scriptedSource) AuthorityWeight() float64 { return 1 }
func (s *scriptedSource) Timeout() time.Duration   { return 0 }
func (s *scriptedSource) Geocode(_ context.Context, _ geocode.Query) (*geocode.Outcome, error) {
	s.calls++
	start := time.Now()
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.spans = append(s.spans, span{start: start, end: time.Now()})
	return s.outcome, s.err
}

func scored(score float64) *geocode.Outcome {
	return &geocode.Outcome{Coordinates: geo.Point{X: 441000, Y: 4136000}, MatchScore: score}
}

type sourceSet struct {
	health, telecom, address, name *scriptedSource
	reg                            *provider.Registry
}

func newSourceSet() *sourceSet {
	s := &sourceSet{
		health:  &scriptedSource{id: "dera_health"},
		telecom: &scriptedSource{id: "overpass_telecom"},
		address: &scriptedSource{id: "cartociudad"},
		name:    &scriptedSource{id: "nominatim"},
		reg:     provider.NewRegistry(),
	}
	for _, a := range []*scriptedSource{s.health, s.telecom, s.address, s.name} {
		s.reg.Register(a)
	}
	return s
}

type recorded struct {
	category geocode.Category
	outcome  string
	level    string
}

type fakeRecorder struct{ calls []recorded }

func (f *fakeRecorder) ObserveCascade(c geocode.Category, outcome, level string) {
	f.calls = append(f.calls, recorded{c, outcome, level})
}

func TestResolve_HealthSpecializedHit(t *testing.T) {
	s := newSourceSet()
	s.health.outcome = scored(60)
	rec := &fakeRecorder{}

	res, err := New(nil, s.reg, WithRecorder(rec)).Resolve(context.Background(), geocode.Query{Name: "Centro de Salud Colomera"})
	require.NoError(t, err)

	assert.True(t, res.Found())
	assert.Equal(t, geocode.CategoryHealth, res.Category)
	assert.Equal(t, "dera_health", res.SourceID)
	assert.Equal(t, []string{"dera_health"}, res.Attempts)
	assert.Empty(t, res.Error)
	assert.Zero(t, s.address.calls)
	assert.Zero(t, s.name.calls)
	assert.Equal(t, []recorded{{geocode.CategoryHealth, OutcomeResolved, "dera_health"}}, rec.calls)
}

func TestResolve_HealthBelowThresholdSkipsTelecom(t *testing.T) {
	s := newSourceSet()
	s.health.outcome = scored(59.9)
	s.telecom.outcome = scored(99)
	s.address.outcome = scored(55)

	res, err := New(nil, s.reg).Resolve(context.Background(), geocode.Query{Name: "Consultorio Médico"})
	require.NoError(t, err)

	assert.Equal(t, 1, s.health.calls)
	assert.Zero(t, s.telecom.calls)
	assert.Equal(t, 1, s.address.calls)
	assert.Equal(t, "cartociudad", res.SourceID)
	assert.Equal(t, []string{"dera_health", "cartociudad"}, res.Attempts)
}

func TestResolve_NameOnlyLastResort(t *testing.T) {
	s := newSourceSet()
	s.address.outcome = scored(54)
	s.name.outcome = scored(50)

	res, err := New(nil, s.reg).Resolve(context.Background(), geocode.Query{Name: "Depósito de agua"})
	require.NoError(t, err)
	assert.Equal(t, geocode.CategoryGeneric, res.Category)
	assert.Equal(t, "nominatim", res.SourceID)
	assert.Equal(t, []string{"cartociudad", "nominatim"}, res.Attempts)
}

func TestResolve_NoCoordinatesFound(t *testing.T) {
	s := newSourceSet()
	s.name.outcome = scored(10)
	rec := &fakeRecorder{}

	res, err := New(nil, s.reg, WithRecorder(rec)).Resolve(context.Background(), geocode.Query{Name: "Antena"})
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, "no coordinates found in any service", res.Error)
	assert.Equal(t, []string{"overpass_telecom", "cartociudad", "nominatim"}, res.Attempts)
	assert.Equal(t, OutcomeNotFound, rec.calls[0].outcome)
}

func TestResolve_AdapterErrorAborts(t *testing.T) {
	s := newSourceSet()
	s.address.err = errors.New("status 502")
	s.name.outcome = scored(90)

	res, err := New(nil, s.reg).Resolve(context.Background(), geocode.Query{Name: "Depósito"})
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, "cartociudad: status 502", res.Error)
	assert.Equal(t, []string{"cartociudad"}, res.Attempts)
	assert.Zero(t, s.name.calls)
}

func TestResolve_PanicIsContained(t *testing.T) {
	s := newSourceSet()
	s.address.panics = true

	res, err := New(nil, s.reg).Resolve(context.Background(), geocode.Query{Name: "Depósito"})
	require.NoError(t, err)
	assert.Contains(t, res.Error, "panicked")
}

func TestResolve_ExplicitCategory(t *testing.T) {
	s := newSourceSet()
	s.telecom.outcome = scored(70)

	res, err := New(nil, s.reg).Resolve(context.Background(), geocode.Query{
		Name: "Centro de Salud", Category: geocode.CategoryTelecom,
	})
	require.NoError(t, err)
	assert.Equal(t, "overpass_telecom", res.SourceID)
	assert.Zero(t, s.health.calls)
}

func TestResolve_UnregisteredLevelSkipped(t *testing.T) {
	reg := provider.NewRegistry()
	name := &scriptedSource{id: "nominatim", outcome: scored(80)}
	reg.Register(name)

	res, err := New(nil, reg).Resolve(context.Background(), geocode.Query{Name: "Hospital Comarcal"})
	require.NoError(t, err)
	assert.Equal(t, []string{"nominatim"}, res.Attempts)
	assert.True(t, res.Found())
}

func TestResolve_InvalidQuery(t *testing.T) {
	res, err := New(nil, provider.NewRegistry()).Resolve(context.Background(), geocode.Query{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, geocode.ErrInvalidQuery))
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Attempts)
}

func TestResolveBatch(t *testing.T) {
	s := newSourceSet()
	s.health.outcome = scored(90)
	s.address.err = errors.New("down")

	queries := []geocode.Query{
		{Name: "Centro de Salud A"},
		{Name: "Depósito"},
		{Name: ""},
		{Name: "Hospital B"},
	}

	var progress []int
	start := time.Now()
	results := New(nil, s.reg, WithPause(20*time.Millisecond)).ResolveBatch(context.Background(), queries, func(done, total int, _ Result) {
		assert.Equal(t, 4, total)
		progress = append(progress, done)
	})

	require.Len(t, results, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)

	assert.True(t, results[0].Found())
	assert.Equal(t, "cartociudad: down", results[1].Error)
	assert.NotEmpty(t, results[2].Error)
	assert.True(t, results[3].Found())
	for i, r := range results {
		assert.Equal(t, queries[i], r.Query)
	}
}

func TestResolveBatch_PausesAfterSlowItems(t *testing.T) {
	s := newSourceSet()
	s.health.outcome = scored(90)
	s.health.delay = 60 * time.Millisecond

	pause := 40 * time.Millisecond
	queries := []geocode.Query{{Name: "Hospital A"}, {Name: "Hospital B"}, {Name: "Hospital C"}}
	results := New(nil, s.reg, WithPause(pause)).ResolveBatch(context.Background(), queries, nil)

	require.Len(t, results, 3)
	require.Len(t, s.health.spans, 3)
	for i := 1; i < len(s.health.spans); i++ {
		gap := s.health.spans[i].start.Sub(s.health.spans[i-1].end)
		assert.GreaterOrEqual(t, gap, pause, "gap before item %d", i)
	}
}

func TestResolveBatch_CancelDuringPause(t *testing.T) {
	s := newSourceSet()
	s.health.outcome = scored(90)

	ctx, cancel := context.WithCancel(context.Background())
	queries := []geocode.Query{{Name: "Hospital A"}, {Name: "Hospital B"}}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	results := New(nil, s.reg, WithPause(time.Hour)).ResolveBatch(ctx, queries, nil)

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, results, 2)
	assert.True(t, results[0].Found())
	assert.Contains(t, results[1].Error, "batch interrupted")
	assert.Equal(t, 1, s.health.calls)
}

func TestResolveBatch_Cancelled(t *testing.T) {
	s := newSourceSet()
	s.health.outcome = scored(90)

	ctx, cancel := context.WithCancel(context.Background())
	queries := []geocode.Query{{Name: "Hospital A"}, {Name: "Hospital B"}, {Name: "Hospital C"}}

	results := New(nil, s.reg, WithPause(time.Millisecond)).ResolveBatch(ctx, queries, func(done, _ int, _ Result) {
		if done == 1 {
			cancel()
		}
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].Found())
	assert.Contains(t, results[1].Error, "batch interrupted")
	assert.Contains(t, results[2].Error, "batch interrupted")
}

func TestResolveBatch_Empty(t *testing.T) {
	results := New(nil, provider.NewRegistry()).ResolveBatch(context.Background(), nil, nil)
	assert.Empty(t, results)
}
