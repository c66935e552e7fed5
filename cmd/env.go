package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/config"
	"github.com/sells-group/ptel-geocoder/internal/consensus"
	"github.com/sells-group/ptel-geocoder/internal/db"
	"github.com/sells-group/ptel-geocoder/internal/dera"
	"github.com/sells-group/ptel-geocoder/internal/fanout"
	"github.com/sells-group/ptel-geocoder/internal/geocache"
	"github.com/sells-group/ptel-geocoder/internal/monitoring"
	"github.com/sells-group/ptel-geocoder/internal/resilience"
	"github.com/sells-group/ptel-geocoder/internal/waterfall"
	"github.com/sells-group/ptel-geocoder/internal/waterfall/provider"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// geoEnv holds the initialized sources, resolvers and metrics needed by the
// resolve/consensus/batch/serve commands.
type geoEnv struct {
	Sources  *provider.Registry
	Levels   *waterfall.Config
	Cascade  *waterfall.Cascade
	Engine   *fanout.Engine
	Metrics  *monitoring.Metrics
	Params   consensus.Params
	Breakers *resilience.ServiceBreakers

	pool  *pgxpool.Pool
	cache geocache.Store
}

// Close releases resources held by the environment.
func (e *geoEnv) Close() {
	if e.cache != nil {
		_ = e.cache.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

// initEnv validates config for mode, opens the optional database and cache,
// and wires every enabled source. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*geoEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &geoEnv{
		Metrics:  monitoring.New(monitoring.Config{Enabled: cfg.Metrics.Enabled, Namespace: cfg.Metrics.Namespace}),
		Params:   consensusParams(cfg.Engine.Consensus),
		Breakers: resilience.NewServiceBreakers(circuitConfig(cfg.Circuit)),
	}

	if needsDatabase(cfg) {
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
		if err != nil {
			return nil, err
		}
		env.pool = pool
		if err := db.Migrate(ctx, pool); err != nil {
			env.Close()
			return nil, err
		}
	}

	if cfg.Cache.Enabled {
		store, err := openCache(ctx, cfg.Cache, env.pool)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.cache = store
	}

	levels, err := loadLevels(cfg.Cascade)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Levels = levels

	var pool db.Pool
	if env.pool != nil {
		pool = env.pool
	}
	env.Sources = buildRegistry(cfg, pool, newDERAClient(cfg.DERA), env.Breakers, env.cache)

	env.Cascade = waterfall.New(levels, env.Sources, waterfall.WithRecorder(env.Metrics))
	env.Engine = fanout.New(
		fanout.WithDefaultTimeout(time.Duration(cfg.Engine.DefaultTimeoutMs)*time.Millisecond),
		fanout.WithObserver(env.Metrics),
	)

	zap.L().Info("sources ready",
		zap.Strings("sources", env.Sources.List()),
		zap.Bool("cache", env.cache != nil),
		zap.Bool("database", env.pool != nil),
	)
	return env, nil
}

func needsDatabase(c *config.Config) bool {
	return c.Sources.Layer.Enabled || (c.Cache.Enabled && c.Cache.Driver == "postgres")
}

func openCache(ctx context.Context, cc config.CacheConfig, pool *pgxpool.Pool) (geocache.Store, error) {
	switch cc.Driver {
	case "postgres":
		if pool == nil {
			return nil, eris.New("cache: postgres driver needs store.database_url")
		}
		return geocache.NewPostgres(pool), nil
	default:
		return geocache.NewSQLite(ctx, cc.DSN)
	}
}

// loadLevels returns the cascade table from the levels file, or the
// compiled-in defaults, with pause and timeout taken from config.
func loadLevels(cc config.CascadeConfig) (*waterfall.Config, error) {
	levels := waterfall.Default()
	if cc.LevelsFile != "" {
		var err error
		if levels, err = waterfall.LoadConfig(cc.LevelsFile); err != nil {
			return nil, err
		}
	}
	if cc.PauseMs > 0 {
		levels.Defaults.PauseMs = cc.PauseMs
	}
	if cc.TimeoutMs > 0 {
		levels.Defaults.TimeoutMs = cc.TimeoutMs
	}
	return levels, nil
}

func newDERAClient(dc config.DERAConfig) *dera.Client {
	opts := []dera.Option{
		dera.WithPageSize(dc.PageSize),
		dera.WithPagePause(time.Duration(dc.PagePauseMs) * time.Millisecond),
	}
	if dc.RetryAttempts > 0 {
		opts = append(opts, dera.WithRetry(resilience.FixedRetry(dc.RetryAttempts, time.Duration(dc.RetryBackoffMs)*time.Millisecond)))
	}
	return dera.NewClient(opts...)
}

// buildRegistry registers every enabled source. Each adapter is guarded by a
// per-source circuit breaker and, when a cache is given, memoised outside it
// so cached answers survive an open breaker.
func buildRegistry(c *config.Config, pool db.Pool, client *dera.Client, breakers *resilience.ServiceBreakers, cache geocache.Store) *provider.Registry {
	reg := provider.NewRegistry()
	ttl := time.Duration(c.Cache.TTLDays) * 24 * time.Hour

	register := func(a geocode.Adapter) {
		a = geocode.Guarded(a, breakers.Get(a.ID()))
		if cache != nil {
			a = geocache.Cached(a, cache, ttl)
		}
		reg.Register(a)
	}

	sc := c.Sources
	if sc.DERA.Enabled {
		for _, key := range dera.Keys() {
			a, err := geocode.NewWFSGroupAdapter(client, key, sourceOptions(sc.DERA)...)
			if err != nil {
				zap.L().Warn("skipping DERA group", zap.String("group", key), zap.Error(err))
				continue
			}
			register(a)
		}
	}
	// Synced layers replace the live WFS adapters under the same IDs.
	if sc.Layer.Enabled && pool != nil {
		for _, g := range dera.Groups() {
			opts := append([]geocode.Option{
				geocode.WithID("dera_" + g.Key),
				geocode.WithName("DERA " + g.Name + " (PostGIS)"),
			}, sourceOptions(sc.Layer)...)
			register(geocode.NewLayerAdapter(pool, []string{g.Key}, opts...))
		}
	}
	if sc.Overpass.Enabled {
		register(geocode.NewOverpassTelecomAdapter(sourceOptions(sc.Overpass)...))
		register(geocode.NewOverpassAdapter("", sourceOptions(sc.Overpass)...))
	}
	if sc.Cartociudad.Enabled {
		register(geocode.NewCartoCiudadAdapter(sourceOptions(sc.Cartociudad)...))
	}
	if sc.Nominatim.Enabled {
		register(geocode.NewNominatimAdapter(sourceOptions(sc.Nominatim)...))
	}
	if sc.Google.Enabled && sc.Google.APIKey != "" {
		register(geocode.NewGoogleAdapter(sc.Google.APIKey, sourceOptions(sc.Google)...))
	}
	return reg
}

// sourceOptions maps config onto adapter options; zero values keep the
// adapter's defaults.
func sourceOptions(sc config.SourceConfig) []geocode.Option {
	opts := []geocode.Option{geocode.WithBaseURL(sc.BaseURL)}
	if sc.AuthorityWeight > 0 {
		opts = append(opts, geocode.WithAuthorityWeight(sc.AuthorityWeight))
	}
	if sc.TimeoutMs > 0 {
		opts = append(opts, geocode.WithTimeout(time.Duration(sc.TimeoutMs)*time.Millisecond))
	}
	if sc.RateLimit > 0 {
		opts = append(opts, geocode.WithRateLimit(sc.RateLimit))
	}
	if sc.RetryAttempts > 0 {
		rc := resilience.DefaultRetryConfig()
		rc.MaxAttempts = sc.RetryAttempts
		opts = append(opts, geocode.WithRetry(rc))
	}
	return opts
}

func consensusParams(cc config.ConsensusConfig) consensus.Params {
	return consensus.Params{
		InlierDistance:  cc.InlierDistance,
		MaxIterations:   cc.MaxIterations,
		Tolerance:       cc.Tolerance,
		OutlierWeight:   cc.OutlierWeight,
		OutlierDistance: cc.OutlierDistance,
	}
}

func circuitConfig(cc config.CircuitConfig) resilience.CircuitBreakerConfig {
	cb := resilience.DefaultCircuitBreakerConfig()
	if cc.FailureThreshold > 0 {
		cb.FailureThreshold = cc.FailureThreshold
	}
	if cc.ResetTimeoutSecs > 0 {
		cb.ResetTimeout = time.Duration(cc.ResetTimeoutSecs) * time.Second
	}
	return cb
}

// consensusSources picks the adapters for a parallel query: an explicit ID
// list, or every source on the category's cascade plus the general-purpose
// ones not already included.
func consensusSources(env *geoEnv, cat geocode.Category, ids []string) []geocode.Adapter {
	if len(ids) > 0 {
		return env.Sources.Select(ids)
	}

	var want []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			want = append(want, id)
		}
	}
	for _, l := range env.Levels.Levels(cat) {
		add(l.Source)
	}
	for _, id := range []string{"cartociudad", "nominatim", "overpass", "google"} {
		add(id)
	}
	return env.Sources.Select(want)
}
