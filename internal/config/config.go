package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Engine  EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Cascade CascadeConfig `yaml:"cascade" mapstructure:"cascade"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Circuit CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	DERA    DERAConfig    `yaml:"dera" mapstructure:"dera"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// EngineConfig configures the parallel query engine and consensus analysis.
type EngineConfig struct {
	DefaultTimeoutMs int             `yaml:"default_timeout_ms" mapstructure:"default_timeout_ms"`
	Consensus        ConsensusConfig `yaml:"consensus" mapstructure:"consensus"`
}

// ConsensusConfig holds the Huber centroid and outlier constants.
type ConsensusConfig struct {
	InlierDistance  float64 `yaml:"inlier_distance" mapstructure:"inlier_distance"`
	MaxIterations   int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	Tolerance       float64 `yaml:"tolerance" mapstructure:"tolerance"`
	OutlierWeight   float64 `yaml:"outlier_weight" mapstructure:"outlier_weight"`
	OutlierDistance float64 `yaml:"outlier_distance" mapstructure:"outlier_distance"`
}

// CascadeConfig configures sequential resolution.
type CascadeConfig struct {
	PauseMs   int `yaml:"pause_ms" mapstructure:"pause_ms"`
	TimeoutMs int `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	// LevelsFile optionally replaces the compiled-in level table.
	LevelsFile string `yaml:"levels_file" mapstructure:"levels_file"`
}

// SourcesConfig holds per-adapter settings.
type SourcesConfig struct {
	Cartociudad SourceConfig `yaml:"cartociudad" mapstructure:"cartociudad"`
	Nominatim   SourceConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Overpass    SourceConfig `yaml:"overpass" mapstructure:"overpass"`
	Google      SourceConfig `yaml:"google" mapstructure:"google"`
	// DERA configures the live WFS adapters, one per catalogue group.
	DERA SourceConfig `yaml:"dera" mapstructure:"dera"`
	// Layer configures the PostGIS adapter over synced DERA features.
	Layer SourceConfig `yaml:"layer" mapstructure:"layer"`
}

// SourceConfig configures one adapter. Zero values keep adapter defaults.
type SourceConfig struct {
	Enabled         bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey          string  `yaml:"api_key" mapstructure:"api_key"`
	AuthorityWeight float64 `yaml:"authority_weight" mapstructure:"authority_weight"`
	TimeoutMs       int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RetryAttempts   int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// CircuitConfig configures the per-source circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CacheConfig configures the adapter outcome cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Driver  string `yaml:"driver" mapstructure:"driver"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
	TTLDays int    `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// StoreConfig configures the PostGIS database.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// DERAConfig configures layer downloads from IDEAndalucía.
type DERAConfig struct {
	PageSize       int    `yaml:"page_size" mapstructure:"page_size"`
	PagePauseMs    int    `yaml:"page_pause_ms" mapstructure:"page_pause_ms"`
	RetryAttempts  int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	OutputDir      string `yaml:"output_dir" mapstructure:"output_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MetricsConfig configures Prometheus collection.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.default_timeout_ms", 10000)
	v.SetDefault("engine.consensus.inlier_distance", 100.0)
	v.SetDefault("engine.consensus.max_iterations", 20)
	v.SetDefault("engine.consensus.tolerance", 0.01)
	v.SetDefault("engine.consensus.outlier_weight", 0.5)
	v.SetDefault("engine.consensus.outlier_distance", 500.0)
	v.SetDefault("cascade.pause_ms", 1000)
	v.SetDefault("cascade.timeout_ms", 10000)
	v.SetDefault("cascade.levels_file", "")
	v.SetDefault("sources.cartociudad.enabled", true)
	v.SetDefault("sources.cartociudad.authority_weight", 0.8)
	v.SetDefault("sources.cartociudad.timeout_ms", 10000)
	v.SetDefault("sources.cartociudad.rate_limit", 5.0)
	v.SetDefault("sources.nominatim.enabled", true)
	v.SetDefault("sources.nominatim.authority_weight", 0.5)
	v.SetDefault("sources.nominatim.timeout_ms", 10000)
	v.SetDefault("sources.nominatim.rate_limit", 1.0)
	v.SetDefault("sources.overpass.enabled", true)
	v.SetDefault("sources.overpass.authority_weight", 0.6)
	v.SetDefault("sources.overpass.timeout_ms", 30000)
	v.SetDefault("sources.overpass.rate_limit", 1.0)
	v.SetDefault("sources.google.enabled", false)
	v.SetDefault("sources.google.authority_weight", 0.7)
	v.SetDefault("sources.google.timeout_ms", 10000)
	v.SetDefault("sources.google.api_key", "")
	v.SetDefault("sources.dera.enabled", true)
	v.SetDefault("sources.dera.authority_weight", 0.9)
	v.SetDefault("sources.dera.timeout_ms", 60000)
	v.SetDefault("sources.layer.enabled", false)
	v.SetDefault("sources.layer.authority_weight", 0.95)
	v.SetDefault("sources.layer.timeout_ms", 5000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.dsn", "ptel-cache.db")
	v.SetDefault("cache.ttl_days", 30)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("dera.page_size", 1000)
	v.SetDefault("dera.page_pause_ms", 500)
	v.SetDefault("dera.retry_attempts", 3)
	v.SetDefault("dera.retry_backoff_ms", 5000)
	v.SetDefault("dera.output_dir", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "ptel")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "resolve", "consensus", "serve" and "sync".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "resolve", "consensus":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "sync":
		if c.DERA.PageSize <= 0 {
			errs = append(errs, "dera.page_size must be > 0")
		}
		if c.Store.DatabaseURL == "" && c.DERA.OutputDir == "" {
			errs = append(errs, "store.database_url or dera.output_dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "sync" {
		errs = append(errs, c.validateResolution()...)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateResolution() []string {
	var errs []string

	if c.Engine.DefaultTimeoutMs <= 0 {
		errs = append(errs, "engine.default_timeout_ms must be > 0")
	}
	if c.Cascade.PauseMs < 0 {
		errs = append(errs, "cascade.pause_ms must be >= 0")
	}
	cc := c.Engine.Consensus
	if cc.InlierDistance < 0 || cc.Tolerance < 0 || cc.OutlierDistance < 0 || cc.MaxIterations < 0 {
		errs = append(errs, "engine.consensus values must be >= 0")
	}
	if cc.OutlierWeight < 0 || cc.OutlierWeight > 1 {
		errs = append(errs, "engine.consensus.outlier_weight must be between 0 and 1")
	}

	for _, s := range c.Sources.named() {
		if s.cfg.AuthorityWeight < 0 || s.cfg.AuthorityWeight > 1 {
			errs = append(errs, "sources."+s.name+".authority_weight must be between 0 and 1")
		}
	}
	if c.Sources.Google.Enabled && c.Sources.Google.APIKey == "" {
		errs = append(errs, "sources.google.api_key is required when google is enabled")
	}
	if c.Sources.Layer.Enabled && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required when sources.layer is enabled")
	}

	if c.Cache.Enabled {
		switch c.Cache.Driver {
		case "sqlite":
			if c.Cache.DSN == "" {
				errs = append(errs, "cache.dsn is required for the sqlite cache")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres cache")
			}
		default:
			errs = append(errs, "cache.driver must be sqlite or postgres")
		}
	}
	return errs
}

type namedSource struct {
	name string
	cfg  SourceConfig
}

func (s SourcesConfig) named() []namedSource {
	return []namedSource{
		{"cartociudad", s.Cartociudad},
		{"nominatim", s.Nominatim},
		{"overpass", s.Overpass},
		{"google", s.Google},
		{"dera", s.DERA},
		{"layer", s.Layer},
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
