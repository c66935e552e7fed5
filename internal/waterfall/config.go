package waterfall

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// Level thresholds on the 0-100 match score. Specialized registries must
// clear the strictest bar; the name-only fallback the loosest.
const (
	ThresholdSpecialized = 60.0
	ThresholdAddress     = 55.0
	ThresholdNameOnly    = 50.0
)

// Config is the cascade level table.
type Config struct {
	Defaults   DefaultConfig                 `yaml:"defaults"`
	Categories map[geocode.Category][]Level `yaml:"categories"`
}

// DefaultConfig holds global cascade settings.
type DefaultConfig struct {
	// PauseMs is the delay between batch items.
	PauseMs int `yaml:"pause_ms"`
	// TimeoutMs bounds each level call when the source has no own timeout.
	TimeoutMs int `yaml:"timeout_ms"`
	// Levels apply to categories without their own list.
	Levels []Level `yaml:"levels"`
}

// Level is one cascade step.
type Level struct {
	// Name is the label recorded in the attempt log; defaults to Source.
	Name string `yaml:"name"`
	// Source is the adapter ID invoked at this level.
	Source    string  `yaml:"source"`
	Threshold float64 `yaml:"threshold"`
}

// Label returns the attempt-log label for the level.
func (l Level) Label() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Source
}

var (
	addressLevel  = Level{Source: "cartociudad", Threshold: ThresholdAddress}
	nameOnlyLevel = Level{Source: "nominatim", Threshold: ThresholdNameOnly}
)

func specialized(source string) Level {
	return Level{Source: source, Threshold: ThresholdSpecialized}
}

// Default returns the compiled-in level table.
func Default() *Config {
	return &Config{
		Defaults: DefaultConfig{
			PauseMs:   1000,
			TimeoutMs: 10000,
			Levels:    []Level{addressLevel, nameOnlyLevel},
		},
		Categories: map[geocode.Category][]Level{
			geocode.CategoryHealth:         {specialized("dera_health"), addressLevel, nameOnlyLevel},
			geocode.CategoryTelecom:        {specialized("overpass_telecom"), addressLevel, nameOnlyLevel},
			geocode.CategoryEducation:      {specialized("dera_education"), addressLevel, nameOnlyLevel},
			geocode.CategoryAdministrative: {specialized("dera_municipal"), specialized("dera_security"), addressLevel, nameOnlyLevel},
		},
	}
}

// LoadConfig reads a level table from YAML and overlays it on Default.
// Categories present in the file replace the default list entirely.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "waterfall: read config %s", path)
	}

	// The YAML has a top-level "cascade" key
	var wrapper struct {
		Cascade Config `yaml:"cascade"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "waterfall: parse config")
	}

	cfg := Default()
	file := wrapper.Cascade
	if file.Defaults.PauseMs > 0 {
		cfg.Defaults.PauseMs = file.Defaults.PauseMs
	}
	if file.Defaults.TimeoutMs > 0 {
		cfg.Defaults.TimeoutMs = file.Defaults.TimeoutMs
	}
	if len(file.Defaults.Levels) > 0 {
		cfg.Defaults.Levels = file.Defaults.Levels
	}
	for cat, levels := range file.Categories {
		if _, err := geocode.ParseCategory(string(cat)); err != nil {
			return nil, eris.Wrap(err, "waterfall: config")
		}
		cfg.Categories[cat] = levels
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every level names a source and has a threshold in (0,100].
func (c *Config) Validate() error {
	check := func(where string, levels []Level) error {
		for i, l := range levels {
			if l.Source == "" {
				return eris.Errorf("waterfall: %s level %d has no source", where, i)
			}
			if l.Threshold <= 0 || l.Threshold > 100 {
				return eris.Errorf("waterfall: %s level %s threshold %.1f out of range", where, l.Label(), l.Threshold)
			}
		}
		return nil
	}
	if err := check("defaults", c.Defaults.Levels); err != nil {
		return err
	}
	for cat, levels := range c.Categories {
		if err := check(string(cat), levels); err != nil {
			return err
		}
	}
	return nil
}

// Levels returns the cascade for a category, falling back to defaults.
func (c *Config) Levels(cat geocode.Category) []Level {
	if levels, ok := c.Categories[cat]; ok {
		return levels
	}
	return c.Defaults.Levels
}

// Sources returns every distinct source ID referenced by the table.
func (c *Config) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(levels []Level) {
		for _, l := range levels {
			if !seen[l.Source] {
				seen[l.Source] = true
				out = append(out, l.Source)
			}
		}
	}
	add(c.Defaults.Levels)
	for _, cat := range geocode.Categories {
		add(c.Categories[cat])
	}
	return out
}
