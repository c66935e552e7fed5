// Package waterfall resolves infrastructures by trying sources one at a time
// in category order, stopping at the first confident hit.
package waterfall

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/classify"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// ErrNoCoordinatesFound means every level ran without a qualifying hit.
var ErrNoCoordinatesFound = eris.New("no coordinates found in any service")

// Sources looks up adapters by ID.
type Sources interface {
	Get(id string) geocode.Adapter
}

// Recorder receives one observation per resolved item.
type Recorder interface {
	ObserveCascade(category geocode.Category, outcome, level string)
}

// Cascade outcomes reported to the Recorder.
const (
	OutcomeResolved = "resolved"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Result is the outcome of one cascade run.
type Result struct {
	Query    geocode.Query    `json:"query"`
	Category geocode.Category `json:"category"`
	Result   *geocode.Outcome `json:"result"`
	SourceID string           `json:"source_id,omitempty"`
	Level    string           `json:"level,omitempty"`
	Attempts []string         `json:"attempts"`
	Error    string           `json:"error,omitempty"`
}

// Found reports whether the cascade produced coordinates.
func (r Result) Found() bool { return r.Result != nil }

// ProgressFunc is called after every batch item with the count done so far.
type ProgressFunc func(done, total int, r Result)

// Cascade runs the level table against a source set.
type Cascade struct {
	cfg      *Config
	sources  Sources
	classify func(geocode.Query) geocode.Category
	recorder Recorder
	pause    time.Duration
	timeout  time.Duration
}

// Option configures a Cascade.
type Option func(*Cascade)

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Cascade) { c.recorder = r }
}

// WithPause overrides the inter-item batch pause.
func WithPause(d time.Duration) Option {
	return func(c *Cascade) { c.pause = d }
}

// WithClassifier overrides how a query's category is chosen.
func WithClassifier(fn func(geocode.Query) geocode.Category) Option {
	return func(c *Cascade) { c.classify = fn }
}

// New creates a Cascade. A nil cfg uses Default.
func New(cfg *Config, sources Sources, opts ...Option) *Cascade {
	if cfg == nil {
		cfg = Default()
	}
	c := &Cascade{
		cfg:      cfg,
		sources:  sources,
		classify: classify.Resolve,
		pause:    time.Duration(cfg.Defaults.PauseMs) * time.Millisecond,
		timeout:  time.Duration(cfg.Defaults.TimeoutMs) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve runs the cascade for one query. Adapter failures end up in
// Result.Error; only an invalid query is returned as an error.
func (c *Cascade) Resolve(ctx context.Context, q geocode.Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{Query: q, Attempts: []string{}, Error: err.Error()}, err
	}

	cat := c.classify(q)
	res := Result{Query: q, Category: cat, Attempts: []string{}}
	log := zap.L().With(zap.String("name", q.Name), zap.String("category", string(cat)))

	for _, level := range c.cfg.Levels(cat) {
		a := c.sources.Get(level.Source)
		if a == nil {
			log.Debug("waterfall: source not registered, skipping", zap.String("source", level.Source))
			continue
		}

		res.Attempts = append(res.Attempts, level.Label())
		out, err := c.invoke(ctx, a, q)
		if err != nil {
			log.Warn("waterfall: source failed, aborting cascade",
				zap.String("source", a.ID()),
				zap.Error(err),
			)
			res.Error = a.ID() + ": " + err.Error()
			c.record(cat, OutcomeError, "")
			return res, nil
		}

		if out == nil {
			log.Debug("waterfall: no result", zap.String("level", level.Label()))
			continue
		}
		if out.MatchScore < level.Threshold {
			log.Debug("waterfall: below threshold",
				zap.String("level", level.Label()),
				zap.Float64("score", out.MatchScore),
				zap.Float64("threshold", level.Threshold),
			)
			continue
		}

		res.Result = out
		res.SourceID = a.ID()
		res.Level = level.Label()
		c.record(cat, OutcomeResolved, res.Level)
		return res, nil
	}

	res.Error = ErrNoCoordinatesFound.Error()
	c.record(cat, OutcomeNotFound, "")
	return res, nil
}

// invoke calls a under its own timeout, converting a panic into an error.
func (c *Cascade) invoke(ctx context.Context, a geocode.Adapter, q geocode.Query) (out *geocode.Outcome, err error) {
	timeout := a.Timeout()
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, eris.Errorf("waterfall: %s panicked: %v", a.ID(), r)
		}
	}()
	return a.Geocode(ctx, q)
}

func (c *Cascade) record(cat geocode.Category, outcome, level string) {
	if c.recorder != nil {
		c.recorder.ObserveCascade(cat, outcome, level)
	}
}

// ResolveBatch resolves queries sequentially, waiting the configured pause
// after each item before starting the next, and returns exactly one Result per
// query. Failures never stop the batch; once ctx is done the remaining items
// are marked with the context error.
func (c *Cascade) ResolveBatch(ctx context.Context, queries []geocode.Query, progress ProgressFunc) []Result {
	results := make([]Result, len(queries))

	for i, q := range queries {
		if i > 0 {
			c.wait(ctx)
		}
		if err := ctx.Err(); err != nil {
			results[i] = Result{Query: q, Attempts: []string{}, Error: eris.Wrap(err, "waterfall: batch interrupted").Error()}
		} else {
			results[i], _ = c.Resolve(ctx, q)
		}

		if progress != nil {
			progress(i+1, len(queries), results[i])
		}
	}

	var found int
	for _, r := range results {
		if r.Found() {
			found++
		}
	}
	zap.L().Info("waterfall: batch complete",
		zap.Int("total", len(queries)),
		zap.Int("resolved", found),
	)
	return results
}

// wait sleeps for the inter-item pause or until ctx is done.
func (c *Cascade) wait(ctx context.Context) {
	if c.pause <= 0 || ctx.Err() != nil {
		return
	}
	t := time.NewTimer(c.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
