// Package fanout dispatches one query to many geocoding sources at once and
// collects exactly one result record per source.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// DefaultTimeout applies to adapters without their own timeout.
const DefaultTimeout = 10 * time.Second

// Observer receives every settled SourceResult.
type Observer interface {
	ObserveSource(r geocode.SourceResult)
}

// Engine runs parallel queries. It holds no adapter state between calls.
type Engine struct {
	timeout  time.Duration
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultTimeout sets the timeout for adapters that do not override it.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithObserver registers an observer for settled results.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type reply struct {
	outcome *geocode.Outcome
	err     error
}

// QueryAll calls every adapter concurrently, each under its own timer, and
// returns one SourceResult per adapter in input order. Failures and timeouts
// are recorded in the result, never returned.
func (e *Engine) QueryAll(ctx context.Context, q geocode.Query, adapters []geocode.Adapter) []geocode.SourceResult {
	results := make([]geocode.SourceResult, len(adapters))
	if len(adapters) == 0 {
		return results
	}

	// Goroutines never return errors, so a sibling failure cannot cancel
	// the group context.
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = e.queryOne(ctx, q, a)
			if e.observer != nil {
				e.observer.ObserveSource(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) queryOne(ctx context.Context, q geocode.Query, a geocode.Adapter) geocode.SourceResult {
	res := geocode.SourceResult{
		SourceID:        a.ID(),
		SourceName:      a.Name(),
		AuthorityWeight: a.AuthorityWeight(),
	}

	timeout := a.Timeout()
	if timeout <= 0 {
		timeout = e.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	// Buffered so a late adapter can always deliver and exit after we stop waiting.
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: eris.Errorf("fanout: %s panicked: %v", a.ID(), r)}
			}
		}()
		out, err := a.Geocode(callCtx, q)
		ch <- reply{outcome: out, err: err}
	}()

	select {
	case r := <-ch:
		res.ResponseTimeMs = time.Since(start).Milliseconds()
		switch {
		case r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && callCtx.Err() != nil && ctx.Err() == nil:
			res.Status = geocode.StatusTimeout
			res.Error = timeoutMessage(timeout)
		case r.err != nil:
			res.Status = geocode.StatusError
			res.Error = r.err.Error()
		case r.outcome == nil:
			res.Status = geocode.StatusNoResults
		case !r.outcome.Coordinates.Valid():
			res.Status = geocode.StatusError
			res.Error = fmt.Sprintf("fanout: %s returned non-finite coordinates %s", a.ID(), r.outcome.Coordinates)
		default:
			res.Status = geocode.StatusSuccess
			res.Result = r.outcome
		}
	case <-callCtx.Done():
		res.ResponseTimeMs = time.Since(start).Milliseconds()
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.Status = geocode.StatusTimeout
			res.Error = timeoutMessage(timeout)
		} else {
			res.Status = geocode.StatusError
			res.Error = callCtx.Err().Error()
		}
	}

	zap.L().Debug("fanout: source settled",
		zap.String("source", res.SourceID),
		zap.String("status", string(res.Status)),
		zap.Int64("response_time_ms", res.ResponseTimeMs),
	)
	return res
}

func timeoutMessage(d time.Duration) string {
	return fmt.Sprintf("timeout after %dms", d.Milliseconds())
}
