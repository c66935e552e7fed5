package dera

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/resilience"
)

// Defaults for GetFeature paging against IDEAndalucía.
const (
	DefaultPageSize       = 1000
	DefaultPagePause      = 500 * time.Millisecond
	DefaultRequestTimeout = 60 * time.Second
)

// SourceProperty is the feature property carrying the originating layer description.
const SourceProperty = "_source"

// Client downloads features from DERA WFS endpoints.
type Client struct {
	http      *http.Client
	pageSize  int
	pagePause time.Duration
	retry     resilience.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for GetFeature requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPageSize sets the feature count requested per page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithPagePause sets the delay between consecutive pages.
func WithPagePause(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.pagePause = d
		}
	}
}

// WithRetry sets the retry policy for failed pages.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a DERA client with IDEAndalucía defaults: 1000 features
// per page, 60s per request, and three attempts 5s apart.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: DefaultRequestTimeout},
		pageSize:  DefaultPageSize,
		pagePause: DefaultPagePause,
		retry:     resilience.FixedRetry(3, 5*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// page mirrors the GeoServer GetFeature JSON envelope.
type page struct {
	NumberMatched *int              `json:"numberMatched"`
	Features      []json.RawMessage `json:"features"`
}

// FeatureURL builds a WFS 2.0.0 GetFeature request in EPSG:25830.
func FeatureURL(layer Layer, cql string, startIndex, count int) string {
	params := url.Values{
		"service":      {"WFS"},
		"version":      {"2.0.0"},
		"request":      {"GetFeature"},
		"typeName":     {layer.TypeName},
		"outputFormat": {"application/json"},
		"srsName":      {"EPSG:25830"},
		"startIndex":   {strconv.Itoa(startIndex)},
		"count":        {strconv.Itoa(count)},
	}
	if cql != "" {
		params.Set("CQL_FILTER", cql)
	}
	return layer.URL + "?" + params.Encode()
}

// Fetch downloads every feature of layer matching the optional CQL filter,
// following startIndex pagination until a short page is returned.
func (c *Client) Fetch(ctx context.Context, layer Layer, cql string) ([]*geojson.Feature, error) {
	return c.fetch(ctx, layer, cql, 0)
}

// FetchFirst downloads at most limit features in a single request.
func (c *Client) FetchFirst(ctx context.Context, layer Layer, cql string, limit int) ([]*geojson.Feature, error) {
	if limit <= 0 {
		limit = 1
	}
	return c.fetch(ctx, layer, cql, limit)
}

func (c *Client) fetch(ctx context.Context, layer Layer, cql string, limit int) ([]*geojson.Feature, error) {
	log := zap.L().With(zap.String("layer", layer.TypeName))

	count := c.pageSize
	if limit > 0 && limit < count {
		count = limit
	}

	var all []*geojson.Feature
	start := 0
	for {
		p, err := c.fetchPage(ctx, FeatureURL(layer, cql, start, count))
		if err != nil {
			return all, eris.Wrapf(err, "dera: fetch %s at %d", layer.TypeName, start)
		}
		if start == 0 && p.NumberMatched != nil {
			log.Debug("dera: layer size", zap.Int("matched", *p.NumberMatched))
		}
		if len(p.Features) == 0 {
			break
		}

		for _, raw := range p.Features {
			f := new(geojson.Feature)
			if err := f.UnmarshalJSON(raw); err != nil {
				log.Warn("dera: skipping malformed feature", zap.Error(err))
				continue
			}
			if f.Properties == nil {
				f.Properties = make(map[string]any)
			}
			f.Properties[SourceProperty] = layer.Description
			all = append(all, f)
		}

		if limit > 0 || len(p.Features) < count {
			break
		}
		start += count

		if c.pagePause > 0 {
			select {
			case <-ctx.Done():
				return all, eris.Wrap(ctx.Err(), "dera: paging interrupted")
			case <-time.After(c.pagePause):
			}
		}
	}

	log.Debug("dera: layer downloaded", zap.Int("features", len(all)))
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, reqURL string) (*page, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("dera", "get_feature")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*page, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "dera: build request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "dera: request"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError(eris.Errorf("dera: status %d", resp.StatusCode), resp)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "dera: read body")
		}

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, eris.Wrap(err, "dera: parse response")
		}
		return &p, nil
	})
}

// FetchGroup downloads every layer of a catalogue group and merges the
// features. A failing layer is logged and skipped.
func (c *Client) FetchGroup(ctx context.Context, g Group) ([]*geojson.Feature, error) {
	var merged []*geojson.Feature
	var failed int
	for _, layer := range g.Layers {
		features, err := c.Fetch(ctx, layer, "")
		if err != nil {
			if ctx.Err() != nil {
				return merged, eris.Wrap(ctx.Err(), "dera: fetch group")
			}
			failed++
			zap.L().Warn("dera: layer failed",
				zap.String("group", g.Key),
				zap.String("layer", layer.TypeName),
				zap.Error(err),
			)
			continue
		}
		merged = append(merged, features...)
	}
	if failed == len(g.Layers) && failed > 0 {
		return nil, eris.Errorf("dera: all %d layers of %s failed", failed, g.Key)
	}
	return merged, nil
}
