package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ptel-geocoder/internal/db"
	"github.com/sells-group/ptel-geocoder/internal/dera"
	"github.com/sells-group/ptel-geocoder/internal/geo"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Inspect and sync the DERA WFS layer catalogue",
}

var layersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the DERA layer groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printCatalog(cmd.OutOrStdout(), dera.Groups())
	},
}

func printCatalog(out io.Writer, groups []dera.Group) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GROUP\tTYPE NAME\tDESCRIPTION")
	for _, g := range groups {
		for _, l := range g.Layers {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", g.Key, l.TypeName, l.Description)
		}
	}
	return w.Flush()
}

var (
	syncGroups    []string
	syncOutputDir string
)

var layersSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download DERA layer groups into PostGIS or GeoJSON files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if syncOutputDir != "" {
			cfg.DERA.OutputDir = syncOutputDir
		}
		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		groups, err := selectGroups(syncGroups)
		if err != nil {
			return err
		}

		var sink groupSink
		if cfg.DERA.OutputDir != "" {
			if err := os.MkdirAll(cfg.DERA.OutputDir, 0o755); err != nil {
				return eris.Wrapf(err, "layers: create %s", cfg.DERA.OutputDir)
			}
			sink = fileSink(cfg.DERA.OutputDir)
		} else {
			pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			sink = tableSink(pool)
		}

		total, err := syncLayers(ctx, newDERAClient(cfg.DERA), groups, sink)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "synced %d features from %d groups\n", total, len(groups))
		return nil
	},
}

// selectGroups resolves --group keys, defaulting to the whole catalogue.
func selectGroups(keys []string) ([]dera.Group, error) {
	if len(keys) == 0 {
		return dera.Groups(), nil
	}
	groups := make([]dera.Group, 0, len(keys))
	for _, k := range keys {
		g, err := dera.Lookup(k)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// groupSink persists the records of one group and returns how many it wrote.
type groupSink func(ctx context.Context, g dera.Group, records []dera.Record) (int64, error)

// groupFetcher is the part of the DERA client used by syncLayers.
type groupFetcher interface {
	FetchGroup(ctx context.Context, g dera.Group) ([]*geojson.Feature, error)
}

// syncLayers fetches every group concurrently and hands its records to sink.
func syncLayers(ctx context.Context, client groupFetcher, groups []dera.Group, sink groupSink) (int64, error) {
	var (
		mu    sync.Mutex
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for _, grp := range groups {
		g.Go(func() error {
			features, err := client.FetchGroup(gctx, grp)
			if err != nil {
				return eris.Wrapf(err, "layers: fetch %s", grp.Key)
			}
			records := dera.Records(grp, features)

			n, err := sink(gctx, grp, records)
			if err != nil {
				return eris.Wrapf(err, "layers: store %s", grp.Key)
			}
			zap.L().Info("layers: group synced",
				zap.String("group", grp.Key),
				zap.Int("features", len(features)),
				zap.Int64("stored", n),
			)

			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

// tableSink upserts records into ptel.dera_features.
func tableSink(pool db.Pool) groupSink {
	return func(ctx context.Context, _ dera.Group, records []dera.Record) (int64, error) {
		now := time.Now().UTC()
		rows := make([][]any, 0, len(records))
		for _, r := range records {
			row, err := r.Row(now)
			if err != nil {
				return 0, err
			}
			rows = append(rows, row)
		}
		return db.BulkUpsert(ctx, pool, db.UpsertConfig{
			Table:        "ptel.dera_features",
			Columns:      dera.RecordColumns,
			ConflictKeys: []string{"layer", "feature_id"},
		}, rows)
	}
}

// fileSink writes each group to <dir>/<key>.geojson.
func fileSink(dir string) groupSink {
	return func(_ context.Context, g dera.Group, records []dera.Record) (int64, error) {
		fc := geo.NewFeatureCollection(nil)
		for _, r := range records {
			fc.Features = append(fc.Features, geo.PointFeature(r.FeatureID, r.Point, map[string]any{
				"layer":        r.Layer,
				"category":     r.Category,
				"name":         r.Name,
				"municipality": r.Municipality,
				"muni_code":    r.MuniCode,
				"source":       r.Source,
			}))
		}
		fc.Metadata = map[string]any{
			"group":     g.Key,
			"name":      g.Name,
			"count":     len(records),
			"synced_at": time.Now().UTC().Format(time.RFC3339),
		}

		data, err := fc.Marshal()
		if err != nil {
			return 0, err
		}
		path := filepath.Join(dir, g.Key+".geojson")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return 0, eris.Wrapf(err, "layers: write %s", path)
		}
		return int64(len(records)), nil
	}
}

func init() {
	layersSyncCmd.Flags().StringSliceVar(&syncGroups, "group", nil, "group keys to sync (default: all)")
	layersSyncCmd.Flags().StringVar(&syncOutputDir, "output-dir", "", "write GeoJSON files here instead of PostGIS")
	layersCmd.AddCommand(layersListCmd, layersSyncCmd)
	rootCmd.AddCommand(layersCmd)
}
