package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ptel-geocoder/internal/classify"
	"github.com/sells-group/ptel-geocoder/internal/consensus"
	"github.com/sells-group/ptel-geocoder/internal/fanout"
	"github.com/sells-group/ptel-geocoder/internal/geo"
	"github.com/sells-group/ptel-geocoder/internal/monitoring"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// consensusReport is the output of one parallel query plus its analysis.
type consensusReport struct {
	Query    geocode.Query              `json:"query"`
	Category geocode.Category           `json:"category"`
	Results  []geocode.SourceResult     `json:"results"`
	Analysis *consensus.ClusterAnalysis `json:"analysis"`
	Error    string                     `json:"error,omitempty"`
}

// runConsensus queries adapters in parallel and analyzes the answers. A
// query with no successful source still yields a report, with Error set.
func runConsensus(ctx context.Context, engine *fanout.Engine, adapters []geocode.Adapter, q geocode.Query, p consensus.Params, m *monitoring.Metrics) consensusReport {
	report := consensusReport{
		Query:    q,
		Category: classify.Resolve(q),
		Results:  engine.QueryAll(ctx, q, adapters),
	}

	analysis, err := consensus.Analyze(report.Results, p)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Analysis = analysis
	m.ObserveConcordance(analysis.ConcordanceScore)
	return report
}

// reportGeoJSON renders every successful source as a point feature and the
// robust centroid as a final feature carrying the cluster diagnostics.
func reportGeoJSON(r consensusReport) *geo.FeatureCollection {
	outliers := make(map[string]bool)
	if r.Analysis != nil {
		for _, id := range r.Analysis.OutlierSources {
			outliers[id] = true
		}
	}

	fc := geo.NewFeatureCollection(nil)
	for _, sr := range r.Results {
		if !sr.Succeeded() {
			continue
		}
		fc.Features = append(fc.Features, geo.PointFeature(sr.SourceID, sr.Result.Coordinates, map[string]any{
			"role":         "source",
			"source_name":  sr.SourceName,
			"matched_name": sr.Result.MatchedName,
			"match_score":  sr.Result.MatchScore,
			"outlier":      outliers[sr.SourceID],
		}))
	}
	if r.Analysis != nil {
		fc.Features = append(fc.Features, geo.PointFeature("centroid", r.Analysis.Centroid, map[string]any{
			"role":               "centroid",
			"radius_meters":      r.Analysis.RadiusMeters,
			"concordant_sources": r.Analysis.ConcordantSources,
			"concordance_score":  r.Analysis.ConcordanceScore,
		}))
	}
	fc.Metadata = map[string]any{
		"name":     r.Query.Name,
		"category": string(r.Category),
		"sources":  len(r.Results),
	}
	return fc
}

var (
	consensusFlags   queryFlags
	consensusIDs     []string
	consensusGeoJSON bool
)

var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "Query sources in parallel and report their robust consensus",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		q, err := consensusFlags.query()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "consensus")
		if err != nil {
			return err
		}
		defer env.Close()

		adapters := consensusSources(env, classify.Resolve(q), consensusIDs)
		if len(adapters) == 0 {
			return eris.New("consensus: no enabled sources selected")
		}

		report := runConsensus(ctx, env.Engine, adapters, q, env.Params, env.Metrics)
		if consensusGeoJSON {
			return writeJSON(cmd.OutOrStdout(), reportGeoJSON(report))
		}
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	consensusFlags.register(consensusCmd)
	consensusCmd.Flags().StringSliceVar(&consensusIDs, "sources", nil, "source IDs to query (default: category cascade plus general sources)")
	consensusCmd.Flags().BoolVar(&consensusGeoJSON, "geojson", false, "print a GeoJSON FeatureCollection instead of the report")
	rootCmd.AddCommand(consensusCmd)
}
