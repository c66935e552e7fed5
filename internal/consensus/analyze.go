package consensus

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/ptel-geocoder/internal/geo"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// ErrNoSuccessfulResults means no source returned coordinates, so no
// analysis is possible.
var ErrNoSuccessfulResults = eris.New("consensus: no successful results")

// ClusterAnalysis summarizes agreement among successful sources.
type ClusterAnalysis struct {
	Centroid          geo.Point `json:"centroid"`
	RadiusMeters      float64   `json:"radius_meters"`
	ConcordantSources int       `json:"concordant_sources"`
	OutlierSources    []string  `json:"outlier_sources"`
	ConcordanceScore  float64   `json:"concordance_score"`
}

// IdentifyOutliers flags each point whose weight is below the weight
// threshold or whose distance to centroid exceeds the distance threshold.
// With nil weights only the distance test applies.
func IdentifyOutliers(points []geo.Point, centroid geo.Point, weights []float64, p Params) []bool {
	p = p.withDefaults()
	out := make([]bool, len(points))
	for i, pt := range points {
		if weights != nil && i < len(weights) && weights[i] < p.OutlierWeight {
			out[i] = true
			continue
		}
		if geo.Distance(pt, centroid) > p.OutlierDistance {
			out[i] = true
		}
	}
	return out
}

// ClusterRadius is the largest distance from centroid among non-outlier
// points, or 0 when at most one non-outlier remains.
func ClusterRadius(points []geo.Point, centroid geo.Point, outliers []bool) float64 {
	var radius float64
	kept := 0
	for i, pt := range points {
		if i < len(outliers) && outliers[i] {
			continue
		}
		kept++
		if d := geo.Distance(pt, centroid); d > radius {
			radius = d
		}
	}
	if kept <= 1 {
		return 0
	}
	return radius
}

// ConcordanceScore is the authority weight of concordant sources over the
// authority weight of all sources. When the total weight is zero it falls
// back to the concordant share of the source count.
func ConcordanceScore(authority []float64, outliers []bool) float64 {
	if len(authority) == 0 {
		return 0
	}

	var total, concordant float64
	var concordantCount int
	for i, w := range authority {
		total += w
		if i < len(outliers) && outliers[i] {
			continue
		}
		concordant += w
		concordantCount++
	}
	if concordantCount == len(authority) {
		return 1
	}
	if total <= 0 {
		return float64(concordantCount) / float64(len(authority))
	}
	return concordant / total
}

// Analyze computes the robust centroid of the successful results and
// partitions their sources into concordant and outlier. It returns
// ErrNoSuccessfulResults when nothing succeeded.
func Analyze(results []geocode.SourceResult, p Params) (*ClusterAnalysis, error) {
	var (
		points    []geo.Point
		authority []float64
		ids       []string
	)
	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		points = append(points, r.Result.Coordinates)
		authority = append(authority, r.AuthorityWeight)
		ids = append(ids, r.SourceID)
	}

	switch len(points) {
	case 0:
		return nil, ErrNoSuccessfulResults
	case 1:
		return &ClusterAnalysis{
			Centroid:          points[0],
			ConcordantSources: 1,
			OutlierSources:    []string{},
			ConcordanceScore:  1,
		}, nil
	}

	w, err := HuberCentroid(points, p)
	if err != nil {
		return nil, err
	}
	outliers := IdentifyOutliers(points, w.Centroid, w.Weights, p)

	analysis := &ClusterAnalysis{
		Centroid:         w.Centroid,
		RadiusMeters:     ClusterRadius(points, w.Centroid, outliers),
		OutlierSources:   []string{},
		ConcordanceScore: ConcordanceScore(authority, outliers),
	}
	for i, isOutlier := range outliers {
		if isOutlier {
			analysis.OutlierSources = append(analysis.OutlierSources, ids[i])
		} else {
			analysis.ConcordantSources++
		}
	}
	return analysis, nil
}
