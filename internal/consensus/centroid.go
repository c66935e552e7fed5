// Package consensus combines parallel source answers into one robust point
// with agreement diagnostics.
package consensus

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/ptel-geocoder/internal/geo"
)

// ErrEmptyInput is returned when a centroid is requested for zero points.
var ErrEmptyInput = eris.New("consensus: no points to average")

// Params tunes the Huber centroid and outlier tests.
type Params struct {
	// InlierDistance is the Huber threshold k in meters: points within k keep
	// weight 1, points beyond it get weight k/d.
	InlierDistance float64 `yaml:"inlier_distance" mapstructure:"inlier_distance"`
	// MaxIterations caps the reweighting loop.
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`
	// Tolerance stops iteration once the centroid moves less than this (meters).
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
	// OutlierWeight flags sources whose final weight is below it.
	OutlierWeight float64 `yaml:"outlier_weight" mapstructure:"outlier_weight"`
	// OutlierDistance flags sources farther than it from the centroid (meters).
	OutlierDistance float64 `yaml:"outlier_distance" mapstructure:"outlier_distance"`
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	return Params{
		InlierDistance:  100,
		MaxIterations:   20,
		Tolerance:       0.01,
		OutlierWeight:   0.5,
		OutlierDistance: 500,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.InlierDistance <= 0 {
		p.InlierDistance = d.InlierDistance
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.Tolerance <= 0 {
		p.Tolerance = d.Tolerance
	}
	if p.OutlierWeight <= 0 {
		p.OutlierWeight = d.OutlierWeight
	}
	if p.OutlierDistance <= 0 {
		p.OutlierDistance = d.OutlierDistance
	}
	return p
}

// SimpleCentroid returns the arithmetic mean of points.
func SimpleCentroid(points []geo.Point) (geo.Point, error) {
	if len(points) == 0 {
		return geo.Point{}, ErrEmptyInput
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return geo.Point{X: sx / n, Y: sy / n}, nil
}

// Weighted is a robust centroid with the final per-point weights, in input order.
type Weighted struct {
	Centroid   geo.Point `json:"centroid"`
	Weights    []float64 `json:"weights"`
	Iterations int       `json:"iterations"`
}

// HuberCentroid computes an iteratively reweighted centroid seeded by the
// arithmetic mean. The loop stops after MaxIterations or once the centroid
// moves less than Tolerance.
func HuberCentroid(points []geo.Point, p Params) (Weighted, error) {
	if len(points) == 0 {
		return Weighted{}, ErrEmptyInput
	}
	if len(points) == 1 {
		return Weighted{Centroid: points[0], Weights: []float64{1}}, nil
	}
	p = p.withDefaults()

	centroid, _ := SimpleCentroid(points)
	weights := make([]float64, len(points))

	iter := 0
	for iter < p.MaxIterations {
		iter++

		var sw, sx, sy float64
		for i, pt := range points {
			weights[i] = huberWeight(geo.Distance(pt, centroid), p.InlierDistance)
			sw += weights[i]
			sx += weights[i] * pt.X
			sy += weights[i] * pt.Y
		}
		next := geo.Point{X: sx / sw, Y: sy / sw}

		moved := geo.Distance(next, centroid)
		centroid = next
		if moved < p.Tolerance {
			break
		}
	}

	// Report weights against the final centroid.
	for i, pt := range points {
		weights[i] = huberWeight(geo.Distance(pt, centroid), p.InlierDistance)
	}
	return Weighted{Centroid: centroid, Weights: weights, Iterations: iter}, nil
}

// huberWeight is 1 inside k and k/d beyond it. sw above is always positive
// because every weight is in (0,1].
func huberWeight(d, k float64) float64 {
	if d <= k {
		return 1
	}
	return k / d
}
