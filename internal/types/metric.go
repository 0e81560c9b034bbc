package types

import "math"

// Metric names the distance a store returns so it can be turned into a
// similarity in [0, 1] where higher is more relevant.
type Metric string

const (
	// MetricCosine is cosine distance in [0, 2] (pgvector <=>): similarity = 1 - d.
	MetricCosine Metric = "cosine"
	// MetricInnerProduct is the negated inner product (pgvector <#>): similarity = -d.
	MetricInnerProduct Metric = "inner_product"
	// MetricL2 is euclidean distance: similarity = 1 / (1 + d).
	MetricL2 Metric = "l2"
)

// Similarity converts a store distance into a clamped similarity score.
func (m Metric) Similarity(distance float64) float64 {
	var s float64
	switch m {
	case MetricInnerProduct:
		s = -distance
	case MetricL2:
		s = 1 / (1 + math.Max(distance, 0))
	default:
		s = 1 - distance
	}
	return clamp01(s)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
