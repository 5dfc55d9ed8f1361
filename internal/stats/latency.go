package stats

import (
	"slices"

	"github.com/kx0101/perfgate/internal/models"
)

// Summarize computes the percentile summary of a set of latencies in ms.
func Summarize(path string, latencies []float64) models.EndpointMetric {
	if len(latencies) == 0 {
		return models.EndpointMetric{Path: path}
	}

	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	slices.Sort(sorted)

	var sum float64
	for _, lat := range sorted {
		sum += lat
	}

	return models.EndpointMetric{
		Path:  path,
		P50:   Percentile(sorted, 50),
		P90:   Percentile(sorted, 90),
		P95:   Percentile(sorted, 95),
		P99:   Percentile(sorted, 99),
		Mean:  sum / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Count: len(sorted),
	}
}

// Percentile expects sorted input.
func Percentile(latencies []float64, p int) float64 {
	if len(latencies) == 0 {
		return 0
	}

	idx := (len(latencies) * p / 100)
	if idx >= len(latencies) {
		idx = len(latencies) - 1
	}

	return latencies[idx]
}
