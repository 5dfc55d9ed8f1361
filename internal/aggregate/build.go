package aggregate

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/kx0101/perfgate/internal/models"
	"github.com/kx0101/perfgate/internal/stats"
)

// OverallKey is the summary key covering every captured request.
const OverallKey = "http.response_time"

type Report struct {
	Aggregate Aggregate `json:"aggregate"`
}

type Aggregate struct {
	Summaries map[string]Summary `json:"summaries"`
}

type Summary struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count float64 `json:"count"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

func (s Summary) metric(path string) models.EndpointMetric {
	return models.EndpointMetric{
		Path:  path,
		P50:   s.P50,
		P90:   s.P90,
		P95:   s.P95,
		P99:   s.P99,
		Mean:  s.Mean,
		Min:   s.Min,
		Max:   s.Max,
		Count: int(s.Count),
	}
}

func fromMetric(m models.EndpointMetric) Summary {
	return Summary{
		Min:   m.Min,
		Max:   m.Max,
		Count: float64(m.Count),
		Mean:  m.Mean,
		P50:   m.P50,
		P90:   m.P90,
		P95:   m.P95,
		P99:   m.P99,
	}
}

// Build turns captured calls carrying a latency into an aggregate report,
// one summary per URL path under keyPrefix plus the overall summary.
func Build(calls []models.RecordedCall, keyPrefix string) (*Report, error) {
	byPath := make(map[string][]float64)
	var all []float64

	for i, call := range calls {
		if call.LatencyMs == nil {
			continue
		}

		u, err := url.Parse(call.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: call %d: url %q: %v", ErrInputMalformed, i, call.URL, err)
		}

		path := u.Path
		if path == "" {
			path = "/"
		}

		byPath[path] = append(byPath[path], *call.LatencyMs)
		all = append(all, *call.LatencyMs)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("no captured call carries latency_ms")
	}

	summaries := make(map[string]Summary, len(byPath)+1)
	for path, latencies := range byPath {
		summaries[keyPrefix+path] = fromMetric(stats.Summarize(path, latencies))
	}
	summaries[OverallKey] = fromMetric(stats.Summarize("", all))

	return &Report{Aggregate: Aggregate{Summaries: summaries}}, nil
}

func WriteFile(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling aggregate report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing aggregate report: %w", err)
	}

	return nil
}
