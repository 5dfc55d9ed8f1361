// Package scoring turns a baseline and a candidate latency aggregate into a
// Performance Quality Index (PQI).
//
// Two scorers implement the same interface. The endpoint scorer rates every
// application endpoint and reports the share of passing endpoints; its
// per-endpoint PQI is not clamped, so a large regression shows up as a
// negative number. The metric scorer rates a single fixed percentile and
// floors the PQI at zero. It never fails: unreadable input scores 0 so that
// the gate always has something to decide on.
package scoring

import (
	"fmt"

	"github.com/kx0101/perfgate/internal/aggregate"
	"github.com/kx0101/perfgate/internal/models"
)

type Scorer interface {
	Mode() Mode
	Score(baseline, candidate aggregate.Source) (*Result, error)
}

// Result is everything a scoring pass produced. Score is the value handed
// to the gate: the success rate in endpoint mode, the PQI in metric mode.
type Result struct {
	Mode      Mode                     `json:"mode"`
	Score     float64                  `json:"score"`
	Policy    Policy                   `json:"policy"`
	Endpoints []models.EndpointScore   `json:"endpoints,omitempty"`
	Run       *models.RunScore         `json:"run,omitempty"`
	Metric    *models.MetricComparison `json:"metric,omitempty"`
	Message   string                   `json:"message"`
	Fallback  bool                     `json:"fallback,omitempty"`
	Err       error                    `json:"-"`
}

func New(p Policy) (Scorer, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring policy: %w", err)
	}

	switch p.Mode {
	case ModeMetric:
		return &MetricScorer{policy: p}, nil
	default:
		return &EndpointScorer{policy: p}, nil
	}
}
