package scoring

import (
	"fmt"
	"math"

	"github.com/kx0101/perfgate/internal/aggregate"
	"github.com/kx0101/perfgate/internal/models"
)

// MetricScorer scores one percentile of one endpoint. It always returns a
// result: any load or lookup failure becomes a score of 0 carrying the error.
type MetricScorer struct {
	policy Policy
}

func (s *MetricScorer) Mode() Mode {
	return ModeMetric
}

func (s *MetricScorer) Score(baseline, candidate aggregate.Source) (*Result, error) {
	baseValue, err := s.lookup(baseline)
	if err != nil {
		return s.fallback(err), nil
	}

	candValue, err := s.lookup(candidate)
	if err != nil {
		return s.fallback(err), nil
	}

	cmp := s.Compare(baseValue, candValue)
	score := math.Max(0, 100-cmp.Penalty)

	return &Result{
		Mode:    ModeMetric,
		Score:   score,
		Policy:  s.policy,
		Metric:  &cmp,
		Message: fmt.Sprintf("%s %s: %.2fms -> %.2fms (%s), PQI %.2f", cmp.Key, cmp.Percentile, cmp.Baseline, cmp.Candidate, cmp.Trend, score),
	}, nil
}

// Compare applies the penalty to a latency increase; decreases cost nothing.
func (s *MetricScorer) Compare(baseValue, candValue float64) models.MetricComparison {
	cmp := models.MetricComparison{
		Key:        s.policy.Metric.Key,
		Percentile: s.policy.Metric.Percentile,
		Baseline:   baseValue,
		Candidate:  candValue,
		Regression: candValue - baseValue,
		Trend:      models.TrendImprovement,
	}

	if cmp.Regression > 0 {
		cmp.Penalty = cmp.Regression * s.policy.PenaltyFactor
		cmp.Trend = models.TrendRegression
	}

	return cmp
}

func (s *MetricScorer) lookup(src aggregate.Source) (float64, error) {
	doc, err := src.Load()
	if err != nil {
		return 0, err
	}

	return doc.Lookup(s.policy.Metric.Key, s.policy.Metric.Percentile)
}

func (s *MetricScorer) fallback(err error) *Result {
	return &Result{
		Mode:     ModeMetric,
		Score:    0,
		Policy:   s.policy,
		Message:  err.Error(),
		Fallback: true,
		Err:      err,
	}
}
