package scoring

import (
	"fmt"
	"math"
	"slices"

	"github.com/kx0101/perfgate/internal/aggregate"
	"github.com/kx0101/perfgate/internal/models"
)

// EndpointScorer scores every filtered candidate endpoint.
type EndpointScorer struct {
	policy Policy
}

func (s *EndpointScorer) Mode() Mode {
	return ModeEndpoint
}

// Score fails when either document cannot be loaded; no partial result is
// produced.
func (s *EndpointScorer) Score(baseline, candidate aggregate.Source) (*Result, error) {
	baseDoc, err := baseline.Load()
	if err != nil {
		return nil, err
	}

	candDoc, err := candidate.Load()
	if err != nil {
		return nil, err
	}

	baseMetrics, err := baseDoc.EndpointMetrics(s.policy.Endpoint.KeyPrefix)
	if err != nil {
		return nil, err
	}

	candMetrics, err := candDoc.EndpointMetrics(s.policy.Endpoint.KeyPrefix)
	if err != nil {
		return nil, err
	}

	return s.ScoreMetrics(baseMetrics, candMetrics), nil
}

// ScoreMetrics scores already extracted endpoint metrics keyed by path.
func (s *EndpointScorer) ScoreMetrics(baseline, candidate map[string]models.EndpointMetric) *Result {
	paths := make([]string, 0, len(candidate))
	for path := range candidate {
		if s.policy.Endpoint.includes(path) {
			paths = append(paths, path)
		}
	}
	slices.Sort(paths)

	scores := make([]models.EndpointScore, 0, len(paths))
	run := &models.RunScore{}
	var latencySum float64

	for _, path := range paths {
		var base *models.EndpointMetric
		if b, ok := baseline[path]; ok {
			base = &b
		}

		cand := candidate[path]
		cand.Path = path

		score := s.scoreEndpoint(cand, base)
		scores = append(scores, score)

		run.TotalEndpoints++
		switch score.Status {
		case models.StatusPass:
			run.PassingCount++
		default:
			run.FailingCount++
		}

		latencySum += score.Candidate.Mean
	}

	run.SuccessRatePercent = 100
	if run.TotalEndpoints > 0 {
		run.SuccessRatePercent = float64(run.PassingCount) / float64(run.TotalEndpoints) * 100
		run.OverallAvgLatencyMs = latencySum / float64(run.TotalEndpoints)
	}

	return &Result{
		Mode:      ModeEndpoint,
		Score:     run.SuccessRatePercent,
		Policy:    s.policy,
		Endpoints: scores,
		Run:       run,
		Message: fmt.Sprintf("%d of %d endpoints passing (%.1f%%), %d failing or warning",
			run.PassingCount, run.TotalEndpoints, run.SuccessRatePercent, run.FailingCount),
	}
}

func (s *EndpointScorer) scoreEndpoint(cand models.EndpointMetric, base *models.EndpointMetric) models.EndpointScore {
	p := s.policy.Endpoint

	if base == nil {
		status := models.StatusPass
		switch {
		case cand.P95 > p.NewFailAbove:
			status = models.StatusFail
		case cand.P95 > p.NewWarnAbove:
			status = models.StatusWarn
		}

		return models.EndpointScore{
			Path:      cand.Path,
			PQIScore:  100,
			Status:    status,
			Candidate: cand,
		}
	}

	increase := cand.P95 - base.P95
	penalty := math.Max(0, increase) * s.policy.PenaltyFactor
	pqi := 100 - penalty

	status := models.StatusPass
	switch {
	case pqi < p.FailBelow:
		status = models.StatusFail
	case pqi < p.WarnBelow:
		status = models.StatusWarn
	}

	return models.EndpointScore{
		Path:      cand.Path,
		PQIScore:  pqi,
		Status:    status,
		Candidate: cand,
		Baseline:  base,
	}
}
