// Package artifact persists the score handed from the scoring step to the
// gate step.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kx0101/perfgate/internal/aggregate"
	"github.com/kx0101/perfgate/internal/scoring"
)

// Artifact carries exactly one of SuccessRate (endpoint mode) or PQIScore
// (metric mode). Threshold is the one the scoring policy judged against.
type Artifact struct {
	RunID       string       `json:"run_id"`
	Mode        scoring.Mode `json:"mode"`
	SuccessRate *float64     `json:"success_rate,omitempty"`
	PQIScore    *float64     `json:"pqi_score,omitempty"`
	Threshold   *float64     `json:"threshold,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Error       string       `json:"error,omitempty"`
}

func FromResult(res *scoring.Result, now time.Time) *Artifact {
	score := res.Score
	threshold := res.Policy.Threshold
	a := &Artifact{
		RunID:       uuid.NewString(),
		Mode:        res.Mode,
		Threshold:   &threshold,
		GeneratedAt: now.UTC(),
	}

	if res.Mode == scoring.ModeMetric {
		a.PQIScore = &score
	} else {
		a.SuccessRate = &score
	}

	if res.Fallback {
		a.Error = res.Message
	}

	return a
}

// Score returns the stored score, preferring success_rate when both are set.
func (a *Artifact) Score() (float64, bool) {
	switch {
	case a.SuccessRate != nil:
		return *a.SuccessRate, true
	case a.PQIScore != nil:
		return *a.PQIScore, true
	default:
		return 0, false
	}
}

// Write replaces path atomically: a reader sees either the previous file or
// the complete new one.
func Write(path string, a *Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding score artifact: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing score artifact: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing score artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("moving score artifact into place: %w", err)
	}

	return nil
}

func Read(path string) (*Artifact, error) {
	data, err := aggregate.ReadFileSafe(path)
	if err != nil {
		return nil, fmt.Errorf("%w: score file %s: %v", aggregate.ErrInputUnavailable, path, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: score file %s: %v", aggregate.ErrInputMalformed, path, err)
	}

	if _, ok := a.Score(); !ok {
		return nil, fmt.Errorf("%w: score file %s has neither success_rate nor pqi_score", aggregate.ErrSchemaMismatch, path)
	}

	return &a, nil
}
