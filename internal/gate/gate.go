// Package gate turns a score into an allow/block verdict.
package gate

import (
	"fmt"

	"github.com/kx0101/perfgate/internal/models"
)

// Decide allows the change when score reaches threshold. It has no side
// effects; mapping the outcome to an exit code is left to the caller.
func Decide(score, threshold float64) models.GateOutcome {
	outcome := models.GateOutcome{
		Score:     score,
		Threshold: threshold,
		Allowed:   score >= threshold,
	}

	if outcome.Allowed {
		outcome.Message = fmt.Sprintf("score %.2f meets threshold %.2f, change allowed", score, threshold)
	} else {
		outcome.Message = fmt.Sprintf("score %.2f is below threshold %.2f, change blocked", score, threshold)
	}

	return outcome
}
