package report

import (
	"fmt"
	"strings"

	"github.com/kx0101/perfgate/internal/models"
	"github.com/kx0101/perfgate/internal/scoring"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────\n"
)

// FormatText renders a scoring result for the terminal. Colors are emitted
// only when color is true.
func FormatText(res *scoring.Result, color bool) string {
	p := painter(color)
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(heavyRule)
	sb.WriteString(p(ColorBold, "            PERFORMANCE QUALITY INDEX") + "\n")
	sb.WriteString(heavyRule)
	sb.WriteString("\n")

	if res.Fallback {
		sb.WriteString(p(ColorRed, "FALLBACK - scoring failed, score set to 0") + "\n")
		sb.WriteString(fmt.Sprintf("Reason: %s\n", res.Message))
		sb.WriteString(heavyRule)
		return sb.String()
	}

	switch res.Mode {
	case scoring.ModeMetric:
		if m := res.Metric; m != nil {
			sb.WriteString(fmt.Sprintf("Metric:     %s %s\n", m.Key, m.Percentile))
			sb.WriteString(fmt.Sprintf("Baseline:   %.2fms\n", m.Baseline))
			sb.WriteString(fmt.Sprintf("Candidate:  %.2fms\n", m.Candidate))
			sb.WriteString(fmt.Sprintf("Regression: %.2fms (%s)\n", m.Regression, p(trendColor(m.Trend), string(m.Trend))))
			sb.WriteString(fmt.Sprintf("Penalty:    %.2f\n", m.Penalty))
		}
		sb.WriteString(fmt.Sprintf("PQI score:  %s\n", p(ColorBold, fmt.Sprintf("%.2f", res.Score))))

	default:
		for _, ep := range res.Endpoints {
			base := "new"
			if ep.Baseline != nil {
				base = fmt.Sprintf("%.2fms", ep.Baseline.P95)
			}

			sb.WriteString(fmt.Sprintf("%s  %-40s p95 %10s -> %8.2fms  PQI %7.2f\n",
				p(terminalColor(ep.Status), fmt.Sprintf("%-4s", ep.Status)), ep.Path, base, ep.Candidate.P95, ep.PQIScore))
		}

		if len(res.Endpoints) > 0 {
			sb.WriteString(lightRule)
		}

		if r := res.Run; r != nil {
			sb.WriteString(fmt.Sprintf("Endpoints:    %d (%d passing, %d failing or warning)\n", r.TotalEndpoints, r.PassingCount, r.FailingCount))
			sb.WriteString(fmt.Sprintf("Avg latency:  %.2fms\n", r.OverallAvgLatencyMs))
		}
		sb.WriteString(fmt.Sprintf("Success rate: %s\n", p(ColorBold, fmt.Sprintf("%.2f%%", res.Score))))
	}

	sb.WriteString(heavyRule)

	return sb.String()
}

// FormatGate renders the final verdict line.
func FormatGate(outcome models.GateOutcome, color bool) string {
	p := painter(color)

	if outcome.Allowed {
		return p(ColorGreen, "ALLOWED") + " - " + outcome.Message + "\n"
	}

	return p(ColorRed, "BLOCKED") + " - " + outcome.Message + "\n"
}

func painter(color bool) func(code, s string) string {
	return func(code, s string) string {
		if !color {
			return s
		}
		return code + s + ColorReset
	}
}

func terminalColor(s models.Status) string {
	switch s {
	case models.StatusPass:
		return ColorGreen
	case models.StatusWarn:
		return ColorYellow
	default:
		return ColorRed
	}
}

func trendColor(t models.Trend) string {
	if t == models.TrendImprovement {
		return ColorGreen
	}
	return ColorRed
}
