package scoring

import (
	"fmt"
	"strings"
)

type Mode string

const (
	// ModeEndpoint scores every application endpoint against its baseline.
	ModeEndpoint Mode = "endpoint"
	// ModeMetric scores one fixed endpoint percentile.
	ModeMetric Mode = "metric"
)

const (
	DefaultPenaltyFactor = 0.5
	DefaultThreshold     = 100.0
	DefaultKeyPrefix     = "plugins.metrics-by-endpoint.response_time."
	DefaultPathPrefix    = "/api/"
	DefaultMetricKey     = DefaultKeyPrefix + "/api/login"
	DefaultPercentile    = "p90"
)

// Policy is the full set of scoring parameters. Each scorer owns its own
// copy, so several policies can be used side by side.
type Policy struct {
	Mode          Mode           `yaml:"mode" json:"mode"`
	PenaltyFactor float64        `yaml:"penalty_factor" json:"penalty_factor"`
	Threshold     float64        `yaml:"threshold" json:"threshold"`
	Endpoint      EndpointPolicy `yaml:"endpoint" json:"endpoint"`
	Metric        MetricPolicy   `yaml:"metric" json:"metric"`
}

type EndpointPolicy struct {
	// KeyPrefix marks per-endpoint summaries in the aggregate document.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	// PathPrefix selects application endpoints when Filter is nil.
	PathPrefix string `yaml:"path_prefix" json:"path_prefix"`

	FailBelow float64 `yaml:"fail_below" json:"fail_below"`
	WarnBelow float64 `yaml:"warn_below" json:"warn_below"`

	// Absolute p95 limits (ms) for endpoints missing from the baseline.
	NewFailAbove float64 `yaml:"new_fail_above_ms" json:"new_fail_above_ms"`
	NewWarnAbove float64 `yaml:"new_warn_above_ms" json:"new_warn_above_ms"`

	Filter func(path string) bool `yaml:"-" json:"-"`
}

type MetricPolicy struct {
	Key        string `yaml:"key" json:"key"`
	Percentile string `yaml:"percentile" json:"percentile"`
}

func DefaultPolicy() Policy {
	return Policy{
		Mode:          ModeEndpoint,
		PenaltyFactor: DefaultPenaltyFactor,
		Threshold:     DefaultThreshold,
		Endpoint: EndpointPolicy{
			KeyPrefix:    DefaultKeyPrefix,
			PathPrefix:   DefaultPathPrefix,
			FailBelow:    90,
			WarnBelow:    95,
			NewFailAbove: 50,
			NewWarnAbove: 20,
		},
		Metric: MetricPolicy{
			Key:        DefaultMetricKey,
			Percentile: DefaultPercentile,
		},
	}
}

var validPercentiles = map[string]bool{
	"p50": true, "p75": true, "p90": true, "p95": true, "p99": true, "p999": true,
	"mean": true, "median": true, "min": true, "max": true,
}

func (p Policy) Validate() error {
	if p.PenaltyFactor < 0 {
		return fmt.Errorf("penalty_factor cannot be negative: %.2f", p.PenaltyFactor)
	}

	switch p.Mode {
	case ModeEndpoint:
		e := p.Endpoint
		if e.WarnBelow < e.FailBelow {
			return fmt.Errorf("endpoint.warn_below (%.2f) must not be lower than endpoint.fail_below (%.2f)", e.WarnBelow, e.FailBelow)
		}

		if e.NewFailAbove < e.NewWarnAbove {
			return fmt.Errorf("endpoint.new_fail_above_ms (%.2f) must not be lower than endpoint.new_warn_above_ms (%.2f)", e.NewFailAbove, e.NewWarnAbove)
		}

	case ModeMetric:
		if strings.TrimSpace(p.Metric.Key) == "" {
			return fmt.Errorf("metric.key is required in metric mode")
		}

		if !validPercentiles[p.Metric.Percentile] {
			return fmt.Errorf("invalid metric.percentile '%s', must be one of: p50, p75, p90, p95, p99, p999, mean, median, min, max", p.Metric.Percentile)
		}

	default:
		return fmt.Errorf("invalid mode '%s', must be one of: %s, %s", p.Mode, ModeEndpoint, ModeMetric)
	}

	return nil
}

func (e EndpointPolicy) includes(path string) bool {
	if e.Filter != nil {
		return e.Filter(path)
	}

	return strings.HasPrefix(path, e.PathPrefix)
}
