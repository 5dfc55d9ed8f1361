package models

type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

type Trend string

const (
	TrendImprovement Trend = "improvement"
	TrendRegression  Trend = "regression"
)

// EndpointMetric holds the percentile summary of one endpoint from a single run.
type EndpointMetric struct {
	Path  string  `json:"path"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

type EndpointScore struct {
	Path      string          `json:"path"`
	PQIScore  float64         `json:"pqi_score"`
	Status    Status          `json:"status"`
	Candidate EndpointMetric  `json:"candidate"`
	Baseline  *EndpointMetric `json:"baseline,omitempty"`
}

type RunScore struct {
	SuccessRatePercent  float64 `json:"success_rate_percent"`
	OverallAvgLatencyMs float64 `json:"overall_avg_latency_ms"`
	TotalEndpoints      int     `json:"total_endpoints"`
	PassingCount        int     `json:"passing_count"`
	FailingCount        int     `json:"failing_count"`
}

type MetricComparison struct {
	Key        string  `json:"key"`
	Percentile string  `json:"percentile"`
	Baseline   float64 `json:"baseline"`
	Candidate  float64 `json:"candidate"`
	Regression float64 `json:"regression"`
	Penalty    float64 `json:"penalty"`
	Trend      Trend   `json:"status"`
}

type GateOutcome struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Allowed   bool    `json:"allowed"`
	Message   string  `json:"message"`
}
