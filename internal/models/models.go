package models

import (
	"time"
)

// RecordedCall is one network call observed while driving the login flow.
type RecordedCall struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	PostData  *string   `json:"post_data,omitempty"`
	Status    int       `json:"status,omitempty"`
	LatencyMs *float64  `json:"latency_ms,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

type ScenarioStep struct {
	Method   string         `json:"method"`
	Path     string         `json:"path"`
	JSONBody map[string]any `json:"json_body,omitempty"`
}

type Scenario struct {
	TargetBaseURL   string         `json:"target_base_url"`
	Steps           []ScenarioStep `json:"steps"`
	ArrivalRate     int            `json:"arrival_rate"`
	DurationSeconds int            `json:"duration_seconds"`
}
