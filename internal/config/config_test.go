package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kx0101/perfgate/internal/scoring"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PERFGATE_MODE", "PERFGATE_THRESHOLD", "PERFGATE_PENALTY_FACTOR", "PERFGATE_DURATION", "PERFGATE_SCORE_FILE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "api_calls_login_and_home.json", cfg.Files.Calls)
	assert.Equal(t, "artillery_script.yml", cfg.Files.Scenario)
	assert.Equal(t, "baseline_report.json", cfg.Files.Baseline)
	assert.Equal(t, "pr_report.json", cfg.Files.Candidate)
	assert.Equal(t, "score_output.json", cfg.Files.Score)
	assert.Equal(t, "pqi_performance_report.html", cfg.Files.HTMLReport)
	assert.Equal(t, 30, cfg.Scenario.DurationSeconds)
	assert.Equal(t, 2, cfg.Scenario.ArrivalRate)
	assert.Equal(t, scoring.ModeEndpoint, cfg.Scoring.Mode)
	assert.Equal(t, 0.5, cfg.Scoring.PenaltyFactor)
	assert.Equal(t, 100.0, cfg.Scoring.Threshold)
	assert.Equal(t, 24*time.Hour, cfg.S3.PresignedTTL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SITE_URL", "https://staging.example.com")
	t.Setenv("PERFGATE_MODE", "metric")
	t.Setenv("PERFGATE_THRESHOLD", "85")
	t.Setenv("PERFGATE_PENALTY_FACTOR", "1.5")
	t.Setenv("PERFGATE_ARRIVAL_RATE", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://staging.example.com", cfg.Site.URL)
	assert.Equal(t, 5, cfg.Scenario.ArrivalRate)

	p := cfg.Policy()
	assert.Equal(t, scoring.ModeMetric, p.Mode)
	assert.Equal(t, 85.0, p.Threshold)
	assert.Equal(t, 1.5, p.PenaltyFactor)
	assert.Equal(t, scoring.DefaultMetricKey, p.Metric.Key)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perfgate.env")
	require.NoError(t, os.WriteFile(path, []byte("PERFGATE_CALLS_FILE=calls.ndjson\nPERFGATE_DURATION=60\n"), 0o644))

	for _, key := range []string{"PERFGATE_DURATION", "PERFGATE_CALLS_FILE"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "calls.ndjson", cfg.Files.Calls)
	assert.Equal(t, 60, cfg.Scenario.DurationSeconds)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad threshold", "PERFGATE_THRESHOLD", "high", "PERFGATE_THRESHOLD"},
		{"bad duration", "PERFGATE_DURATION", "30s", "PERFGATE_DURATION"},
		{"bad ttl", "PERFGATE_S3_PRESIGNED_TTL", "forever", "PERFGATE_S3_PRESIGNED_TTL"},
		{"bucket required", "PERFGATE_S3_ENABLED", "true", "PERFGATE_S3_BUCKET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PERFGATE_S3_BUCKET", "")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "loading env files")
}

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPolicy(t *testing.T) {
	path := writePolicy(t, `
mode: metric
penalty_factor: 0.25
metric:
  percentile: p95
endpoint:
  fail_below: 80
`)

	p, err := LoadPolicy(path, scoring.DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, scoring.ModeMetric, p.Mode)
	assert.Equal(t, 0.25, p.PenaltyFactor)
	assert.Equal(t, 100.0, p.Threshold)
	assert.Equal(t, "p95", p.Metric.Percentile)
	assert.Equal(t, scoring.DefaultMetricKey, p.Metric.Key)
	assert.Equal(t, 80.0, p.Endpoint.FailBelow)
	assert.Equal(t, 95.0, p.Endpoint.WarnBelow)
}

func TestLoadPolicyErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "mode: [endpoint", "failed to parse policy YAML"},
		{"unknown mode", "mode: spike", "invalid mode"},
		{"negative penalty", "penalty_factor: -0.5", "penalty_factor cannot be negative"},
		{"inverted thresholds", "endpoint:\n  warn_below: 85\n", "warn_below"},
		{"unknown percentile", "mode: metric\nmetric:\n  percentile: p42\n", "invalid metric.percentile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, tt.content), scoring.DefaultPolicy())
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"), scoring.DefaultPolicy())
	assert.ErrorContains(t, err, "failed to read policy file")
}
