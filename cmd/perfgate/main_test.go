package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kx0101/perfgate/internal/artifact"
	"github.com/kx0101/perfgate/internal/cli"
	"github.com/kx0101/perfgate/internal/config"
	"github.com/kx0101/perfgate/internal/models"
	"github.com/kx0101/perfgate/internal/proxy"
	"github.com/kx0101/perfgate/internal/publish"
	"github.com/kx0101/perfgate/internal/report"
	"github.com/kx0101/perfgate/internal/scenario"
	"github.com/kx0101/perfgate/internal/scoring"
)

const prefix = scoring.DefaultKeyPrefix

// setup isolates package state: output buffers, a fixed clock and a fixed
// configuration.
func setup(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	var out, errOut bytes.Buffer
	origOut, origErr, origNow, origLoad := stdout, stderr, nowFn, loadConfigFn
	stdout, stderr = &out, &errOut
	nowFn = func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) }
	loadConfigFn = func(...string) (*config.Config, error) {
		return &config.Config{
			Site:     config.SiteConfig{URL: "https://app.example.com", Username: "ci-user", Password: "ci-pass"},
			Files:    config.FilesConfig{Calls: "calls.json", Scenario: "artillery_script.yml", Score: "score_output.json"},
			Scenario: config.ScenarioConfig{DurationSeconds: 30, ArrivalRate: 2},
			Scoring:  config.ScoringConfig{Mode: scoring.ModeEndpoint, PenaltyFactor: 0.5, Threshold: 100},
			Log:      config.LogConfig{Level: "info", Format: "text"},
		}, nil
	}

	t.Cleanup(func() {
		stdout, stderr, nowFn, loadConfigFn = origOut, origErr, origNow, origLoad
	})

	return &out, &errOut
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func aggregateDoc(p95 map[string]float64) string {
	var buf bytes.Buffer
	buf.WriteString(`{"aggregate": {"summaries": {`)
	first := true
	for path, v := range p95 {
		if !first {
			buf.WriteString(",")
		}
		first = false
		buf.WriteString(`"` + prefix + path + `": {"p90": ` + ftoa(v) + `, "p95": ` + ftoa(v) + `, "mean": ` + ftoa(v/2) + `}`)
	}
	buf.WriteString(`}}}`)
	return buf.String()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func TestRun_Gate(t *testing.T) {
	tests := []struct {
		name      string
		score     string
		threshold string
		want      cli.ExitCode
		output    string
	}{
		{"below threshold", `{"success_rate": 95}`, "100", cli.ExitFailure, "BLOCKED"},
		{"at threshold", `{"success_rate": 100}`, "100", cli.ExitOK, "ALLOWED"},
		{"fallback zero", `{"pqi_score": 0, "error": "candidate report: missing key \"aggregate\""}`, "100", cli.ExitFailure, "BLOCKED"},
		{"lower threshold", `{"pqi_score": 85}`, "80", cli.ExitOK, "ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := setup(t)
			path := writeFile(t, t.TempDir(), "score_output.json", tt.score)

			code := run([]string{"gate", "--score", path, "--threshold", tt.threshold, "--no-color"})

			assert.Equal(t, tt.want, code)
			assert.Contains(t, out.String(), tt.output)
		})
	}
}

func TestRun_GateMissingScore(t *testing.T) {
	_, errOut := setup(t)

	code := run([]string{"gate", "--score", filepath.Join(t.TempDir(), "score_output.json")})

	assert.Equal(t, cli.ExitFailure, code)
	assert.Contains(t, errOut.String(), "failed to read score")
}

func TestRun_ScoreEndpointThenGate(t *testing.T) {
	out, _ := setup(t)
	dir := t.TempDir()

	baseline := writeFile(t, dir, "baseline_report.json", aggregateDoc(map[string]float64{"/api/login": 10, "/api/home": 10}))
	candidate := writeFile(t, dir, "pr_report.json", aggregateDoc(map[string]float64{"/api/login": 12, "/api/home": 60}))
	scorePath := filepath.Join(dir, "score_output.json")
	htmlPath := filepath.Join(dir, "report.html")
	metricsPath := filepath.Join(dir, "perfgate.prom")

	code := run([]string{"score", "--baseline", baseline, "--candidate", candidate, "--output", scorePath,
		"--html-report", htmlPath, "--metrics-file", metricsPath, "--no-color"})
	require.Equal(t, cli.ExitOK, code)

	assert.Contains(t, out.String(), "Success rate: 50.00%")
	assert.FileExists(t, htmlPath)
	assert.FileExists(t, metricsPath)

	art, err := artifact.Read(scorePath)
	require.NoError(t, err)
	require.NotNil(t, art.SuccessRate)
	assert.Equal(t, 50.0, *art.SuccessRate)

	assert.Equal(t, cli.ExitFailure, run([]string{"gate", "--score", scorePath}))
	assert.Equal(t, cli.ExitOK, run([]string{"gate", "--score", scorePath, "--threshold", "50"}))
}

func TestRun_ScoreEndpointMissingInput(t *testing.T) {
	_, errOut := setup(t)
	dir := t.TempDir()
	scorePath := filepath.Join(dir, "score_output.json")

	code := run([]string{"score", "--baseline", filepath.Join(dir, "nope.json"), "--candidate", filepath.Join(dir, "nope.json"), "--output", scorePath})

	assert.Equal(t, cli.ExitFailure, code)
	assert.Contains(t, errOut.String(), "scoring failed")
	assert.NoFileExists(t, scorePath)
}

func TestRun_ScoreMetricFallback(t *testing.T) {
	out, _ := setup(t)
	dir := t.TempDir()

	baseline := writeFile(t, dir, "baseline_report.json", aggregateDoc(map[string]float64{"/api/login": 10}))
	candidate := writeFile(t, dir, "pr_report.json", `{"results": []}`)
	scorePath := filepath.Join(dir, "score_output.json")

	code := run([]string{"score", "--mode", "metric", "--baseline", baseline, "--candidate", candidate, "--output", scorePath, "--json"})
	require.Equal(t, cli.ExitOK, code)
	assert.Contains(t, out.String(), `"fallback": true`)

	art, err := artifact.Read(scorePath)
	require.NoError(t, err)
	require.NotNil(t, art.PQIScore)
	assert.Equal(t, 0.0, *art.PQIScore)
	assert.Contains(t, art.Error, `missing key "aggregate"`)
}

func TestRun_ScorePolicyFile(t *testing.T) {
	out, _ := setup(t)
	dir := t.TempDir()

	baseline := writeFile(t, dir, "baseline_report.json", aggregateDoc(map[string]float64{"/api/login": 100}))
	candidate := writeFile(t, dir, "pr_report.json", aggregateDoc(map[string]float64{"/api/login": 120}))
	policy := writeFile(t, dir, "policy.yaml", "mode: metric\npenalty_factor: 1\n")

	code := run([]string{"score", "--policy", policy, "--baseline", baseline, "--candidate", candidate,
		"--output", filepath.Join(dir, "score_output.json"), "--no-color"})
	require.Equal(t, cli.ExitOK, code)
	assert.Contains(t, out.String(), "PQI score:  80.00")

	out.Reset()
	code = run([]string{"score", "--policy", policy, "--penalty-factor", "0.5", "--baseline", baseline, "--candidate", candidate,
		"--output", filepath.Join(dir, "score_output.json"), "--no-color"})
	require.Equal(t, cli.ExitOK, code)
	assert.Contains(t, out.String(), "PQI score:  90.00", "explicit flags override the policy file")
}

func TestRun_GateUsesPolicyThreshold(t *testing.T) {
	out, _ := setup(t)
	dir := t.TempDir()

	baseline := writeFile(t, dir, "baseline_report.json", aggregateDoc(map[string]float64{"/api/login": 10, "/api/home": 10}))
	candidate := writeFile(t, dir, "pr_report.json", aggregateDoc(map[string]float64{"/api/login": 12, "/api/home": 60}))
	policy := writeFile(t, dir, "policy.yaml", "threshold: 50\n")
	scorePath := filepath.Join(dir, "score_output.json")

	code := run([]string{"score", "--policy", policy, "--baseline", baseline, "--candidate", candidate, "--output", scorePath, "--no-color"})
	require.Equal(t, cli.ExitOK, code)

	art, err := artifact.Read(scorePath)
	require.NoError(t, err)
	require.NotNil(t, art.Threshold)
	assert.Equal(t, 50.0, *art.Threshold)

	out.Reset()
	assert.Equal(t, cli.ExitOK, run([]string{"gate", "--score", scorePath, "--no-color"}))
	assert.Contains(t, out.String(), "ALLOWED - score 50.00 meets threshold 50.00")

	out.Reset()
	assert.Equal(t, cli.ExitFailure, run([]string{"gate", "--score", scorePath, "--threshold", "100", "--no-color"}),
		"an explicit --threshold overrides the stored one")
	assert.Contains(t, out.String(), "BLOCKED")
}

func TestRun_ScoreEndpointCandidateWithoutAggregate(t *testing.T) {
	_, errOut := setup(t)
	dir := t.TempDir()

	baseline := writeFile(t, dir, "baseline_report.json", aggregateDoc(map[string]float64{"/api/login": 10}))
	candidate := writeFile(t, dir, "pr_report.json", `{"errors": {"ETIMEDOUT": 600}}`)
	scorePath := filepath.Join(dir, "score_output.json")

	code := run([]string{"score", "--baseline", baseline, "--candidate", candidate, "--output", scorePath})

	assert.Equal(t, cli.ExitFailure, code)
	assert.Contains(t, errOut.String(), `candidate report: missing key "aggregate"`)
	assert.NoFileExists(t, scorePath)
	assert.Equal(t, cli.ExitFailure, run([]string{"gate", "--score", scorePath}))
}

func TestRun_ScoreOutputFailureLeavesNoArtifact(t *testing.T) {
	t.Run("metrics file", func(t *testing.T) {
		setup(t)
		dir := t.TempDir()
		baseline := writeFile(t, dir, "baseline_report.json", aggregateDoc(map[string]float64{"/api/login": 10}))
		scorePath := filepath.Join(dir, "score_output.json")

		code := run([]string{"score", "--baseline", baseline, "--candidate", baseline, "--output", scorePath,
			"--metrics-file", filepath.Join(dir, "missing", "perfgate.prom")})

		assert.Equal(t, cli.ExitFailure, code)
		assert.NoFileExists(t, scorePath)
	})

	t.Run("html report", func(t *testing.T) {
		_, errOut := setup(t)
		dir := t.TempDir()
		baseline := writeFile(t, dir, "baseline_report.json", aggregateDoc(map[string]float64{"/api/login": 10}))
		scorePath := filepath.Join(dir, "score_output.json")

		orig := generateHTMLFn
		generateHTMLFn = func(report.ReportData, string) ([]byte, error) {
			return nil, errors.New("disk full")
		}
		t.Cleanup(func() { generateHTMLFn = orig })

		code := run([]string{"score", "--baseline", baseline, "--candidate", baseline, "--output", scorePath,
			"--html-report", filepath.Join(dir, "report.html")})

		assert.Equal(t, cli.ExitFailure, code)
		assert.Contains(t, errOut.String(), "failed to generate HTML report")
		assert.NoFileExists(t, scorePath)
	})
}

type fakePublisher struct {
	bundles []*publish.Bundle
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, b *publish.Bundle) (string, error) {
	f.bundles = append(f.bundles, b)
	return "s3://bucket/run", f.err
}

func TestRun_ScorePublish(t *testing.T) {
	_, errOut := setup(t)
	dir := t.TempDir()

	fake := &fakePublisher{}
	var targets []string
	orig := newPublisherFn
	newPublisherFn = func(_ context.Context, target string, _ *config.Config) (publish.Publisher, error) {
		targets = append(targets, target)
		if target == cli.PublishHTTP {
			return nil, errors.New("PERFGATE_UPLOAD_API_KEY not set")
		}
		return fake, nil
	}
	t.Cleanup(func() { newPublisherFn = orig })

	baseline := writeFile(t, dir, "baseline_report.json", aggregateDoc(map[string]float64{"/api/login": 10}))
	code := run([]string{"score", "--baseline", baseline, "--candidate", baseline, "--output", filepath.Join(dir, "score_output.json"),
		"--html-report", filepath.Join(dir, "report.html"), "--publish", "s3,http", "--label", "branch=main"})

	require.Equal(t, cli.ExitOK, code, "publish failures never fail the run")
	assert.Equal(t, []string{"s3", "http"}, targets)
	require.Len(t, fake.bundles, 1)
	assert.NotEmpty(t, fake.bundles[0].HTMLReport)
	assert.Equal(t, "main", fake.bundles[0].Labels["branch"])
	assert.Contains(t, errOut.String(), "publish failed")
}

func TestRun_Synthesize(t *testing.T) {
	_, _ = setup(t)
	dir := t.TempDir()

	calls := writeFile(t, dir, "calls.json", `[
  {"url": "https://app.example.com/api/login", "method": "POST", "post_data": "{\"username\":\"rec\",\"password\":\"rec\"}"},
  {"url": "https://cdn.example.com/app.js", "method": "GET"},
  {"url": "https://app.example.com/api/home", "method": "GET"}
]`)
	output := filepath.Join(dir, "artillery_script.yml")

	var got *models.Scenario
	orig := writeScenarioFn
	writeScenarioFn = func(path string, s *models.Scenario) error {
		got = s
		return orig(path, s)
	}
	t.Cleanup(func() { writeScenarioFn = orig })

	code := run([]string{"synthesize", "--input", calls, "--output", output, "--same-host", "--credentials", "--arrival-rate", "5"})
	require.Equal(t, cli.ExitOK, code)

	require.NotNil(t, got)
	assert.Equal(t, "https://app.example.com", got.TargetBaseURL)
	assert.Equal(t, 5, got.ArrivalRate)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "ci-user", got.Steps[0].JSONBody["username"])
	assert.Equal(t, "ci-pass", got.Steps[0].JSONBody["password"])

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	doc, err := scenario.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", doc.Config.Target)
}

func TestRun_SynthesizeDryRun(t *testing.T) {
	out, _ := setup(t)
	dir := t.TempDir()
	calls := writeFile(t, dir, "calls.json", `[{"url": "https://app.example.com/api/home", "method": "GET"}]`)

	orig := synthesizeFn
	synthesizeFn = func([]models.RecordedCall, scenario.Options) (*models.Scenario, error) {
		t.Fatal("synthesize must not run in dry-run mode")
		return nil, nil
	}
	t.Cleanup(func() { synthesizeFn = orig })

	code := run([]string{"synthesize", "--input", calls, "--dry-run"})

	assert.Equal(t, cli.ExitOK, code)
	assert.Contains(t, out.String(), "[DRY RUN] - 1: GET https://app.example.com/api/home")
}

func TestRun_SynthesizeEmpty(t *testing.T) {
	_, errOut := setup(t)
	calls := writeFile(t, t.TempDir(), "calls.json", `[]`)

	code := run([]string{"synthesize", "--input", calls, "--output", filepath.Join(t.TempDir(), "s.yml")})

	assert.Equal(t, cli.ExitFailure, code)
	assert.Contains(t, errOut.String(), "failed to synthesize scenario")
}

func TestRun_SynthesizeNotJSON(t *testing.T) {
	_, errOut := setup(t)
	calls := writeFile(t, t.TempDir(), "calls.json", "this is not json\n{also broken\n")

	code := run([]string{"synthesize", "--input", calls, "--output", filepath.Join(t.TempDir(), "s.yml")})

	assert.Equal(t, cli.ExitFailure, code)
	assert.Contains(t, errOut.String(), "failed to read recorded calls")
	assert.Contains(t, errOut.String(), "input malformed")
	assert.NotContains(t, errOut.String(), "no recorded calls")
}

func TestRun_Aggregate(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	calls := writeFile(t, dir, "captured.json", `{"url":"https://app.example.com/api/login","method":"POST","latency_ms":12}
{"url":"https://app.example.com/api/login","method":"POST","latency_ms":18}
`)
	output := filepath.Join(dir, "baseline_report.json")

	code := run([]string{"aggregate", "--input", calls, "--output", output})
	require.Equal(t, cli.ExitOK, code)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), prefix+"/api/login")
	assert.Contains(t, string(data), "http.response_time")
}

func TestRun_Record(t *testing.T) {
	setup(t)

	var got *proxy.CaptureConfig
	orig := startReverseProxyFn
	startReverseProxyFn = func(_ context.Context, cfg *proxy.CaptureConfig) error {
		got = cfg
		return nil
	}
	t.Cleanup(func() { startReverseProxyFn = orig })

	code := run([]string{"record", "--listen", "localhost:9090", "--output", "captured.json", "--stream"})
	require.Equal(t, cli.ExitOK, code)

	require.NotNil(t, got)
	assert.Equal(t, "localhost:9090", got.ListenAddr)
	assert.Equal(t, "https://app.example.com", got.Upstream)
	assert.Equal(t, "captured.json", got.OutputFile)
	assert.True(t, got.Stream)
	assert.IsType(t, &slog.Logger{}, got.Logger)
}

func TestRun_InvalidFlags(t *testing.T) {
	setup(t)

	assert.Equal(t, cli.ExitFailure, run([]string{"score", "--publish", "ftp"}))
	assert.Equal(t, cli.ExitFailure, run([]string{"gate", "--threshold", "high"}))
	assert.Equal(t, cli.ExitFailure, run([]string{"--log-level", "loud", "gate"}))
	assert.Equal(t, cli.ExitFailure, run([]string{"unknown"}))
}

func TestRun_ConfigError(t *testing.T) {
	_, errOut := setup(t)
	loadConfigFn = func(...string) (*config.Config, error) {
		return nil, errors.New("invalid PERFGATE_THRESHOLD")
	}

	assert.Equal(t, cli.ExitFailure, run([]string{"gate"}))
	assert.Contains(t, errOut.String(), "Failed to load configuration")
}

func TestHandleError(t *testing.T) {
	_, errOut := setup(t)

	code := handleError("some error", errors.New("oops"))

	assert.Equal(t, cli.ExitFailure, code)
	assert.Equal(t, "some error: oops\n", errOut.String())
}
