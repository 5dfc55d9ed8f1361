package cli

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kx0101/perfgate/internal/config"
	"github.com/kx0101/perfgate/internal/scoring"
)

type ExitCode int

const (
	ExitOK ExitCode = iota
	ExitFailure
)

const (
	PublishS3   = "s3"
	PublishHTTP = "http"
)

type GlobalOptions struct {
	LogLevel  string
	LogFormat string
	NoColor   bool
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&o.LogLevel, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&o.LogFormat, "log-format", cfg.Log.Format, "Log format (text or json)")
	fs.BoolVar(&o.NoColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable colored terminal output")
}

type RecordOptions struct {
	ListenAddr string
	Upstream   string
	Output     string
	Stream     bool
	TLSCert    string
	TLSKey     string
}

func (o *RecordOptions) Bind(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&o.ListenAddr, "listen", ":8080", "Reverse proxy listen address")
	fs.StringVar(&o.Upstream, "upstream", cfg.Site.URL, "Application to proxy to (default from SITE_URL)")
	fs.StringVar(&o.Output, "output", cfg.Files.Calls, "Recorded calls output file (NDJSON, appended)")
	fs.BoolVar(&o.Stream, "stream", false, "Also stream recorded calls to stdout")
	fs.StringVar(&o.TLSCert, "tls-cert", "", "TLS certificate for the listener")
	fs.StringVar(&o.TLSKey, "tls-key", "", "TLS key for the listener")
}

func (o *RecordOptions) Validate() error {
	if strings.TrimSpace(o.Upstream) == "" {
		return fmt.Errorf("--upstream is required (or set SITE_URL)")
	}

	if (o.TLSCert == "") != (o.TLSKey == "") {
		return fmt.Errorf("--tls-cert and --tls-key must be used together")
	}

	return nil
}

type SynthesizeOptions struct {
	Input         string
	Output        string
	Target        string
	Duration      int
	ArrivalRate   int
	FilterMethod  string
	FilterPath    string
	SameHost      bool
	Limit         int
	Credentials   bool
	UsernameField string
	PasswordField string
	DryRun        bool
}

func (o *SynthesizeOptions) Bind(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&o.Input, "input", cfg.Files.Calls, "Recorded calls (JSON array or NDJSON)")
	fs.StringVar(&o.Output, "output", cfg.Files.Scenario, "Scenario YAML output path")
	fs.StringVar(&o.Target, "target", "", "Target base URL (default: origin of the first call)")
	fs.IntVar(&o.Duration, "duration", cfg.Scenario.DurationSeconds, "Load phase duration in seconds")
	fs.IntVar(&o.ArrivalRate, "arrival-rate", cfg.Scenario.ArrivalRate, "Virtual users started per second")
	fs.StringVar(&o.FilterMethod, "filter-method", "", "Keep only calls with this method (e.g., GET, POST)")
	fs.StringVar(&o.FilterPath, "filter-path", "", "Keep only calls whose path contains this value")
	fs.BoolVar(&o.SameHost, "same-host", false, "Keep only calls to the host of the first call")
	fs.IntVar(&o.Limit, "limit", 0, "Maximum number of calls to keep (0 = all)")
	fs.BoolVar(&o.Credentials, "credentials", false, "Replace login fields in POST bodies with USERNAME and PASSWORD")
	fs.StringVar(&o.UsernameField, "username-field", "username", "JSON field holding the username")
	fs.StringVar(&o.PasswordField, "password-field", "password", "JSON field holding the password")
	fs.BoolVar(&o.DryRun, "dry-run", false, "List the calls that would become steps and exit")
}

func (o *SynthesizeOptions) Validate() error {
	if o.Input == "" {
		return fmt.Errorf("--input is required")
	}

	if o.Duration < 0 || o.ArrivalRate < 0 || o.Limit < 0 {
		return fmt.Errorf("--duration, --arrival-rate and --limit cannot be negative")
	}

	if o.Target != "" {
		u, err := url.Parse(o.Target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("--target must be an absolute URL, got %q", o.Target)
		}
	}

	return nil
}

type AggregateOptions struct {
	Input     string
	Output    string
	KeyPrefix string
}

func (o *AggregateOptions) Bind(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&o.Input, "input", cfg.Files.Calls, "Recorded calls carrying latency_ms")
	fs.StringVar(&o.Output, "output", cfg.Files.Candidate, "Aggregate report output path")
	fs.StringVar(&o.KeyPrefix, "key-prefix", scoring.DefaultKeyPrefix, "Summary key prefix for per-endpoint entries")
}

type ScoreOptions struct {
	Baseline      string
	Candidate     string
	Mode          string
	Policy        string
	PenaltyFactor float64
	Threshold     float64
	Output        string
	HTMLReport    string
	MetricsFile   string
	Publish       []string
	Labels        map[string]string
	JSON          bool
}

func (o *ScoreOptions) Bind(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&o.Baseline, "baseline", cfg.Files.Baseline, "Baseline aggregate report")
	fs.StringVar(&o.Candidate, "candidate", cfg.Files.Candidate, "Candidate aggregate report")
	fs.StringVar(&o.Mode, "mode", string(cfg.Scoring.Mode), "Scoring mode (endpoint or metric)")
	fs.StringVar(&o.Policy, "policy", cfg.Files.Policy, "YAML scoring policy file")
	fs.Float64Var(&o.PenaltyFactor, "penalty-factor", cfg.Scoring.PenaltyFactor, "PQI points lost per millisecond of regression")
	fs.Float64Var(&o.Threshold, "threshold", cfg.Scoring.Threshold, "Gate threshold shown in reports and metrics")
	fs.StringVar(&o.Output, "output", cfg.Files.Score, "Score artifact output path")
	fs.StringVar(&o.HTMLReport, "html-report", cfg.Files.HTMLReport, "HTML report output path (empty disables)")
	fs.StringVar(&o.MetricsFile, "metrics-file", cfg.Files.Metrics, "Write Prometheus textfile metrics to this path")
	fs.StringSliceVar(&o.Publish, "publish", defaultPublish(cfg), "Publish the run (s3, http; can be repeated; s3 by default when PERFGATE_S3_ENABLED=true)")
	fs.StringToStringVar(&o.Labels, "label", nil, "Label attached to published runs in format key=value (can be repeated)")
	fs.BoolVar(&o.JSON, "json", false, "Print the full result as JSON")
}

func defaultPublish(cfg *config.Config) []string {
	if cfg.S3.Enabled {
		return []string{PublishS3}
	}
	return nil
}

func (o *ScoreOptions) Validate() error {
	for _, target := range o.Publish {
		if target != PublishS3 && target != PublishHTTP {
			return fmt.Errorf("invalid --publish target '%s', must be one of: %s, %s", target, PublishS3, PublishHTTP)
		}
	}

	if o.Output == "" {
		return fmt.Errorf("--output is required")
	}

	return nil
}

type GateOptions struct {
	Score     string
	Threshold float64
}

func (o *GateOptions) Bind(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&o.Score, "score", cfg.Files.Score, "Score artifact written by the score command")
	fs.Float64Var(&o.Threshold, "threshold", cfg.Scoring.Threshold, "Minimum score required to allow the change (default: the threshold stored by score)")
}
