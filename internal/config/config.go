package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kx0101/perfgate/internal/scenario"
	"github.com/kx0101/perfgate/internal/scoring"
)

type Config struct {
	Site     SiteConfig
	Files    FilesConfig
	Scenario ScenarioConfig
	Scoring  ScoringConfig
	Log      LogConfig
	S3       S3Config
	Upload   UploadConfig
}

// SiteConfig describes the application the calls were recorded against.
type SiteConfig struct {
	URL      string
	Username string
	Password string
}

type FilesConfig struct {
	Calls      string
	Scenario   string
	Baseline   string
	Candidate  string
	Score      string
	HTMLReport string
	Policy     string
	Metrics    string
}

type ScenarioConfig struct {
	DurationSeconds int
	ArrivalRate     int
}

type ScoringConfig struct {
	Mode          scoring.Mode
	PenaltyFactor float64
	Threshold     float64
}

type LogConfig struct {
	Level  string
	Format string
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
	PresignedTTL    time.Duration
}

type UploadConfig struct {
	URL         string
	APIKey      string
	Environment string
	Timeout     time.Duration
}

// Load reads envFiles (or ./.env when none are given, ignoring its absence)
// and builds the configuration from the environment. Variables already set
// in the environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("loading env files: %w", err)
	}

	duration, err := getEnvInt("PERFGATE_DURATION", scenario.DefaultDurationSeconds)
	if err != nil {
		return nil, err
	}

	arrivalRate, err := getEnvInt("PERFGATE_ARRIVAL_RATE", scenario.DefaultArrivalRate)
	if err != nil {
		return nil, err
	}

	penalty, err := getEnvFloat("PERFGATE_PENALTY_FACTOR", scoring.DefaultPenaltyFactor)
	if err != nil {
		return nil, err
	}

	threshold, err := getEnvFloat("PERFGATE_THRESHOLD", scoring.DefaultThreshold)
	if err != nil {
		return nil, err
	}

	presignedTTL, err := time.ParseDuration(getEnv("PERFGATE_S3_PRESIGNED_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid PERFGATE_S3_PRESIGNED_TTL: %w", err)
	}

	uploadTimeout, err := time.ParseDuration(getEnv("PERFGATE_UPLOAD_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PERFGATE_UPLOAD_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Site: SiteConfig{
			URL:      getEnv("SITE_URL", ""),
			Username: getEnv("USERNAME", ""),
			Password: getEnv("PASSWORD", ""),
		},
		Files: FilesConfig{
			Calls:      getEnv("PERFGATE_CALLS_FILE", "api_calls_login_and_home.json"),
			Scenario:   getEnv("PERFGATE_SCENARIO_FILE", "artillery_script.yml"),
			Baseline:   getEnv("PERFGATE_BASELINE_REPORT", "baseline_report.json"),
			Candidate:  getEnv("PERFGATE_CANDIDATE_REPORT", "pr_report.json"),
			Score:      getEnv("PERFGATE_SCORE_FILE", "score_output.json"),
			HTMLReport: getEnv("PERFGATE_HTML_REPORT", "pqi_performance_report.html"),
			Policy:     getEnv("PERFGATE_POLICY_FILE", ""),
			Metrics:    getEnv("PERFGATE_METRICS_FILE", ""),
		},
		Scenario: ScenarioConfig{
			DurationSeconds: duration,
			ArrivalRate:     arrivalRate,
		},
		Scoring: ScoringConfig{
			Mode:          scoring.Mode(getEnv("PERFGATE_MODE", string(scoring.ModeEndpoint))),
			PenaltyFactor: penalty,
			Threshold:     threshold,
		},
		Log: LogConfig{
			Level:  getEnv("PERFGATE_LOG_LEVEL", "info"),
			Format: getEnv("PERFGATE_LOG_FORMAT", "text"),
		},
		S3: S3Config{
			Enabled:         getEnvBool("PERFGATE_S3_ENABLED", false),
			Bucket:          getEnv("PERFGATE_S3_BUCKET", ""),
			Region:          getEnv("PERFGATE_S3_REGION", "us-east-1"),
			Endpoint:        getEnv("PERFGATE_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("PERFGATE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("PERFGATE_S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("PERFGATE_S3_USE_PATH_STYLE", false),
			KeyPrefix:       getEnv("PERFGATE_S3_KEY_PREFIX", "perfgate"),
			PresignedTTL:    presignedTTL,
		},
		Upload: UploadConfig{
			URL:         getEnv("PERFGATE_UPLOAD_URL", ""),
			APIKey:      getEnv("PERFGATE_UPLOAD_API_KEY", ""),
			Environment: getEnv("PERFGATE_UPLOAD_ENV", "ci"),
			Timeout:     uploadTimeout,
		},
	}

	if cfg.S3.Enabled && cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("PERFGATE_S3_BUCKET is required when PERFGATE_S3_ENABLED=true")
	}

	return cfg, nil
}

// Policy returns the default scoring policy with the environment overrides
// applied.
func (c *Config) Policy() scoring.Policy {
	p := scoring.DefaultPolicy()
	p.Mode = c.Scoring.Mode
	p.PenaltyFactor = c.Scoring.PenaltyFactor
	p.Threshold = c.Scoring.Threshold
	return p
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}
