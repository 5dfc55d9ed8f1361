package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kx0101/perfgate/internal/models"
	"github.com/kx0101/perfgate/internal/scoring"
)

// HTTPPublisher posts runs to a results service.
type HTTPPublisher struct {
	baseURL     string
	apiKey      string
	environment string
	httpClient  *http.Client
}

type UploadRequest struct {
	RunID       string                   `json:"run_id"`
	Environment string                   `json:"environment"`
	Mode        scoring.Mode             `json:"mode"`
	Score       float64                  `json:"score"`
	Threshold   float64                  `json:"threshold"`
	Allowed     bool                     `json:"allowed"`
	Message     string                   `json:"message"`
	Run         *models.RunScore         `json:"run,omitempty"`
	Endpoints   []models.EndpointScore   `json:"endpoints,omitempty"`
	Metric      *models.MetricComparison `json:"metric,omitempty"`
	Labels      map[string]string        `json:"labels,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
}

type UploadResponse struct {
	ID          string    `json:"id"`
	Environment string    `json:"environment"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewHTTPPublisher(baseURL, apiKey, environment string, timeout time.Duration) (*HTTPPublisher, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, fmt.Errorf("invalid scheme in baseURL")
	}

	ip := net.ParseIP(parsed.Hostname())
	if ip != nil && ip.IsPrivate() {
		return nil, fmt.Errorf("baseURL cannot be private IP")
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPPublisher{
		baseURL:     strings.TrimRight(parsed.String(), "/"),
		apiKey:      apiKey,
		environment: environment,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *HTTPPublisher) Publish(ctx context.Context, b *Bundle) (string, error) {
	if b == nil || b.Artifact == nil || b.Result == nil {
		return "", fmt.Errorf("nothing to publish: score artifact is missing")
	}

	resp, err := p.Upload(ctx, p.request(b))
	if err != nil {
		return "", err
	}

	return p.baseURL + "/runs/" + resp.ID, nil
}

func (p *HTTPPublisher) request(b *Bundle) *UploadRequest {
	return &UploadRequest{
		RunID:       b.Artifact.RunID,
		Environment: p.environment,
		Mode:        b.Result.Mode,
		Score:       b.Result.Score,
		Threshold:   b.Outcome.Threshold,
		Allowed:     b.Outcome.Allowed,
		Message:     b.Result.Message,
		Run:         b.Result.Run,
		Endpoints:   b.Result.Endpoints,
		Metric:      b.Result.Metric,
		Labels:      b.Labels,
		GeneratedAt: b.Artifact.GeneratedAt,
	}
}

func (p *HTTPPublisher) Upload(ctx context.Context, req *UploadRequest) (*UploadResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/runs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq) // #nosec G704: baseURL validated in constructor
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload failed: %s - %s", resp.Status, string(respBody))
	}

	var uploadResp UploadResponse
	if err := json.Unmarshal(respBody, &uploadResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &uploadResp, nil
}
