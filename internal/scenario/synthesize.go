package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kx0101/perfgate/internal/models"
)

const (
	DefaultDurationSeconds = 30
	DefaultArrivalRate     = 2
)

type Options struct {
	// Target overrides the base URL inferred from the first call.
	Target          string
	DurationSeconds int
	ArrivalRate     int
	Credentials     *Credentials
}

// Credentials replace the two login form fields in recorded POST bodies.
type Credentials struct {
	UsernameField string
	PasswordField string
	Username      string
	Password      string
}

// Synthesize converts recorded calls into a replayable scenario, one step
// per call in capture order.
func Synthesize(calls []models.RecordedCall, opts Options) (*models.Scenario, error) {
	if len(calls) == 0 {
		return nil, ErrEmptyInput
	}

	target := opts.Target
	if target == "" {
		var err error
		target, err = baseURL(calls[0].URL)
		if err != nil {
			return nil, &MalformedURLError{Index: 0, URL: calls[0].URL, Err: err}
		}
	}

	steps := make([]models.ScenarioStep, 0, len(calls))
	for i, call := range calls {
		step, err := buildStep(i, call, opts.Credentials)
		if err != nil {
			return nil, err
		}

		steps = append(steps, step)
	}

	duration := opts.DurationSeconds
	if duration <= 0 {
		duration = DefaultDurationSeconds
	}

	rate := opts.ArrivalRate
	if rate <= 0 {
		rate = DefaultArrivalRate
	}

	return &models.Scenario{
		TargetBaseURL:   target,
		Steps:           steps,
		ArrivalRate:     rate,
		DurationSeconds: duration,
	}, nil
}

func baseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("scheme and host are required")
	}

	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

func buildStep(index int, call models.RecordedCall, creds *Credentials) (models.ScenarioStep, error) {
	u, err := url.Parse(call.URL)
	if err != nil {
		return models.ScenarioStep{}, &MalformedURLError{Index: index, URL: call.URL, Err: err}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	if !strings.EqualFold(call.Method, http.MethodPost) {
		return models.ScenarioStep{Method: http.MethodGet, Path: path}, nil
	}

	body := map[string]any{}
	if call.PostData != nil {
		if err := json.Unmarshal([]byte(*call.PostData), &body); err != nil {
			return models.ScenarioStep{}, &InvalidJSONBodyError{Index: index, URL: call.URL, Err: err}
		}

		if body == nil {
			return models.ScenarioStep{}, &InvalidJSONBodyError{Index: index, URL: call.URL, Err: errors.New("body is null")}
		}
	}

	if creds != nil {
		creds.apply(body)
	}

	return models.ScenarioStep{Method: http.MethodPost, Path: path, JSONBody: body}, nil
}

func (c *Credentials) apply(body map[string]any) {
	if _, ok := body[c.UsernameField]; ok && c.UsernameField != "" {
		body[c.UsernameField] = c.Username
	}

	if _, ok := body[c.PasswordField]; ok && c.PasswordField != "" {
		body[c.PasswordField] = c.Password
	}
}
