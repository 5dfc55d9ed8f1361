package scenario

import (
	"bytes"
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kx0101/perfgate/internal/models"
)

// Document is the load-engine script layout of a scenario.
type Document struct {
	Config    Config   `yaml:"config"`
	Scenarios []Script `yaml:"scenarios"`
}

type Config struct {
	Target string  `yaml:"target"`
	Phases []Phase `yaml:"phases"`
}

type Phase struct {
	Duration    int `yaml:"duration"`
	ArrivalRate int `yaml:"arrivalRate"`
}

type Script struct {
	Flow []Action `yaml:"flow"`
}

// Action holds exactly one of Get or Post.
type Action struct {
	Get  *GetRequest  `yaml:"get,omitempty"`
	Post *PostRequest `yaml:"post,omitempty"`
}

type GetRequest struct {
	URL string `yaml:"url"`
}

type PostRequest struct {
	URL  string         `yaml:"url"`
	JSON map[string]any `yaml:"json"`
}

func NewDocument(s *models.Scenario) *Document {
	flow := make([]Action, 0, len(s.Steps))
	for _, step := range s.Steps {
		if step.Method == http.MethodPost {
			body := step.JSONBody
			if body == nil {
				body = map[string]any{}
			}

			flow = append(flow, Action{Post: &PostRequest{URL: step.Path, JSON: body}})
			continue
		}

		flow = append(flow, Action{Get: &GetRequest{URL: step.Path}})
	}

	return &Document{
		Config: Config{
			Target: s.TargetBaseURL,
			Phases: []Phase{{Duration: s.DurationSeconds, ArrivalRate: s.ArrivalRate}},
		},
		Scenarios: []Script{{Flow: flow}},
	}
}

func Encode(s *models.Scenario) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(NewDocument(s)); err != nil {
		return nil, fmt.Errorf("failed to encode scenario: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode scenario: %w", err)
	}

	return buf.Bytes(), nil
}

func WriteFile(path string, s *models.Scenario) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario file: %w", err)
	}

	return nil
}

// Decode parses a scenario document and checks that every flow action names
// exactly one request.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if doc.Config.Target == "" {
		return nil, fmt.Errorf("config.target is required")
	}

	for i, script := range doc.Scenarios {
		for j, action := range script.Flow {
			if (action.Get == nil) == (action.Post == nil) {
				return nil, fmt.Errorf("scenarios[%d].flow[%d]: exactly one of get or post is required", i, j)
			}
		}
	}

	return &doc, nil
}
