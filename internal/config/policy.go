package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kx0101/perfgate/internal/aggregate"
	"github.com/kx0101/perfgate/internal/scoring"
)

// LoadPolicy overlays the YAML policy file at path onto base. Keys absent
// from the file keep base's values.
func LoadPolicy(path string, base scoring.Policy) (scoring.Policy, error) {
	data, err := aggregate.ReadFileSafe(path)
	if err != nil {
		return scoring.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	policy := base
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return scoring.Policy{}, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return scoring.Policy{}, fmt.Errorf("invalid policy configuration: %w", err)
	}

	return policy, nil
}
