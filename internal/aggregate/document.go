package aggregate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kx0101/perfgate/internal/models"
)

const (
	keyAggregate = "aggregate"
	keySummaries = "summaries"
)

// Document is a percentile-aggregate report as emitted by the load engine.
// The tree is kept raw so lookups can tell which level is missing.
type Document struct {
	name string
	root map[string]json.RawMessage
}

// Source yields one aggregate document.
type Source interface {
	Name() string
	Load() (*Document, error)
}

type fileSource struct {
	name string
	path string
}

// File returns a Source reading the document at path.
func File(name, path string) Source {
	return fileSource{name: name, path: path}
}

func (s fileSource) Name() string { return s.name }

func (s fileSource) Load() (*Document, error) {
	data, err := ReadFileSafe(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s report %q: %v", ErrInputUnavailable, s.name, s.path, err)
	}

	return Parse(s.name, data)
}

type bytesSource struct {
	name string
	data []byte
}

// Bytes returns a Source over an in-memory document.
func Bytes(name string, data []byte) Source {
	return bytesSource{name: name, data: data}
}

func (s bytesSource) Name() string { return s.name }

func (s bytesSource) Load() (*Document, error) {
	return Parse(s.name, s.data)
}

func Parse(name string, data []byte) (*Document, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %s report: %v", ErrInputMalformed, name, err)
	}

	if root == nil {
		return nil, fmt.Errorf("%w: %s report: top level is null", ErrInputMalformed, name)
	}

	return &Document{name: name, root: root}, nil
}

func (d *Document) Name() string {
	return d.name
}

func (d *Document) summaries() (map[string]json.RawMessage, error) {
	raw, ok := d.root[keyAggregate]
	if !ok || isNull(raw) {
		return nil, missing(d.name, keyAggregate)
	}

	var agg map[string]json.RawMessage
	if err := json.Unmarshal(raw, &agg); err != nil {
		return nil, fmt.Errorf("%w: %s report: %q is not an object: %v", ErrInputMalformed, d.name, keyAggregate, err)
	}

	raw, ok = agg[keySummaries]
	if !ok || isNull(raw) {
		return nil, missing(d.name, keyAggregate, keySummaries)
	}

	var sums map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sums); err != nil {
		return nil, fmt.Errorf("%w: %s report: %q is not an object: %v", ErrInputMalformed, d.name, keySummaries, err)
	}

	return sums, nil
}

// Lookup resolves aggregate.summaries.<key>.<percentile>.
func (d *Document) Lookup(key, percentile string) (float64, error) {
	sums, err := d.summaries()
	if err != nil {
		return 0, err
	}

	raw, ok := sums[key]
	if !ok || isNull(raw) {
		return 0, missing(d.name, keyAggregate, keySummaries, key)
	}

	var summary map[string]json.RawMessage
	if err := json.Unmarshal(raw, &summary); err != nil {
		return 0, fmt.Errorf("%w: %s report: summary %q is not an object: %v", ErrInputMalformed, d.name, key, err)
	}

	raw, ok = summary[percentile]
	if !ok || isNull(raw) {
		return 0, missing(d.name, keyAggregate, keySummaries, key, percentile)
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("%w: %s report: %s.%s is not a number: %v", ErrInputMalformed, d.name, key, percentile, err)
	}

	return value, nil
}

// EndpointMetrics returns every summary whose key starts with keyPrefix,
// keyed by the endpoint path that follows the prefix. A document without
// aggregate.summaries is a *MissingKeyError; an empty summaries object is not.
func (d *Document) EndpointMetrics(keyPrefix string) (map[string]models.EndpointMetric, error) {
	sums, err := d.summaries()
	if err != nil {
		return nil, err
	}

	metrics := make(map[string]models.EndpointMetric)
	for key, raw := range sums {
		path, ok := strings.CutPrefix(key, keyPrefix)
		if !ok {
			continue
		}

		var s Summary
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %s report: summary %q: %v", ErrInputMalformed, d.name, key, err)
		}

		metrics[path] = s.metric(path)
	}

	return metrics, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func ReadFileSafe(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if cleanPath == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid path")
	}

	return os.ReadFile(cleanPath)
}
