package aggregate

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kx0101/perfgate/internal/models"
)

func latency(v float64) *float64 {
	return &v
}

func TestBuild(t *testing.T) {
	calls := []models.RecordedCall{
		{URL: "https://app.example.com/api/login", Method: "POST", LatencyMs: latency(30)},
		{URL: "https://app.example.com/api/login", Method: "POST", LatencyMs: latency(10)},
		{URL: "https://app.example.com/api/home?tab=1", Method: "GET", LatencyMs: latency(5)},
		{URL: "https://app.example.com/logo.svg", Method: "GET"},
	}

	report, err := Build(calls, prefix)
	require.NoError(t, err)

	sums := report.Aggregate.Summaries
	require.Len(t, sums, 3)

	login := sums[prefix+"/api/login"]
	assert.Equal(t, 2.0, login.Count)
	assert.Equal(t, 10.0, login.Min)
	assert.Equal(t, 30.0, login.Max)
	assert.Equal(t, 20.0, login.Mean)

	assert.Equal(t, 3.0, sums[OverallKey].Count)
	_, ok := sums[prefix+"/logo.svg"]
	assert.False(t, ok, "calls without latency are skipped")

	t.Run("readable as aggregate document", func(t *testing.T) {
		data, err := json.Marshal(report)
		require.NoError(t, err)

		doc, err := Parse("baseline", data)
		require.NoError(t, err)

		v, err := doc.Lookup(prefix+"/api/home", "p95")
		require.NoError(t, err)
		assert.Equal(t, 5.0, v)

		v, err = doc.Lookup(prefix+"/api/login", "p90")
		require.NoError(t, err)
		assert.Equal(t, 30.0, v)
	})
}

func TestBuildWithoutLatency(t *testing.T) {
	_, err := Build([]models.RecordedCall{{URL: "https://a.example.com/", Method: "GET"}}, prefix)
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	report, err := Build([]models.RecordedCall{{URL: "https://a.example.com/api/x", LatencyMs: latency(3)}}, prefix)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteFile(path, report))

	doc, err := File("baseline", path).Load()
	require.NoError(t, err)

	metrics, err := doc.EndpointMetrics(prefix)
	require.NoError(t, err)
	assert.Equal(t, 3.0, metrics["/api/x"].P95)
}
