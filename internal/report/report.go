package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"os"
	"time"

	"github.com/kx0101/perfgate/internal/models"
	"github.com/kx0101/perfgate/internal/scoring"
)

type ReportData struct {
	GeneratedAt string
	Mode        scoring.Mode
	Score       float64
	Threshold   float64
	Allowed     bool
	Message     string
	Fallback    bool
	Run         *models.RunScore
	Endpoints   []EndpointRow
	Metric      *models.MetricComparison
	Policy      scoring.Policy
}

type EndpointRow struct {
	Path         string
	PQI          float64
	Status       models.Status
	New          bool
	BaselineP95  float64
	CandidateP95 float64
	DeltaP95     float64
	Candidate    models.EndpointMetric
}

func BuildReportData(res *scoring.Result, outcome models.GateOutcome, now time.Time) ReportData {
	data := ReportData{
		GeneratedAt: now.Format("2006-01-02 15:04:05"),
		Mode:        res.Mode,
		Score:       res.Score,
		Threshold:   outcome.Threshold,
		Allowed:     outcome.Allowed,
		Message:     res.Message,
		Fallback:    res.Fallback,
		Run:         res.Run,
		Metric:      res.Metric,
		Policy:      res.Policy,
	}

	for _, ep := range res.Endpoints {
		row := EndpointRow{
			Path:         ep.Path,
			PQI:          ep.PQIScore,
			Status:       ep.Status,
			New:          ep.Baseline == nil,
			CandidateP95: ep.Candidate.P95,
			Candidate:    ep.Candidate,
		}

		if ep.Baseline != nil {
			row.BaselineP95 = ep.Baseline.P95
			row.DeltaP95 = ep.Candidate.P95 - ep.Baseline.P95
		}

		data.Endpoints = append(data.Endpoints, row)
	}

	return data
}

// RenderHTML renders the standalone report page.
func RenderHTML(data ReportData) ([]byte, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"statusColor": statusColor,
		"formatPath":  formatPath,
		"ms":          formatMs,
		"barWidth":    barWidth,
	}).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.Bytes(), nil
}

func GenerateHTML(data ReportData, outputPath string) ([]byte, error) {
	page, err := RenderHTML(data)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(outputPath, page, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	return page, nil
}

func statusColor(v any) string {
	var status string
	switch val := v.(type) {
	case models.Status:
		status = string(val)
	case models.Trend:
		status = string(val)
	case bool:
		if val {
			return "success"
		}
		return "error"
	case string:
		status = val
	}

	switch status {
	case string(models.StatusPass), string(models.TrendImprovement):
		return "success"
	case string(models.StatusWarn):
		return "warning"
	default:
		return "error"
	}
}

// formatPath shortens long paths to 50 runes.
func formatPath(path string) string {
	runes := []rune(path)
	if len(runes) > 50 {
		return string(runes[:47]) + "..."
	}

	return path
}

func formatMs(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// barWidth maps a PQI onto a 0-100 CSS width; unclamped scores can be
// negative or far below zero.
func barWidth(pqi float64) string {
	return fmt.Sprintf("%.0f", math.Max(0, math.Min(100, pqi)))
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Performance Quality Index Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            background: #f5f7fa;
            color: #2d3748;
            padding: 2rem;
        }
        .container { max-width: 1400px; margin: 0 auto; }
        .header {
            background: white;
            padding: 2rem;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            margin-bottom: 2rem;
        }
        h1 { color: #1a202c; font-size: 2rem; margin-bottom: 0.5rem; }
        .meta { color: #718096; font-size: 0.9rem; }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 1rem;
            margin-bottom: 2rem;
        }
        .stat-card {
            background: white;
            padding: 1.5rem;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        .stat-value { font-size: 2rem; font-weight: bold; margin-bottom: 0.25rem; }
        .stat-label { color: #718096; font-size: 0.875rem; }
        .stat-value.success { color: #48bb78; }
        .stat-value.error { color: #f56565; }
        .stat-value.warning { color: #ed8936; }
        .section {
            background: white;
            padding: 1.5rem;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            margin-bottom: 2rem;
            overflow-x: auto;
        }
        .section-title { font-size: 1.25rem; font-weight: 600; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 0.75rem 1rem; text-align: left; border-bottom: 1px solid #e2e8f0; }
        th {
            background: #f7fafc;
            font-weight: 600;
            color: #4a5568;
            font-size: 0.875rem;
            text-transform: uppercase;
            letter-spacing: 0.05em;
            white-space: nowrap;
        }
        tr:hover { background: #f7fafc; }
        .status-badge {
            display: inline-block;
            padding: 0.25rem 0.75rem;
            border-radius: 9999px;
            font-size: 0.875rem;
            font-weight: 500;
        }
        .status-success { background: #c6f6d5; color: #22543d; }
        .status-warning { background: #feebc8; color: #7c2d12; }
        .status-error { background: #fed7d7; color: #742a2a; }
        .code {
            background: #f7fafc;
            padding: 0.25rem 0.5rem;
            border-radius: 3px;
            font-family: 'Menlo', 'Monaco', 'Courier New', monospace;
            font-size: 0.85rem;
        }
        .bar-row { display: flex; align-items: center; margin: 0.4rem 0; font-size: 0.875rem; }
        .bar-label { width: 260px; font-family: 'Menlo', 'Monaco', 'Courier New', monospace; }
        .bar-track { flex: 1; background: #edf2f7; border-radius: 4px; height: 1rem; }
        .bar { height: 1rem; border-radius: 4px; }
        .bar.success { background: #48bb78; }
        .bar.warning { background: #ed8936; }
        .bar.error { background: #f56565; }
        .bar-value { width: 80px; text-align: right; font-weight: 600; }
        .scheme li { margin: 0.3rem 0 0.3rem 1.5rem; }
        .fallback {
            background: #fff5f5;
            border-left: 4px solid #f56565;
            padding: 1rem;
            border-radius: 4px;
            margin-bottom: 2rem;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Performance Quality Index Report</h1>
            <div class="meta">
                Generated: {{.GeneratedAt}} | Mode: {{.Mode}} | Threshold: {{ms .Threshold}}
            </div>
        </div>

        {{if .Fallback}}
        <div class="fallback"><strong>Scoring fell back to 0:</strong> {{.Message}}</div>
        {{end}}

        <div class="stats-grid">
            <div class="stat-card">
                <div class="stat-value {{statusColor .Allowed}}">{{ms .Score}}</div>
                <div class="stat-label">{{if eq .Mode "metric"}}PQI Score{{else}}Success Rate (%){{end}}</div>
            </div>
            <div class="stat-card">
                <div class="stat-value {{statusColor .Allowed}}">{{if .Allowed}}ALLOWED{{else}}BLOCKED{{end}}</div>
                <div class="stat-label">Gate Decision</div>
            </div>
            {{with .Run}}
            <div class="stat-card">
                <div class="stat-value">{{.TotalEndpoints}}</div>
                <div class="stat-label">Endpoints</div>
            </div>
            <div class="stat-card">
                <div class="stat-value success">{{.PassingCount}}</div>
                <div class="stat-label">Passing</div>
            </div>
            <div class="stat-card">
                <div class="stat-value error">{{.FailingCount}}</div>
                <div class="stat-label">Failing or Warning</div>
            </div>
            <div class="stat-card">
                <div class="stat-value">{{ms .OverallAvgLatencyMs}}ms</div>
                <div class="stat-label">Average Latency</div>
            </div>
            {{end}}
        </div>

        {{if .Endpoints}}
        <div class="section">
            <div class="section-title">PQI by Endpoint</div>
            {{range .Endpoints}}
            <div class="bar-row">
                <span class="bar-label">{{formatPath .Path}}</span>
                <div class="bar-track"><div class="bar {{statusColor .Status}}" style="width: {{barWidth .PQI}}%"></div></div>
                <span class="bar-value">{{ms .PQI}}</span>
            </div>
            {{end}}
        </div>

        <div class="section">
            <div class="section-title">Score Breakdown</div>
            <table>
                <thead>
                    <tr>
                        <th>Endpoint</th>
                        <th>Baseline p95</th>
                        <th>Candidate p95</th>
                        <th>Delta</th>
                        <th>PQI</th>
                        <th>Status</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Endpoints}}
                    <tr>
                        <td><span class="code">{{formatPath .Path}}</span></td>
                        <td>{{if .New}}new endpoint{{else}}{{ms .BaselineP95}}ms{{end}}</td>
                        <td>{{ms .CandidateP95}}ms</td>
                        <td>{{if .New}}-{{else}}{{ms .DeltaP95}}ms{{end}}</td>
                        <td>{{ms .PQI}}</td>
                        <td><span class="status-badge status-{{statusColor .Status}}">{{.Status}}</span></td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>

        <div class="section">
            <div class="section-title">Detailed Candidate Metrics</div>
            <table>
                <thead>
                    <tr>
                        <th>Endpoint</th>
                        <th>Count</th>
                        <th>Min</th>
                        <th>Mean</th>
                        <th>p50</th>
                        <th>p95</th>
                        <th>p99</th>
                        <th>Max</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Endpoints}}
                    <tr>
                        <td><span class="code">{{formatPath .Path}}</span></td>
                        <td>{{.Candidate.Count}}</td>
                        <td>{{ms .Candidate.Min}}</td>
                        <td>{{ms .Candidate.Mean}}</td>
                        <td>{{ms .Candidate.P50}}</td>
                        <td>{{ms .Candidate.P95}}</td>
                        <td>{{ms .Candidate.P99}}</td>
                        <td>{{ms .Candidate.Max}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{with .Metric}}
        <div class="section">
            <div class="section-title">Single Metric Comparison</div>
            <table>
                <thead>
                    <tr>
                        <th>Metric</th>
                        <th>Baseline</th>
                        <th>Candidate</th>
                        <th>Regression</th>
                        <th>Penalty</th>
                        <th>Status</th>
                    </tr>
                </thead>
                <tbody>
                    <tr>
                        <td><span class="code">{{.Key}} {{.Percentile}}</span></td>
                        <td>{{ms .Baseline}}ms</td>
                        <td>{{ms .Candidate}}ms</td>
                        <td>{{ms .Regression}}ms</td>
                        <td>{{ms .Penalty}}</td>
                        <td><span class="status-badge status-{{statusColor .Trend}}">{{.Trend}}</span></td>
                    </tr>
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="section scheme">
            <div class="section-title">Scoring Scheme</div>
            {{if eq .Mode "metric"}}
            <ul>
                <li>Compared value: <span class="code">{{.Policy.Metric.Key}} {{.Policy.Metric.Percentile}}</span></li>
                <li>Penalty: latency increase (ms) x {{.Policy.PenaltyFactor}}; improvements cost nothing</li>
                <li>PQI = max(0, 100 - penalty)</li>
                <li>Missing or unreadable reports score 0</li>
            </ul>
            {{else}}
            <ul>
                <li>PQI = 100 - max(0, candidate p95 - baseline p95) x {{.Policy.PenaltyFactor}}</li>
                <li>FAIL below {{.Policy.Endpoint.FailBelow}}, WARN below {{.Policy.Endpoint.WarnBelow}}, PASS otherwise</li>
                <li>New endpoints: PQI 100; FAIL above {{.Policy.Endpoint.NewFailAbove}}ms p95, WARN above {{.Policy.Endpoint.NewWarnAbove}}ms</li>
                <li>Success rate = passing endpoints / total endpoints x 100</li>
            </ul>
            {{end}}
            <p class="meta" style="margin-top: 1rem;">{{.Message}}</p>
        </div>
    </div>
</body>
</html>`
