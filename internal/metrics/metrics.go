// Package metrics exports scoring results as Prometheus gauges in the
// textfile format read by node_exporter's textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kx0101/perfgate/internal/models"
	"github.com/kx0101/perfgate/internal/scoring"
)

const namespace = "perfgate"

// Recorder owns a private registry so repeated runs in one process never
// collide with the global one.
type Recorder struct {
	registry *prometheus.Registry

	Score         *prometheus.GaugeVec
	EndpointPQI   *prometheus.GaugeVec
	EndpointP95   *prometheus.GaugeVec
	EndpointCount *prometheus.GaugeVec
	MetricValue   *prometheus.GaugeVec
	Fallback      prometheus.Gauge
	Threshold     prometheus.Gauge
	Allowed       prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		Score: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Score handed to the gate: success rate in endpoint mode, PQI in metric mode.",
		}, []string{"mode"}),
		EndpointPQI: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "pqi",
			Help:      "Performance Quality Index of one endpoint.",
		}, []string{"path", "status"}),
		EndpointP95: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "p95_milliseconds",
			Help:      "p95 latency of one endpoint per run.",
		}, []string{"path", "run"}),
		EndpointCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "endpoints",
			Name:      "total",
			Help:      "Scored endpoints by status.",
		}, []string{"status"}),
		MetricValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "metric",
			Name:      "milliseconds",
			Help:      "Value of the single scored percentile per run.",
		}, []string{"key", "percentile", "run"}),
		Fallback: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fallback",
			Help:      "1 when the score came from the zero-score fallback.",
		}),
		Threshold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "threshold",
			Help:      "Minimum score required to allow the change.",
		}),
		Allowed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "allowed",
			Help:      "1 when the change was allowed.",
		}),
	}
}

func (r *Recorder) ObserveResult(res *scoring.Result) {
	r.Score.WithLabelValues(string(res.Mode)).Set(res.Score)
	r.Fallback.Set(boolValue(res.Fallback))

	counts := map[models.Status]int{
		models.StatusPass: 0,
		models.StatusWarn: 0,
		models.StatusFail: 0,
	}

	for _, ep := range res.Endpoints {
		counts[ep.Status]++
		r.EndpointPQI.WithLabelValues(ep.Path, string(ep.Status)).Set(ep.PQIScore)
		r.EndpointP95.WithLabelValues(ep.Path, "candidate").Set(ep.Candidate.P95)
		if ep.Baseline != nil {
			r.EndpointP95.WithLabelValues(ep.Path, "baseline").Set(ep.Baseline.P95)
		}
	}

	if res.Mode == scoring.ModeEndpoint {
		for status, n := range counts {
			r.EndpointCount.WithLabelValues(string(status)).Set(float64(n))
		}
	}

	if m := res.Metric; m != nil {
		r.MetricValue.WithLabelValues(m.Key, m.Percentile, "baseline").Set(m.Baseline)
		r.MetricValue.WithLabelValues(m.Key, m.Percentile, "candidate").Set(m.Candidate)
	}
}

func (r *Recorder) ObserveGate(outcome models.GateOutcome) {
	r.Threshold.Set(outcome.Threshold)
	r.Allowed.Set(boolValue(outcome.Allowed))
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every gauge to path, replacing it atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
