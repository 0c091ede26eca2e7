// Package metrics is the deploy task's outbound metrics sink: an event
// counter, a duration distribution, and a measure_method wrapper around
// both, backed by a Prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	internalerrors "github.com/hashmap-kz/katomik-global-deploy/internal/errors"
)

// Sink is the abstract outbound contract: events, distributions, and a
// convenience wrapper that records a distribution around a labeled
// operation.
type Sink interface {
	Event(title, body, alertType string, tags map[string]string)
	Distribution(metric string, d time.Duration, tags map[string]string)
	MeasureMethod(op string, tags map[string]string, fn func() error) error
}

// Prometheus is the default Sink, registering a counter for events and a
// histogram for distributions. Standard tags (context, status) are applied
// by callers via the tags map and surfaced as Prometheus labels.
type Prometheus struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	timings  *prometheus.HistogramVec
}

// NewPrometheus registers its collectors against reg. Passing a fresh
// *prometheus.Registry per task avoids duplicate-registration panics when
// the engine runs more than once in the same process (tests, or a
// long-lived CI runner invoking the library repeatedly).
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "katomik_global_deploy",
		Name:      "events_total",
		Help:      "Count of deploy-task events by title and alert type.",
	}, []string{"title", "alert_type", "context", "status"})

	timings := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "katomik_global_deploy",
		Name:      "operation_duration_seconds",
		Help:      "Duration of deploy-task operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"metric", "context", "status"})

	reg.MustRegister(events, timings)

	return &Prometheus{registry: reg, events: events, timings: timings}
}

func (p *Prometheus) Event(title, _ string, alertType string, tags map[string]string) {
	p.events.WithLabelValues(title, alertType, tags["context"], tags["status"]).Inc()
}

func (p *Prometheus) Distribution(metric string, d time.Duration, tags map[string]string) {
	p.timings.WithLabelValues(metric, tags["context"], tags["status"]).Observe(d.Seconds())
}

func (p *Prometheus) MeasureMethod(op string, tags map[string]string, fn func() error) error {
	start := time.Now()
	err := fn()

	merged := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		merged[k] = v
	}
	merged["status"] = measureStatus(err)
	p.Distribution(op, time.Since(start), merged)
	return err
}

// measureStatus derives the standard status tag for a measured operation's
// outcome. A DeploymentTimeoutError gets its own "timeout" value distinct
// from a generic "failed", so a watcher-deadline run is never indistinguishable
// from a hard failure in the metrics backend.
func measureStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case internalerrors.IsTimeoutError(err):
		return "timeout"
	default:
		return "failed"
	}
}
