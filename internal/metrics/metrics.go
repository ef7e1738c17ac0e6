// Package metrics exposes Prometheus collectors for pipeline activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "multimodal_pipeline"

// Recorder owns the pipeline collectors. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	requestsInFlight prometheus.Gauge
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestCost      prometheus.Counter
	stageAttempts    *prometheus.CounterVec
	stageOutcomes    *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	endpointHealthy  *prometheus.GaugeVec
}

// New creates a Recorder registered on its own registry, together with the
// process and Go runtime collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := newRecorder(reg)
	reg.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return r
}

// NewWithRegistry creates a Recorder registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Recorder {
	return newRecorder(reg)
}

func newRecorder(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		registry: reg,
		requestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "in_flight",
			Help:      "Pipeline requests currently being processed.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "total",
			Help:      "Finalized pipeline requests by workflow and status.",
		}, []string{"workflow", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "duration_seconds",
			Help:      "End-to-end pipeline request duration.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7m
		}, []string{"workflow"}),
		requestCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "cost_cents_total",
			Help:      "Accumulated cost of completed stages in cents.",
		}),
		stageAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stages",
			Name:      "attempts_total",
			Help:      "Individual backend call attempts by endpoint and result.",
		}, []string{"endpoint", "result"}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stages",
			Name:      "outcomes_total",
			Help:      "Stage outcomes after retries by endpoint and result.",
		}, []string{"endpoint", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stages",
			Name:      "duration_seconds",
			Help:      "Stage duration including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"endpoint"}),
		endpointHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "endpoints",
			Name:      "healthy",
			Help:      "1 when the last health probe of the endpoint succeeded.",
		}, []string{"endpoint"}),
	}
	reg.MustRegister(
		r.requestsInFlight,
		r.requestsTotal,
		r.requestDuration,
		r.requestCost,
		r.stageAttempts,
		r.stageOutcomes,
		r.stageDuration,
		r.endpointHealthy,
	)
	return r
}

// Handler returns an HTTP handler exposing the registered metrics.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RequestStarted marks a request as in flight.
func (r *Recorder) RequestStarted() {
	if r == nil {
		return
	}
	r.requestsInFlight.Inc()
}

// RequestFinished records a finalized request and releases its in-flight slot.
func (r *Recorder) RequestFinished(workflow, status string, costCents int64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requestsInFlight.Dec()
	r.requestsTotal.WithLabelValues(workflow, status).Inc()
	r.requestDuration.WithLabelValues(workflow).Observe(elapsed.Seconds())
	r.requestCost.Add(float64(costCents))
}

// StageAttempt records one backend call attempt.
func (r *Recorder) StageAttempt(endpoint string, err error) {
	if r == nil {
		return
	}
	r.stageAttempts.WithLabelValues(endpoint, result(err)).Inc()
}

// StageFinished records the outcome of a stage after retries.
func (r *Recorder) StageFinished(endpoint string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageOutcomes.WithLabelValues(endpoint, result(err)).Inc()
	r.stageDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// EndpointHealth records the latest probe result for endpoint.
func (r *Recorder) EndpointHealth(endpoint string, healthy bool) {
	if r == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	r.endpointHealthy.WithLabelValues(endpoint).Set(v)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
