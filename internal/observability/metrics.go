// Package observability exposes Prometheus metrics for the analysis pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
)

// Pipeline stages timed by the orchestrator.
const (
	StageValidate = "validate"
	StageRegion   = "region"
	StageServices = "services"
	StageMerge    = "merge"
	StageTotal    = "total"
)

// Collector bundles the pipeline metrics. A nil *Collector is a no-op, so
// callers never need to guard their recording calls.
type Collector struct {
	gatherer prometheus.Gatherer

	Requests         *prometheus.CounterVec
	StageDurations   *prometheus.HistogramVec
	HotspotDegraded  *prometheus.CounterVec
	RequiredFailures *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "erosion_analysis_requests_total",
		Help: "Analysis requests by outcome (success or error kind).",
	}, []string{"outcome"}), "erosion_analysis_requests_total")
	if err != nil {
		return nil, err
	}

	stages, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "erosion_analysis_stage_duration_seconds",
		Help:    "Duration of each analysis stage in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"stage"}), "erosion_analysis_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	degraded, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "erosion_hotspot_degradations_total",
		Help: "Hotspot calls replaced by an empty result, by cause.",
	}, []string{"cause"}), "erosion_hotspot_degradations_total")
	if err != nil {
		return nil, err
	}

	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "erosion_required_service_failures_total",
		Help: "Failures of required downstream calls, by service and kind.",
	}, []string{"service", "kind"}), "erosion_required_service_failures_total")
	if err != nil {
		return nil, err
	}

	breaker, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "erosion_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open).",
	}, []string{"service"}), "erosion_circuit_breaker_state")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		Requests:         requests,
		StageDurations:   stages,
		HotspotDegraded:  degraded,
		RequiredFailures: failures,
		BreakerState:     breaker,
	}, nil
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest counts a finished request.
func (c *Collector) ObserveRequest(outcome string) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveHotspotDegraded counts a degraded hotspot call.
func (c *Collector) ObserveHotspotDegraded(cause string) {
	if c == nil {
		return
	}
	c.HotspotDegraded.WithLabelValues(cause).Inc()
}

// ObserveRequiredFailure counts a failed required call.
func (c *Collector) ObserveRequiredFailure(service string, timeout bool) {
	if c == nil {
		return
	}
	kind := "error"
	if timeout {
		kind = "timeout"
	}
	c.RequiredFailures.WithLabelValues(service, kind).Inc()
}

// SetBreakerState records the numeric state of a circuit breaker.
func (c *Collector) SetBreakerState(service string, state int) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(service).Set(float64(state))
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	if err := reg.Register(c); err != nil {
		var zero C
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return zero, eris.Wrapf(err, "observability: register %s", name)
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return zero, eris.Errorf("observability: collector %s already registered with incompatible type", name)
		}
		return existing, nil
	}
	return c, nil
}
