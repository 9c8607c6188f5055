package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the agent's Prometheus metrics on its own registry, so tests
// can build as many collectors as they like without clashing on the default one.
type Collector struct {
	registry *prometheus.Registry

	cyclesTotal        *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	stepsTotal         *prometheus.CounterVec
	writesTotal        *prometheus.CounterVec
	quotaState         *prometheus.GaugeVec
	observationCounter prometheus.Gauge
	serviceInfo        *prometheus.GaugeVec
}

// NewCollector creates and registers the agent metrics under the given namespace.
func NewCollector(namespace, version string) *Collector {
	ns := strings.ReplaceAll(namespace, "-", "_")

	c := &Collector{registry: prometheus.NewRegistry()}

	c.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cycles_total",
			Help:      "Completed cycles by outcome",
		},
		[]string{"outcome"},
	)

	c.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full cycle including pacing delays",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	c.stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "steps_total",
			Help:      "Cycle steps by step and result",
		},
		[]string{"step", "result"},
	)

	c.writesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "writes_total",
			Help:      "Write calls against the social platform by kind and result",
		},
		[]string{"kind", "result"},
	)

	c.quotaState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "quota_state",
			Help:      "1 for the current quota guard state, 0 otherwise",
		},
		[]string{"state"},
	)

	c.observationCounter = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "observation_counter",
			Help:      "Current numbered-observation counter",
		},
	)

	c.serviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "service_info",
			Help:      "Service information",
		},
		[]string{"version"},
	)

	c.registry.MustRegister(
		c.cyclesTotal,
		c.cycleDuration,
		c.stepsTotal,
		c.writesTotal,
		c.quotaState,
		c.observationCounter,
		c.serviceInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c.serviceInfo.WithLabelValues(version).Set(1)

	return c
}

func (c *Collector) ObserveCycle(outcome string, d time.Duration) {
	c.cyclesTotal.WithLabelValues(outcome).Inc()
	c.cycleDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveStep(step, result string) {
	c.stepsTotal.WithLabelValues(step, result).Inc()
}

func (c *Collector) ObserveWrite(kind, result string) {
	c.writesTotal.WithLabelValues(kind, result).Inc()
}

// SetQuotaState flips the gauge for current to 1 and every other known state to 0.
func (c *Collector) SetQuotaState(current string, known ...string) {
	for _, s := range known {
		c.quotaState.WithLabelValues(s).Set(0)
	}
	c.quotaState.WithLabelValues(current).Set(1)
}

func (c *Collector) SetObservationCounter(v int64) {
	c.observationCounter.Set(float64(v))
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
