// internal/metrics/collector.go
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bonk_keeper"

// MetricType identifies a metric
type MetricType string

const (
	TransitionCounterType   MetricType = "transitions_total"
	TransitionDurationType  MetricType = "transition_duration"
	BatchCandidatesType     MetricType = "batch_candidates"
	BatchResultsType        MetricType = "batch_results"
	RPCLatencyType          MetricType = "rpc_latency"
	WebsocketConnectionType MetricType = "websocket_connections"
)

// Collector owns its registry, so several instances
// (in tests, say) do not collide on registration.
type Collector struct {
	registry *prometheus.Registry
	metrics  sync.Map

	transitions   *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	candidates    prometheus.Gauge
	batchResults  *prometheus.CounterVec
	rpcLatency    *prometheus.HistogramVec
	subscriptions *prometheus.GaugeVec
}

// NewCollector creates a metrics collector
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Ledger transitions by outcome",
			},
			[]string{"transition", "outcome"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Transition duration including confirmation, in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"transition"},
		),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_candidates",
			Help:      "Candidates found by the last batch pass",
		}),
		batchResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_results_total",
				Help:      "Per-mint batch results",
			},
			[]string{"result"},
		),
		rpcLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_latency_seconds",
				Help:      "RPC request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"method", "status"},
		),
		subscriptions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Active ledger subscriptions",
			},
			[]string{"status"},
		),
	}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	metricsMap := map[MetricType]prometheus.Collector{
		TransitionCounterType:   c.transitions,
		TransitionDurationType:  c.durations,
		BatchCandidatesType:     c.candidates,
		BatchResultsType:        c.batchResults,
		RPCLatencyType:          c.rpcLatency,
		WebsocketConnectionType: c.subscriptions,
	}
	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		c.registry.MustRegister(metric)
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Reset clears every metric
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		case prometheus.Gauge:
			m.Set(0)
		}
		return true
	})
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveTransition implements executor.Recorder.
func (c *Collector) ObserveTransition(transition, outcome string, d time.Duration) {
	c.transitions.WithLabelValues(transition, outcome).Inc()
	c.durations.WithLabelValues(transition).Observe(d.Seconds())
}

// BatchCandidates implements orchestrator.Recorder.
func (c *Collector) BatchCandidates(n int) {
	c.candidates.Set(float64(n))
}

// BatchResult implements orchestrator.Recorder.
func (c *Collector) BatchResult(result string) {
	c.batchResults.WithLabelValues(result).Inc()
}

// ObserveRPC implements solbc.LatencyObserver.
func (c *Collector) ObserveRPC(method string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.rpcLatency.WithLabelValues(method, status).Observe(d.Seconds())
}

// UpdateWebsocketConnections sets the websocket connection gauge
func (c *Collector) UpdateWebsocketConnections(active int, status string) {
	c.subscriptions.WithLabelValues(status).Set(float64(active))
}
