// Package metrics exports Prometheus instrumentation for the trust engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector collects and exports metrics for the trust engine service.
type Collector struct {
	registryOperations *prometheus.CounterVec

	graphRebuilds       prometheus.Counter
	graphRebuildSeconds prometheus.Histogram
	graphNodes          prometheus.Gauge
	graphEdges          prometheus.Gauge
	graphQueries        *prometheus.CounterVec
	graphQuerySeconds   *prometheus.HistogramVec

	scoreCalculations       *prometheus.CounterVec
	scoreOverall            prometheus.Histogram
	batchRecalculations     prometheus.Counter
	batchItemsSucceeded     prometheus.Counter
	batchItemsFailed        prometheus.Counter

	messagesConsumed *prometheus.CounterVec
	consumeErrors    *prometheus.CounterVec

	httpRequests       *prometheus.CounterVec
	httpRequestSeconds *prometheus.HistogramVec
}

// NewCollector registers the trust engine metrics with the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registryOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trust_engine_registry_operations_total",
				Help: "Total number of registry mutations by operation",
			},
			[]string{"operation"},
		),
		graphRebuilds: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "trust_engine_graph_rebuilds_total",
				Help: "Total number of full graph rebuilds",
			},
		),
		graphRebuildSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trust_engine_graph_rebuild_duration_seconds",
				Help:    "Graph rebuild duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		graphNodes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "trust_engine_graph_nodes",
				Help: "Number of nodes in the trust graph",
			},
		),
		graphEdges: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "trust_engine_graph_edges",
				Help: "Number of edges in the trust graph",
			},
		),
		graphQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trust_engine_graph_queries_total",
				Help: "Total number of graph queries by kind",
			},
			[]string{"kind"},
		),
		graphQuerySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trust_engine_graph_query_duration_seconds",
				Help:    "Graph query duration in seconds by kind",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		scoreCalculations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trust_engine_score_calculations_total",
				Help: "Total number of trust score calculations by outcome",
			},
			[]string{"outcome"},
		),
		scoreOverall: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trust_engine_score_overall",
				Help:    "Distribution of computed overall trust scores",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		batchRecalculations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "trust_engine_batch_recalculations_total",
				Help: "Total number of batch score recalculations",
			},
		),
		batchItemsSucceeded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "trust_engine_batch_items_succeeded_total",
				Help: "Total organizations successfully recalculated in batches",
			},
		),
		batchItemsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "trust_engine_batch_items_failed_total",
				Help: "Total organizations that failed batch recalculation",
			},
		),
		messagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trust_engine_messages_consumed_total",
				Help: "Total Kafka messages consumed by topic",
			},
			[]string{"topic"},
		),
		consumeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trust_engine_consume_errors_total",
				Help: "Total Kafka consume errors by topic",
			},
			[]string{"topic"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trust_engine_http_requests_total",
				Help: "Total HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trust_engine_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RegistryOperation counts a registry mutation.
func (c *Collector) RegistryOperation(operation string) {
	c.registryOperations.WithLabelValues(operation).Inc()
}

// GraphRebuilt records a completed full rebuild and the resulting graph size.
func (c *Collector) GraphRebuilt(duration time.Duration, nodes, edges int) {
	c.graphRebuilds.Inc()
	c.graphRebuildSeconds.Observe(duration.Seconds())
	c.graphNodes.Set(float64(nodes))
	c.graphEdges.Set(float64(edges))
}

// GraphQuery records a structural query and its latency.
func (c *Collector) GraphQuery(kind string, duration time.Duration) {
	c.graphQueries.WithLabelValues(kind).Inc()
	c.graphQuerySeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ScoreCalculated records the outcome of one score calculation.
func (c *Collector) ScoreCalculated(outcome string, overall float64) {
	c.scoreCalculations.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		c.scoreOverall.Observe(overall)
	}
}

// BatchRecalculated records the outcome of a batch recalculation run.
func (c *Collector) BatchRecalculated(succeeded, failed int) {
	c.batchRecalculations.Inc()
	c.batchItemsSucceeded.Add(float64(succeeded))
	c.batchItemsFailed.Add(float64(failed))
}

// MessageConsumed counts a consumed Kafka message.
func (c *Collector) MessageConsumed(topic string) {
	c.messagesConsumed.WithLabelValues(topic).Inc()
}

// ConsumeError counts a Kafka message handling failure.
func (c *Collector) ConsumeError(topic string) {
	c.consumeErrors.WithLabelValues(topic).Inc()
}

// HTTPRequest records a completed HTTP request.
func (c *Collector) HTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	c.httpRequestSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
