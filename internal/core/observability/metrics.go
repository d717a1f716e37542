package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	busPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_published_total",
			Help: "Events published on the in-process bus.",
		},
		[]string{"topic", "delivered"},
	)

	selectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_selections_total",
			Help: "Spatial selections handled by the pager, by shape and outcome.",
		},
		[]string{"shape", "outcome"},
	)

	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_searches_total",
			Help: "Searches issued by the pager, by outcome (ok, failed, superseded, invalid).",
		},
		[]string{"outcome"},
	)

	searchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pager_search_duration_seconds",
			Help:    "Time from GoTo until the search action returned.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	pagesRendered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pager_pages_rendered",
			Help: "Number of page links in the last rendered pager.",
		},
	)

	resultCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_total",
			Help: "Result cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Redis operation latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	kafkaProducerDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_producer_dropped_total",
			Help: "Events dropped because the producer queue was full.",
		},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func IncBusPublish(topic string, subscribers int) {
	delivered := "true"
	if subscribers == 0 {
		delivered = "false"
	}
	busPublishedTotal.WithLabelValues(topic, delivered).Inc()
}

func IncSelection(shape, outcome string) {
	if shape == "" {
		shape = "unknown"
	}
	selectionsTotal.WithLabelValues(shape, outcome).Inc()
}

func IncSearch(outcome string) {
	searchesTotal.WithLabelValues(outcome).Inc()
}

func ObserveSearchDuration(durationSeconds float64) {
	searchDurationSeconds.Observe(durationSeconds)
}

func SetPagesRendered(n int) {
	pagesRendered.Set(float64(n))
}

func IncResultCache(tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	resultCacheTotal.WithLabelValues(tier, outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpDurationSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func IncKafkaProducerDropped() {
	kafkaProducerDropped.Inc()
}
