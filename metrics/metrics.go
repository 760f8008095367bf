// Package metrics provides Prometheus instrumentation shared by the content
// client and the cache layer. A nil *Collector is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the request, retry and cache instruments.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec

	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	dedupeHits    *prometheus.CounterVec
	staleDiscards *prometheus.CounterVec
	cacheEntries  prometheus.Gauge
}

// NewCollector creates a collector on the default registerer.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector using the supplied registerer.
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	factory := promauto.With(registry)
	return &Collector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strapcache_requests_total",
				Help: "Total number of HTTP requests sent to the content service",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strapcache_request_duration_seconds",
				Help:    "Duration of content service requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strapcache_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strapcache_errors_total",
				Help: "Total number of classified request failures",
			},
			[]string{"kind", "exhausted"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strapcache_cache_hits_total",
				Help: "Reads served from a fresh cache entry",
			},
			[]string{"endpoint"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strapcache_cache_misses_total",
				Help: "Reads that required a fetch",
			},
			[]string{"endpoint"},
		),
		dedupeHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strapcache_dedupe_hits_total",
				Help: "Reads that joined an in-flight request",
			},
			[]string{"endpoint"},
		),
		staleDiscards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strapcache_stale_discards_total",
				Help: "Responses dropped because a newer write already landed",
			},
			[]string{"endpoint"},
		),
		cacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "strapcache_cache_entries",
				Help: "Current number of cache entries",
			},
		),
	}
}

// RecordRequest records one completed HTTP attempt. statusCode is 0 when no response arrived.
func (c *Collector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRetry records a scheduled retry
func (c *Collector) RecordRetry(method, endpoint string, attempt int) {
	if c == nil {
		return
	}
	c.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordError records a failure surfaced to a caller
func (c *Collector) RecordError(kind string, exhausted bool) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(kind, strconv.FormatBool(exhausted)).Inc()
}

// RecordCacheHit records a read served from cache
func (c *Collector) RecordCacheHit(endpoint string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(endpoint).Inc()
}

// RecordCacheMiss records a read that needed the network
func (c *Collector) RecordCacheMiss(endpoint string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(endpoint).Inc()
}

// RecordDedupeHit records a read that shared another caller's request
func (c *Collector) RecordDedupeHit(endpoint string) {
	if c == nil {
		return
	}
	c.dedupeHits.WithLabelValues(endpoint).Inc()
}

// RecordStaleDiscard records an out-of-order response that was not applied
func (c *Collector) RecordStaleDiscard(endpoint string) {
	if c == nil {
		return
	}
	c.staleDiscards.WithLabelValues(endpoint).Inc()
}

// SetCacheEntries updates the entry gauge
func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}
