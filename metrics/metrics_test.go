package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollectorWithRegistry(prometheus.NewRegistry())

	c.RecordRequest("GET", "/articles", 200, 15*time.Millisecond)
	c.RecordRequest("GET", "/articles", 200, 5*time.Millisecond)
	c.RecordRequest("GET", "/articles", 0, time.Millisecond)
	c.RecordRetry("GET", "/articles", 1)
	c.RecordError("server", true)
	c.RecordCacheHit("/articles")
	c.RecordCacheMiss("/articles")
	c.RecordDedupeHit("/articles")
	c.RecordDedupeHit("/articles")
	c.RecordStaleDiscard("/articles")
	c.SetCacheEntries(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GET", "/articles", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GET", "/articles", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retriesTotal.WithLabelValues("GET", "/articles", "1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errorsTotal.WithLabelValues("server", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("/articles")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("/articles")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dedupeHits.WithLabelValues("/articles")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.staleDiscards.WithLabelValues("/articles")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.cacheEntries))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordRequest("GET", "/x", 500, time.Second)
		c.RecordRetry("GET", "/x", 2)
		c.RecordError("network", false)
		c.RecordCacheHit("/x")
		c.RecordCacheMiss("/x")
		c.RecordDedupeHit("/x")
		c.RecordStaleDiscard("/x")
		c.SetCacheEntries(1)
	})
}
