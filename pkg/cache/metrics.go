package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_cache_hits_total",
			Help: "Total number of forum response cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forum_cache_misses_total",
			Help: "Total number of forum response cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forum_cache_size_bytes",
			Help: "Bytes of forum responses written to the cache",
		},
		[]string{"layer"},
	)

	// NotModifiedResponses tracks 304 replies to conditional requests
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forum_cache_not_modified_total",
			Help: "Total number of 304 Not Modified replies served from cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
