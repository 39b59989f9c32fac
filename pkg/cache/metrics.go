package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gemini_cache_hits_total",
			Help: "Total number of Gemini response cache hits",
		},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gemini_cache_misses_total",
			Help: "Total number of Gemini response cache misses",
		},
	)

	// CacheErrors tracks store errors absorbed by the manager
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "clear", "clear_all"
	)

	// CacheDisabled counts managers that disabled themselves at construction
	CacheDisabled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gemini_cache_disabled_total",
			Help: "Total number of cache managers disabled because Redis was unreachable",
		},
	)
)
