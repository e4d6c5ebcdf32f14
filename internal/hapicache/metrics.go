package hapicache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests counts opened streams by orchestrator state.
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hapi_cache_requests_total",
			Help: "Total number of HAPI requests by cache state",
		},
		[]string{"state"}, // exact_hit, refill_single, refill_composite, metadata
	)

	// GranuleHits counts granules served straight from a fresh cache file.
	GranuleHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hapi_cache_granule_hits_total",
			Help: "Total number of cache granules served from disk",
		},
	)

	// RemoteFetches counts finished tee fetches by result.
	RemoteFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hapi_cache_remote_fetches_total",
			Help: "Total number of remote fetches written through to the cache",
		},
		[]string{"result"}, // "ok", "error"
	)

	// StaleFallbacks counts stale files served after a failed remote fetch.
	StaleFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hapi_cache_stale_fallbacks_total",
			Help: "Total number of stale cache files served after remote failures",
		},
	)

	// BytesWritten tracks bytes committed to cache files.
	BytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hapi_cache_bytes_written_total",
			Help: "Total number of bytes committed to cache files",
		},
	)
)
