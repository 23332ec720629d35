package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the routing-core metrics. All methods are safe on a nil
// receiver so library code can run unmetered in tests.
type Collector struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	catalogQueries prometheus.Counter

	poolsOpen       prometheus.Gauge
	connectFailures *prometheus.CounterVec

	licenseDenials       *prometheus.CounterVec
	licenseCheckFailures prometheus.Counter

	requestDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_existence_cache_hits_total",
			Help: "Database existence checks answered from cache",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_existence_cache_misses_total",
			Help: "Database existence checks that missed the cache",
		}),
		catalogQueries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_catalog_queries_total",
			Help: "ListDatabaseNames queries issued to the storage engine",
		}),
		poolsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mosaic_connection_pools_open",
			Help: "Live per-database connection pools",
		}),
		connectFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mosaic_connect_failures_total",
			Help: "Failed attempts to establish a database pool",
		}, []string{"database"}),
		licenseDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mosaic_license_denials_total",
			Help: "Requests denied because the tenant license is expired or inactive",
		}, []string{"tenant"}),
		licenseCheckFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_license_check_failures_total",
			Help: "License checks that failed to reach the central store (admitted fail-open)",
		}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mosaic_http_request_duration_seconds",
			Help:    "HTTP request latency by method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

func (c *Collector) CacheHit() {
	if c != nil {
		c.cacheHits.Inc()
	}
}

func (c *Collector) CacheMiss() {
	if c != nil {
		c.cacheMisses.Inc()
	}
}

func (c *Collector) CatalogQuery() {
	if c != nil {
		c.catalogQueries.Inc()
	}
}

func (c *Collector) PoolOpened(database string) {
	if c != nil {
		c.poolsOpen.Inc()
	}
}

func (c *Collector) PoolClosed(database string) {
	if c != nil {
		c.poolsOpen.Dec()
	}
}

func (c *Collector) ConnectFailed(database string) {
	if c != nil {
		c.connectFailures.WithLabelValues(database).Inc()
	}
}

func (c *Collector) LicenseDenied(tenant string) {
	if c != nil {
		c.licenseDenials.WithLabelValues(tenant).Inc()
	}
}

func (c *Collector) LicenseCheckFailed() {
	if c != nil {
		c.licenseCheckFailures.Inc()
	}
}

func (c *Collector) ObserveRequest(method, status string, seconds float64) {
	if c != nil {
		c.requestDuration.WithLabelValues(method, status).Observe(seconds)
	}
}
