package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 缓存指标
	CacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_cache_size_bytes",
			Help: "Total size of cached course content in bytes",
		},
	)

	CachedCourses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_cache_courses",
			Help: "Number of courses currently cached",
		},
	)

	EvictionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_evictions_total",
			Help: "Total number of courses evicted to reclaim space",
		},
	)

	SyncCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_sync_total",
			Help: "Per-course sync attempts by result",
		},
		[]string{"result"},
	)

	NotificationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_shown_total",
			Help: "Notifications shown by type",
		},
		[]string{"type"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(CacheSizeBytes)
	prometheus.MustRegister(CachedCourses)
	prometheus.MustRegister(EvictionCounter)
	prometheus.MustRegister(SyncCounter)
	prometheus.MustRegister(NotificationCounter)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
