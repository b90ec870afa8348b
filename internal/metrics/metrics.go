package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	ProjectsCreated    prometheus.Counter
	ProcessingStarted  prometheus.Counter
	ProcessingFinished *prometheus.CounterVec
	ScheduledJobs      prometheus.Gauge
	RequestDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ProjectsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motion_projects_created_total",
			Help: "Projects created from uploaded videos.",
		}),
		ProcessingStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motion_processing_started_total",
			Help: "Projects moved from pending to processing.",
		}),
		ProcessingFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "motion_processing_finished_total",
			Help: "Projects that left processing, by final status.",
		}, []string{"status"}),
		ScheduledJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motion_processing_scheduled_jobs",
			Help: "Completion tasks currently waiting to fire.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "motion_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ProjectsCreated,
		m.ProcessingStarted,
		m.ProcessingFinished,
		m.ScheduledJobs,
		m.RequestDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled by the matched route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
