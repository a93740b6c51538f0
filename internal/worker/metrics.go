package worker

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	stageDuration        *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	editOutputsTotal     *prometheus.CounterVec
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_worker_jobs_total",
			Help: "Total worker jobs by source type and final status.",
		}, []string{"source_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photoflow_worker_job_duration_seconds",
			Help:    "Total processing duration for each worker job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photoflow_edit_stage_duration_seconds",
			Help:    "Duration of each edit stage by pathway.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"pathway", "stage"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photoflow_worker_active_jobs",
			Help: "Current number of jobs holding a decode slot.",
		}),
		editOutputsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_worker_edit_outputs_total",
			Help: "Total edited outputs emitted by the worker, by step action and format.",
		}, []string{"action", "format"}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_pixels_processed_total",
			Help: "Total output pixels produced across all successful jobs.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_bytes_saved_total",
			Help: "Total bytes saved across all successful jobs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful jobs.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.stageDuration,
		m.activeJobs,
		m.editOutputsTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) observeStage(pathway, stage string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(pathway, stage).Observe(elapsed.Seconds())
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
