// Package metrics provides Prometheus metrics for sky-fetcher runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of a run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Task metrics
	TasksTotal      *prometheus.CounterVec
	FallbacksTotal  *prometheus.CounterVec
	BytesDownloaded *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec

	// Match metrics
	TargetsTotal *prometheus.CounterVec

	// Progress
	LastRequestIndex *prometheus.GaugeVec

	// Side channel errors
	AuditErrors    *prometheus.CounterVec
	MetadataErrors *prometheus.CounterVec
}

// Labels is a convenience type for metric labels.
type Labels struct {
	Job     string
	Kind    string
	Outcome string
}

// New registers the metrics on reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "sky_fetcher"
	}
	factory := promauto.With(reg)

	return &Metrics{
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Fetch tasks by terminal outcome",
			},
			[]string{"job", "kind", "outcome"},
		),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Files obtained from a fallback release",
			},
			[]string{"job", "kind"},
		),
		BytesDownloaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_downloaded_total",
				Help:      "Bytes written to the destination",
			},
			[]string{"job", "kind"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time spent on one fetch task, network included",
				Buckets:   prometheus.ExponentialBuckets(0.01, 3, 10), // 10ms to ~200s
			},
			[]string{"job", "kind"},
		),
		TargetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "targets_total",
				Help:      "Matched targets by coverage",
			},
			[]string{"job", "coverage"},
		),
		LastRequestIndex: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_request_index",
				Help:      "Index of the last processed request",
			},
			[]string{"job"},
		),
		AuditErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_errors_total",
				Help:      "Audit events that could not be emitted",
			},
			[]string{"job"},
		),
		MetadataErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metadata_errors_total",
				Help:      "Task records that could not be stored",
			},
			[]string{"job"},
		),
	}
}

// Handler serves the metrics of g plus a /health probe.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// StartServer serves Handler(g) on address until ctx is cancelled.
func StartServer(ctx context.Context, address string, g prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           Handler(g),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ObserveTask records the outcome of one fetch.
func (m *Metrics) ObserveTask(l Labels, bytes int64, seconds float64) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(l.Job, l.Kind, l.Outcome).Inc()
	m.FetchDuration.WithLabelValues(l.Job, l.Kind).Observe(seconds)
	if bytes > 0 {
		m.BytesDownloaded.WithLabelValues(l.Job, l.Kind).Add(float64(bytes))
	}
}

// IncFallbacks counts a file obtained from a fallback release.
func (m *Metrics) IncFallbacks(l Labels) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(l.Job, l.Kind).Inc()
}

// AddTargets counts matched targets by coverage ("covered" or "nocoverage").
func (m *Metrics) AddTargets(job, coverage string, n int) {
	if m == nil {
		return
	}
	m.TargetsTotal.WithLabelValues(job, coverage).Add(float64(n))
}

// SetLastRequestIndex records progress through the request list.
func (m *Metrics) SetLastRequestIndex(job string, idx int) {
	if m == nil {
		return
	}
	m.LastRequestIndex.WithLabelValues(job).Set(float64(idx))
}

// IncAuditErrors increments the audit error counter.
func (m *Metrics) IncAuditErrors(job string) {
	if m == nil {
		return
	}
	m.AuditErrors.WithLabelValues(job).Inc()
}

// IncMetadataErrors increments the metadata error counter.
func (m *Metrics) IncMetadataErrors(job string) {
	if m == nil {
		return
	}
	m.MetadataErrors.WithLabelValues(job).Inc()
}
