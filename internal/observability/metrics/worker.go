package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// Upload outcomes. "retryable" failures may succeed on redelivery; "rejected"
// ones failed on the document itself and will fail again.
const (
	outcomeSuccess   = "success"
	outcomeRetryable = "retryable"
	outcomeRejected  = "rejected"
	outcomeError     = "error"
)

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	queueLag       prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		service:  service,
		registry: registry,
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "uploads_total",
			Help:      "Processed uploads by outcome.",
		}, []string{"service", "outcome"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "upload_duration_seconds",
			Help:      "Time from picking an upload off the queue to its final status.",
			// OCR polling plus two model calls puts most uploads past 5s.
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
		}, []string{"service", "outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "uploads_in_flight",
			Help:        "Uploads currently being processed.",
			ConstLabels: labels,
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between enqueueing an upload and the worker receiving it.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: labels,
		}),
	}

	registry.MustRegister(
		m.uploadsTotal,
		m.uploadDuration,
		m.inFlight,
		m.queueLag,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartUpload() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishUpload(duration time.Duration, err error) {
	m.inFlight.Dec()
	outcome := uploadOutcome(err)
	m.uploadsTotal.WithLabelValues(m.service, outcome).Inc()
	m.uploadDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

// ObserveQueueLag matches the queue's LagObserver hook.
func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

func uploadOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case domain.IsKind(err, domain.ErrTemporary):
		return outcomeRetryable
	case domain.IsKind(err, domain.ErrClassification),
		domain.IsKind(err, domain.ErrExtraction),
		domain.IsKind(err, domain.ErrValidation),
		domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrUploadNotFound),
		domain.IsKind(err, domain.ErrEntityNotFound):
		return outcomeRejected
	default:
		return outcomeError
	}
}
