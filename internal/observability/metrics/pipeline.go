package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// PipelineMetrics implements ports.PipelineObserver.
type PipelineMetrics struct {
	service string

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	discrepancies *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by final state and document type.",
		},
		[]string{"service", "state", "document_type"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "End-to-end pipeline run duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"service", "outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of completed pipeline stages in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "stage"},
	)
	discrepancies := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "discrepancies_flagged_total",
			Help:      "Discrepancies flagged on entity writes.",
		},
		[]string{"service", "entity_kind"},
	)

	registerer.MustRegister(runsTotal, runDuration, stageDuration, discrepancies)

	return &PipelineMetrics{
		service:       service,
		runsTotal:     runsTotal,
		runDuration:   runDuration,
		stageDuration: stageDuration,
		discrepancies: discrepancies,
	}
}

func (m *PipelineMetrics) StageCompleted(stage domain.PipelineState, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(duration.Seconds())
}

func (m *PipelineMetrics) RunFinished(state domain.PipelineState, docType domain.DocumentType, duration time.Duration) {
	if docType == "" {
		docType = domain.DocumentUnknown
	}
	m.runsTotal.WithLabelValues(m.service, string(state), string(docType)).Inc()

	outcome := "success"
	if state.Failed() {
		outcome = "failed"
	}
	m.runDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) DiscrepanciesFlagged(kind domain.EntityKind, count int) {
	if count <= 0 {
		return
	}
	m.discrepancies.WithLabelValues(m.service, string(kind)).Add(float64(count))
}
