package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framelens_runs_total",
		Help: "Total number of pipeline runs, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framelens_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framelens_frames_extracted_total",
		Help: "Total number of frames extracted across all runs",
	})

	VisionCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framelens_vision_calls_total",
		Help: "Total number of vision model calls, by result",
	}, []string{"result"})

	QuotaExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framelens_quota_exhausted_total",
		Help: "Number of vision batches cut short by the daily quota",
	})

	CorrelationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framelens_correlations_created_total",
		Help: "Total number of frame/transcript correlations persisted",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framelens_active_workers",
		Help: "Number of workers currently processing analysis jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framelens_retry_total",
		Help: "Total number of job retries",
	}, []string{"attempt"})
)
