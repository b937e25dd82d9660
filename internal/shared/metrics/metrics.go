package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reportIntakeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hra",
		Subsystem: "pipeline",
		Name:      "report_intake_total",
		Help:      "Total reports accepted at intake.",
	})
	analysisStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hra",
		Subsystem: "pipeline",
		Name:      "analysis_started_total",
		Help:      "Total report analyses started.",
	})
	analysisCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hra",
		Subsystem: "pipeline",
		Name:      "analysis_completed_total",
		Help:      "Total report analyses completed.",
	})
	analysisFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hra",
		Subsystem: "pipeline",
		Name:      "analysis_failed_total",
		Help:      "Total report analyses that reached the failed state.",
	})
	providerRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hra",
		Subsystem: "pipeline",
		Name:      "provider_retries_total",
		Help:      "Total retried provider calls after transient failures.",
	})
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hra",
		Subsystem: "pipeline",
		Name:      "analysis_duration_seconds",
		Help:      "Report analysis duration in seconds, intake to terminal state.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// IncReportIntake increments the intake counter.
func IncReportIntake() { reportIntakeTotal.Inc() }

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() { analysisStartedTotal.Inc() }

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() { analysisCompletedTotal.Inc() }

// IncAnalysisFailed increments the failed counter.
func IncAnalysisFailed() { analysisFailedTotal.Inc() }

// IncProviderRetry increments the provider retry counter.
func IncProviderRetry() { providerRetriesTotal.Inc() }

// ObserveAnalysisDuration records a pipeline duration in seconds.
func ObserveAnalysisDuration(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	analysisDuration.Observe(seconds)
}

// Handler exposes the default Prometheus registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
