package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stage_latency_seconds",
			Help:    "per-stage invocation latency.",
			Buckets: []float64{0.005, 0.05, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	stageInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stage_invocations_total", Help: "stage invocations by outcome"},
		[]string{"stage", "status"},
	)

	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipeline_runs_total", Help: "pipeline runs by outcome"},
		[]string{"status"},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gateway_http_requests_total", Help: "gateway requests by code, uri and method"},
		[]string{"code", "uri", "method"},
	)

	gatewayResponseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_response_time",
			Help:    "gateway http response time.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(
		stageLatency,
		stageInvocations,
		pipelineRuns,
		gatewayRequests,
		gatewayResponseTime,
	)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStage records one stage invocation outcome and latency.
func ObserveStage(stage string, err error, d time.Duration) {
	stageInvocations.WithLabelValues(stage, status(err)).Inc()
	stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// ObservePipelineRun records one complete pipeline run outcome.
func ObservePipelineRun(err error) {
	pipelineRuns.WithLabelValues(status(err)).Inc()
}
