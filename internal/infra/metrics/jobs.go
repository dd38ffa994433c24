package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobSubmissionsTotal,
		jobPollsTotal,
		activePollers,
		jobDispatchTotal,
		jobDurationSeconds,
	)
}

var (
	jobSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_job_submissions_total",
			Help: "Generation submissions by job type and result (ok/error).",
		},
		[]string{"type", "result"},
	)

	jobPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_job_polls_total",
			Help: "Job status fetches by outcome (pending/processing/completed/failed/transport_error).",
		},
		[]string{"outcome"},
	)

	activePollers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "studio_active_pollers",
			Help: "Number of job pollers currently running.",
		},
	)

	jobDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_job_dispatch_total",
			Help: "Terminal job reconciliations by type and status; duplicates are counted as status=duplicate.",
		},
		[]string{"type", "status"},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studio_job_duration_seconds",
			Help:    "Wall-clock time from submission to reconciliation.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900, 1800, 3600},
		},
		[]string{"type", "status"},
	)
)

func IncSubmission(jobType, result string) {
	jobSubmissionsTotal.WithLabelValues(norm(jobType), norm(result)).Inc()
}

func IncPoll(outcome string) {
	jobPollsTotal.WithLabelValues(norm(outcome)).Inc()
}

func PollerStarted() { activePollers.Inc() }
func PollerStopped() { activePollers.Dec() }

func IncDispatch(jobType, status string) {
	jobDispatchTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func ObserveJobDuration(jobType, status string, seconds float64) {
	jobDurationSeconds.WithLabelValues(norm(jobType), norm(status)).Observe(seconds)
}
