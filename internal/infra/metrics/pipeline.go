package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pipelineTransitionsTotal, trackerRequestsTotal) }

var pipelineTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "studio_pipeline_transitions_total",
		Help: "Pipeline status changes per workspace kind, labeled by the status entered.",
	},
	[]string{"kind", "status"}, // kind=room|project, status=generating_3d|idle|...
)

var trackerRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "studio_tracker_requests_total",
		Help: "Job tracker operations by backend, operation and result.",
	},
	[]string{"backend", "op", "result"}, // e.g., backend="redis", op="claim", result="won"
)

func IncPipeline(kind, status string) {
	pipelineTransitionsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func IncTrackerRequest(backend, op, result string) {
	trackerRequestsTotal.WithLabelValues(norm(backend), norm(op), norm(result)).Inc()
}
