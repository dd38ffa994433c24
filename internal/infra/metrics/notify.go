package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(noticesTotal) }

var noticesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "studio_notices_total",
		Help: "User notices delivered per sink, labeled by level and result.",
	},
	[]string{"sink", "level", "result"}, // sink=log|telegram
)

func IncNotice(sink, level, result string) {
	noticesTotal.WithLabelValues(norm(sink), norm(level), norm(result)).Inc()
}
