package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(streamFramesTotal, streamMalformedTotal, streamsTotal)
}

var (
	streamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_stream_frames_total",
			Help: "Chat stream frames applied, by kind (text/message_id/action/error).",
		},
		[]string{"kind"},
	)

	streamMalformedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studio_stream_malformed_frames_total",
			Help: "Chat stream frames skipped because the payload was not valid JSON.",
		},
	)

	streamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_streams_total",
			Help: "Chat submissions by result (completed/partial/rolled_back).",
		},
		[]string{"result"},
	)
)

func IncFrame(kind string) {
	streamFramesTotal.WithLabelValues(norm(kind)).Inc()
}

func IncMalformedFrame() { streamMalformedTotal.Inc() }

func IncStream(result string) {
	streamsTotal.WithLabelValues(norm(result)).Inc()
}
