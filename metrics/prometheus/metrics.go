// Package prometheus provides Prometheus metrics for the transcription core:
// active session counts, STT/translation call latency and volume, and
// recording-save outcomes (spec.md's ambient observability stack).
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "transcribe_core"

var (
	// sessionsActive is a gauge of currently connected websocket sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected transcription sessions",
		},
	)

	// sttRequestDuration is a histogram of STT provider call duration.
	sttRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_request_duration_seconds",
			Help:      "Duration of speech-to-text provider calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	// sttRequestsTotal is a counter of STT provider calls.
	sttRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_requests_total",
			Help:      "Total number of speech-to-text provider calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error
	)

	// translationRequestDuration is a histogram of LLM translation call duration.
	translationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_request_duration_seconds",
			Help:      "Duration of translation provider calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	// translationRequestsTotal is a counter of translation calls.
	translationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_requests_total",
			Help:      "Total number of translation provider calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error, throttled
	)

	// segmentsFinalizedTotal is a counter of finalized transcript segments.
	segmentsFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_finalized_total",
			Help:      "Total number of transcript segments finalized, by split reason",
		},
		[]string{"reason"}, // reason: silence, soft_threshold, hard_threshold, stop
	)

	// recordingSavesTotal is a counter of recording save attempts.
	recordingSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_saves_total",
			Help:      "Total number of recording save attempts",
		},
		[]string{"status"}, // status: success, error
	)

	// allMetrics is the list of collectors registered with a new Exporter.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		sttRequestDuration,
		sttRequestsTotal,
		translationRequestDuration,
		translationRequestsTotal,
		segmentsFinalizedTotal,
		recordingSavesTotal,
	}
)

// Status label values shared across Record* calls.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusThrottled = "throttled"
)

// SessionStarted records a new active session (spec.md §5: session lifecycle).
func SessionStarted() {
	sessionsActive.Inc()
}

// SessionEnded records a session's disconnection.
func SessionEnded() {
	sessionsActive.Dec()
}

// RecordSTTRequest records one speech-to-text provider call.
func RecordSTTRequest(provider, model, status string, durationSeconds float64) {
	sttRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	sttRequestsTotal.WithLabelValues(provider, model, status).Inc()
}

// RecordTranslationRequest records one LLM translation call.
func RecordTranslationRequest(provider, model, status string, durationSeconds float64) {
	translationRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	translationRequestsTotal.WithLabelValues(provider, model, status).Inc()
}

// RecordSegmentFinalized records one transcript segment finalization, labeled
// by the split policy that triggered it (spec.md §4.6).
func RecordSegmentFinalized(reason string) {
	segmentsFinalizedTotal.WithLabelValues(reason).Inc()
}

// RecordRecordingSave records the outcome of one recording.Saver.Save call.
func RecordRecordingSave(status string) {
	recordingSavesTotal.WithLabelValues(status).Inc()
}
