package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// Analysis pipeline metrics
	AudioTicksProcessed = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "hireprep_audio_ticks_processed_total",
		Help: "Total number of audio analysis ticks processed",
	})

	FaceFramesProcessed = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "hireprep_face_frames_processed_total",
		Help: "Total number of landmark frames processed, by detection outcome",
	}, []string{"outcome"})

	DetectorRetries = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "hireprep_detector_retries_total",
		Help: "Total number of landmark detector readiness retries",
	})

	// Session metrics
	SessionsActive = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "hireprep_sessions_active",
		Help: "Number of currently active interview sessions",
	})

	SessionsStarted = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "hireprep_sessions_started_total",
		Help: "Total number of interview sessions started",
	})

	AssessmentsSaved = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "hireprep_assessments_saved_total",
		Help: "Total number of question assessments finalized",
	})

	// Speech-to-text metrics
	STTWordsTranscribed = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "hireprep_stt_words_transcribed_total",
		Help: "Total number of words transcribed by the speech side channel",
	}, []string{"provider"})

	STTErrors = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "hireprep_stt_errors_total",
		Help: "Total number of speech-to-text errors",
	}, []string{"provider"})

	// Live voice link metrics
	LiveEventsReceived = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "hireprep_live_events_received_total",
		Help: "Total number of events received from the realtime voice link",
	}, []string{"type"})

	LiveAudioChunksSent = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "hireprep_live_audio_chunks_sent_total",
		Help: "Total number of audio chunks streamed to the realtime voice link",
	})

	// Report metrics
	ReportLatency = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "hireprep_report_generation_seconds",
		Help:    "Latency of LLM report generation calls",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	// Messaging metrics
	AssessmentEventsPublished = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "hireprep_assessment_events_published_total",
		Help: "Total number of assessment events published to AMQP",
	})

	// WebSocket metrics
	WSClientsConnected = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "hireprep_ws_clients_connected",
		Help: "Number of connected metrics websocket clients",
	})
)

// Handler returns the HTTP handler serving the Prometheus endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
