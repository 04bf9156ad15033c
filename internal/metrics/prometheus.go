package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice assistant
// service. A nil *Metrics is valid and records nothing, which lets
// tests exercise the pipeline without touching the default registry.
type Metrics struct {
	// WebSocket session metrics
	ActiveSessions    prometheus.Gauge
	SessionsTotal     prometheus.Counter
	WSMessages        *prometheus.CounterVec
	WSMessagesDropped prometheus.Counter

	// Audio capture metrics
	FramesCaptured prometheus.Counter
	FramesDropped  prometheus.Counter
	ReadErrors     prometheus.Counter

	// Utterance segmentation metrics
	UtterancesDetected prometheus.Counter
	UtteranceDuration  prometheus.Histogram
	UtteranceSize      prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionEmpty    prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram

	// LLM metrics
	LLMRequests  *prometheus.CounterVec
	LLMFragments *prometheus.CounterVec
	LLMDuration  *prometheus.HistogramVec

	// Model switching metrics
	ModelSwitches *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// WebSocket session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "assist_active_sessions",
			Help: "Current number of connected WebSocket sessions",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assist_sessions_total",
			Help: "Total number of WebSocket sessions accepted",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assist_ws_messages_total",
			Help: "Total number of WebSocket messages by direction",
		}, []string{"direction"}),
		WSMessagesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assist_ws_messages_dropped_total",
			Help: "Total number of outbound messages dropped for slow clients",
		}),

		// Audio capture metrics
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assist_audio_frames_captured_total",
			Help: "Total number of audio frames delivered by the capture device",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assist_audio_frames_dropped_total",
			Help: "Total number of audio frames dropped by the capture pipeline",
		}),
		ReadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assist_audio_read_errors_total",
			Help: "Total number of transient capture device read errors",
		}),

		// Utterance segmentation metrics
		UtterancesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assist_utterances_detected_total",
			Help: "Total number of utterances emitted by the segmenter",
		}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assist_utterance_duration_seconds",
			Help:    "Duration of detected utterances",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s to ~30s
		}),
		UtteranceSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assist_utterance_size_bytes",
			Help:    "PCM size of detected utterances in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assist_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionEmpty: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assist_transcription_empty_total",
			Help: "Total number of utterances the recognizer found no speech in",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assist_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assist_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// LLM metrics
		LLMRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assist_llm_requests_total",
			Help: "Total number of language model requests by provider",
		}, []string{"provider"}),
		LLMFragments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assist_llm_fragments_total",
			Help: "Total number of streamed reply fragments by provider",
		}, []string{"provider"}),
		LLMDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assist_llm_request_duration_seconds",
			Help:    "End-to-end duration of language model requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}, []string{"provider"}),

		// Model switching metrics
		ModelSwitches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assist_model_switches_total",
			Help: "Total number of model switch attempts by result",
		}, []string{"result"}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assist_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assist_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assist_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordWSConnect records an accepted WebSocket session
func (m *Metrics) RecordWSConnect() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
	m.SessionsTotal.Inc()
}

// RecordWSDisconnect records a closed WebSocket session
func (m *Metrics) RecordWSDisconnect() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// RecordWSMessage records one WebSocket message; direction is "in" or "out"
func (m *Metrics) RecordWSMessage(direction string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction).Inc()
}

// RecordWSDrop records an outbound message dropped for a slow client
func (m *Metrics) RecordWSDrop() {
	if m == nil {
		return
	}
	m.WSMessagesDropped.Inc()
}

// RecordFrameCaptured increments the captured frames counter
func (m *Metrics) RecordFrameCaptured() {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
}

// RecordFrameDropped increments the dropped frames counter
func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// RecordReadError increments the capture read errors counter
func (m *Metrics) RecordReadError() {
	if m == nil {
		return
	}
	m.ReadErrors.Inc()
}

// RecordUtterance records a detected utterance
func (m *Metrics) RecordUtterance(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.UtterancesDetected.Inc()
	m.UtteranceDuration.Observe(durationSeconds)
	m.UtteranceSize.Observe(float64(sizeBytes))
}

// RecordTranscriptionRequest increments the transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionEmpty records an utterance with no recognizable speech
func (m *Metrics) RecordTranscriptionEmpty() {
	if m == nil {
		return
	}
	m.TranscriptionEmpty.Inc()
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordLLMRequest records a completed language model request
func (m *Metrics) RecordLLMRequest(provider string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(provider).Inc()
	m.LLMDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordLLMFragment records one streamed reply fragment
func (m *Metrics) RecordLLMFragment(provider string) {
	if m == nil {
		return
	}
	m.LLMFragments.WithLabelValues(provider).Inc()
}

// RecordModelSwitch records a model switch attempt; result is
// "success", "rate_limited" or "failed"
func (m *Metrics) RecordModelSwitch(result string) {
	if m == nil {
		return
	}
	m.ModelSwitches.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
