// Package metrics exposes Prometheus instrumentation for the
// transcription service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	SessionDuration  prometheus.Histogram
	FramesProcessed  prometheus.Counter
	SpeechFrames     prometheus.Counter
	UtterancesTotal  *prometheus.CounterVec
	PartialFlushes   prometheus.Counter
	TranscriptionReq *prometheus.CounterVec
	TranscriptionDur prometheus.Histogram
	DiarizationReq   *prometheus.CounterVec
	AlignedTurns     prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates and registers all service metrics
func New() *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "transcription_active_sessions",
			Help: "Number of currently active transcription sessions",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_sessions_total",
			Help: "Total number of transcription sessions started",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcription_session_duration_seconds",
			Help:    "Duration of completed transcription sessions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_frames_processed_total",
			Help: "Total number of audio frames processed",
		}),
		SpeechFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_speech_frames_total",
			Help: "Total number of frames classified as speech",
		}),
		UtterancesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcription_utterances_total",
			Help: "Utterances by outcome",
		}, []string{"outcome"}),
		PartialFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_partial_flushes_total",
			Help: "Total number of partial transcription flushes",
		}),
		TranscriptionReq: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcription_engine_requests_total",
			Help: "Transcription engine requests by status",
		}, []string{"status"}),
		TranscriptionDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcription_engine_duration_seconds",
			Help:    "Transcription engine request latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DiarizationReq: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "diarization_engine_requests_total",
			Help: "Diarization engine requests by status",
		}, []string{"status"}),
		AlignedTurns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "diarization_aligned_turns_total",
			Help: "Total number of speaker-attributed turns produced",
		}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by path and status code",
		}, []string{"path", "code"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by path",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

// RecordSessionStart updates counters for a newly started session
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnd updates counters for a finished session
func (m *Metrics) RecordSessionEnd(duration time.Duration) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordFrame counts one processed frame and its VAD decision
func (m *Metrics) RecordFrame(isSpeech bool) {
	m.FramesProcessed.Inc()
	if isSpeech {
		m.SpeechFrames.Inc()
	}
}

// RecordUtterance counts an utterance outcome: finalized or discarded
func (m *Metrics) RecordUtterance(outcome string) {
	m.UtterancesTotal.WithLabelValues(outcome).Inc()
}

// RecordPartialFlush counts one partial transcription flush
func (m *Metrics) RecordPartialFlush() {
	m.PartialFlushes.Inc()
}

// RecordTranscription records one engine round trip
func (m *Metrics) RecordTranscription(duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.TranscriptionReq.WithLabelValues(status).Inc()
	m.TranscriptionDur.Observe(duration.Seconds())
}

// RecordDiarization records one diarization engine round trip
func (m *Metrics) RecordDiarization(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.DiarizationReq.WithLabelValues(status).Inc()
}

// RecordAlignment counts the turns produced by one alignment pass
func (m *Metrics) RecordAlignment(turns int) {
	m.AlignedTurns.Add(float64(turns))
}

// RecordHTTPRequest records one served HTTP request
func (m *Metrics) RecordHTTPRequest(path, code string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(path, code).Inc()
	m.HTTPDuration.WithLabelValues(path).Observe(duration.Seconds())
}
