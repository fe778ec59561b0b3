package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for voicegate
type Metrics struct {
	// UDP capture metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter
	QueueSize        prometheus.Gauge

	// Capture metrics
	Captures        *prometheus.CounterVec
	CaptureErrors   *prometheus.CounterVec
	CapturedSamples prometheus.Counter

	// Energy gate metrics
	ChunksScanned     prometheus.Counter
	ChunksKept        prometheus.Counter
	Extractions       prometheus.Counter
	EmptyExtractions  prometheus.Counter
	ExtractedDuration prometheus.Histogram

	// Spectrogram metrics
	SpectrogramsBuilt prometheus.Counter
	SpectrogramTime   prometheus.Histogram

	// Listen loop metrics
	ListenAttempts  prometheus.Counter
	VoiceUtterances prometheus.Counter

	// Classification metrics
	ClassificationRequests  prometheus.Counter
	ClassificationSuccesses prometheus.Counter
	ClassificationFailures  prometheus.Counter
	ClassificationDuration  prometheus.Histogram
	ClassificationRetries   prometheus.Counter
	Predictions             *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// UDP capture metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_packets_processed_total",
			Help: "Total number of UDP packets successfully processed",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicegate_packet_queue_size",
			Help: "Current number of packets in processing queue",
		}),

		// Capture metrics
		Captures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_captures_total",
			Help: "Total number of capture calls",
		}, []string{"source"}),
		CaptureErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_capture_errors_total",
			Help: "Total number of failed capture calls",
		}, []string{"source"}),
		CapturedSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_captured_samples_total",
			Help: "Total number of samples returned by capture",
		}),

		// Energy gate metrics
		ChunksScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_gate_chunks_scanned_total",
			Help: "Total number of chunks whose RMS was computed",
		}),
		ChunksKept: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_gate_chunks_kept_total",
			Help: "Total number of chunks kept by the energy gate",
		}),
		Extractions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_gate_extractions_total",
			Help: "Total number of record-and-extract calls",
		}),
		EmptyExtractions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_gate_empty_extractions_total",
			Help: "Total number of extractions that found no voice",
		}),
		ExtractedDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_gate_extracted_seconds",
			Help:    "Duration of extracted voice audio",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0s to 1s
		}),

		// Spectrogram metrics
		SpectrogramsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_spectrograms_built_total",
			Help: "Total number of spectrogram tensors built",
		}),
		SpectrogramTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_spectrogram_duration_seconds",
			Help:    "Time spent building a spectrogram",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~250ms
		}),

		// Listen loop metrics
		ListenAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_listen_attempts_total",
			Help: "Total number of listen attempts",
		}),
		VoiceUtterances: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_voice_utterances_total",
			Help: "Total number of listen attempts that contained voice",
		}),

		// Classification metrics
		ClassificationRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_classification_requests_total",
			Help: "Total number of classification requests sent",
		}),
		ClassificationSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_classification_successes_total",
			Help: "Total number of successful classification requests",
		}),
		ClassificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_classification_failures_total",
			Help: "Total number of failed classification requests",
		}),
		ClassificationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_classification_duration_seconds",
			Help:    "Duration of classification requests",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		}),
		ClassificationRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_classification_retries_total",
			Help: "Total number of classification request retries",
		}),
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_predictions_total",
			Help: "Total number of predictions by label",
		}, []string{"label"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicegate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	m.PacketsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// ObserveCapture records one capture call of a source
func (m *Metrics) ObserveCapture(source string, samples int, err error) {
	m.Captures.WithLabelValues(source).Inc()
	if err != nil {
		m.CaptureErrors.WithLabelValues(source).Inc()
		return
	}
	m.CapturedSamples.Add(float64(samples))
}

// ObserveScan records the chunk counts of one gate scan
func (m *Metrics) ObserveScan(chunks, kept int) {
	m.ChunksScanned.Add(float64(chunks))
	m.ChunksKept.Add(float64(kept))
}

// ObserveExtraction records the length of extracted voice audio
func (m *Metrics) ObserveExtraction(samples, sampleRate int) {
	m.Extractions.Inc()
	if samples == 0 {
		m.EmptyExtractions.Inc()
	}
	if sampleRate > 0 {
		m.ExtractedDuration.Observe(float64(samples) / float64(sampleRate))
	}
}

// ObserveSpectrogram records one spectrogram build
func (m *Metrics) ObserveSpectrogram(elapsed time.Duration) {
	m.SpectrogramsBuilt.Inc()
	m.SpectrogramTime.Observe(elapsed.Seconds())
}

// RecordListenAttempt records one listen attempt and whether it held voice
func (m *Metrics) RecordListenAttempt(isVoice bool) {
	m.ListenAttempts.Inc()
	if isVoice {
		m.VoiceUtterances.Inc()
	}
}

// RecordClassificationRequest increments classification requests counter
func (m *Metrics) RecordClassificationRequest() {
	m.ClassificationRequests.Inc()
}

// RecordClassificationSuccess records a successful classification and its label
func (m *Metrics) RecordClassificationSuccess(durationSeconds float64, label string) {
	m.ClassificationSuccesses.Inc()
	m.ClassificationDuration.Observe(durationSeconds)
	m.Predictions.WithLabelValues(label).Inc()
}

// RecordClassificationFailure records a failed classification
func (m *Metrics) RecordClassificationFailure(durationSeconds float64) {
	m.ClassificationFailures.Inc()
	m.ClassificationDuration.Observe(durationSeconds)
}

// RecordClassificationRetry increments the retry counter
func (m *Metrics) RecordClassificationRetry() {
	m.ClassificationRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
