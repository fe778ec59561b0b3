package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skypro1111/voicegate/internal/audio"
	"github.com/skypro1111/voicegate/internal/capture"
	"github.com/skypro1111/voicegate/internal/classifier"
	"github.com/skypro1111/voicegate/internal/config"
	"github.com/skypro1111/voicegate/internal/metrics"
	"github.com/skypro1111/voicegate/internal/spectrogram"
	"github.com/skypro1111/voicegate/internal/vad"
)

const (
	serviceName    = "voicegate"
	serviceVersion = "1.0.0"
)

// HTTPServer provides the analysis API and monitoring endpoints
type HTTPServer struct {
	server     *http.Server
	router     chi.Router
	logger     *slog.Logger
	config     *config.Config
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	gate       *vad.EnergyGate
	builder    *spectrogram.Builder
	classifier classifier.Classifier
	udpSource  *capture.UDPSource

	// Server state
	startTime time.Time
	listener  net.Listener
	mu        sync.RWMutex
}

// Option configures an HTTPServer
type Option func(*HTTPServer)

// WithClassifier enables POST /v1/classify
func WithClassifier(c classifier.Classifier) Option {
	return func(h *HTTPServer) {
		h.classifier = c
	}
}

// WithUDPSource reports the network microphone in /health and /stats
func WithUDPSource(src *capture.UDPSource) Option {
	return func(h *HTTPServer) {
		h.udpSource = src
	}
}

// WithGatherer sets the registry served on /metrics. Defaults to the global registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *HTTPServer) {
		if g != nil {
			h.gatherer = g
		}
	}
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, opts ...Option) (*HTTPServer, error) {
	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		metrics:   m,
		gatherer:  prometheus.DefaultGatherer,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}

	gateOpts := []vad.Option{vad.WithLogger(logger)}
	var builderOpts []spectrogram.Option
	if m != nil {
		gateOpts = append(gateOpts, vad.WithObserver(m))
		builderOpts = append(builderOpts, spectrogram.WithObserver(m))
	}

	gate, err := vad.NewEnergyGate(cfg.Audio.SampleRate, gateOpts...)
	if err != nil {
		return nil, err
	}
	decoder := audio.WAVDecoder{SampleRate: cfg.Audio.SampleRate, Resample: cfg.Audio.Resample}
	builder, err := spectrogram.NewBuilder(cfg.Audio.SampleRate, decoder, builderOpts...)
	if err != nil {
		return nil, err
	}
	h.gate = gate
	h.builder = builder

	h.router = chi.NewRouter()
	h.setupRoutes(h.router)

	h.server = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      h.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h, nil
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(r chi.Router) {
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/config", h.withMetrics("/config", h.handleConfig))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rms", h.withMetrics("/v1/rms", h.handleRMS))
		r.Post("/spectrogram", h.withMetrics("/v1/spectrogram", h.handleSpectrogram))
		r.Post("/classify", h.withMetrics("/v1/classify", h.handleClassify))
	})

	r.Get("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the router, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		if h.metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listen address and serves in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start
func (h *HTTPServer) Addr() net.Addr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{
		"energy_gate": map[string]interface{}{
			"status":      "running",
			"sample_rate": h.gate.SampleRate(),
		},
		"classifier": map[string]interface{}{
			"status": h.classifierStatus(),
		},
	}

	if h.udpSource != nil {
		udpStats := h.udpSource.GetStatistics()
		components["udp_source"] = map[string]interface{}{
			"status":            "running",
			"stream_active":     udpStats.StreamActive,
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	})
}

func (h *HTTPServer) classifierStatus() string {
	if h.classifier == nil {
		return "disabled"
	}
	return "running"
}

// handleConfig implements the /config endpoint. The API key is never serialized.
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
	}

	if h.udpSource != nil {
		stats["udp"] = h.udpSource.GetStatistics()
	}

	if client, ok := h.classifier.(interface{ GetStats() classifier.ClientStats }); ok {
		stats["classifier"] = client.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRMS implements POST /v1/rms: chunked RMS analysis of a WAV body
func (h *HTTPServer) handleRMS(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseRMSParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	waveform, ok := h.readWaveform(w, r)
	if !ok {
		return
	}

	if params.pcm16 {
		waveform = waveform.ToPCM16Scale()
	}

	analysis, err := h.gate.Analyze(waveform, params.step, params.rng, params.filter, params.threshold)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

type rmsParams struct {
	step      float64
	rng       vad.Range
	filter    bool
	pcm16     bool
	threshold float64
}

func (h *HTTPServer) parseRMSParams(r *http.Request) (*rmsParams, error) {
	gate := h.config.Gate
	p := &rmsParams{
		step:      gate.Step,
		rng:       vad.Range{Low: gate.Range.Low, High: gate.Range.High},
		filter:    true,
		pcm16:     true,
		threshold: gate.VoiceThreshold,
	}

	q := r.URL.Query()
	floats := map[string]*float64{
		"step":      &p.step,
		"low":       &p.rng.Low,
		"high":      &p.rng.High,
		"threshold": &p.threshold,
	}
	for name, dst := range floats {
		if v := q.Get(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %q", name, v)
			}
			*dst = f
		}
	}

	bools := map[string]*bool{
		"filter": &p.filter,
		"pcm16":  &p.pcm16,
	}
	for name, dst := range bools {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %q", name, v)
			}
			*dst = b
		}
	}

	return p, nil
}

// handleSpectrogram implements POST /v1/spectrogram
func (h *HTTPServer) handleSpectrogram(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	tensor, err := h.builder.BuildFromEncoded(body)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	if r.URL.Query().Get("format") == "msgpack" {
		data, err := msgpack.Marshal(tensor)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", classifier.ContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	writeJSON(w, http.StatusOK, tensor.Summarize())
}

// handleClassify implements POST /v1/classify
func (h *HTTPServer) handleClassify(w http.ResponseWriter, r *http.Request) {
	if h.classifier == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("classifier is not configured"))
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	// Files are classified from their decoded [-1, 1] samples.
	tensor, err := h.builder.BuildFromEncoded(body)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	prediction, err := h.classifier.Classify(r.Context(), tensor)
	if err != nil {
		h.logger.Error("Classification failed",
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                "API documentation",
			"GET /health":          "Service health check",
			"GET /config":          "Get service configuration",
			"GET /stats":           "Get service statistics",
			"GET /metrics":         "Prometheus metrics",
			"POST /v1/rms":         "Chunked RMS analysis of a WAV body (step, low, high, filter, pcm16, threshold)",
			"POST /v1/spectrogram": "Spectrogram summary of a WAV body (format=msgpack for the full tensor)",
			"POST /v1/classify":    "Classify the command spoken in a WAV body",
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *HTTPServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	reader := io.Reader(r.Body)
	if h.config.HTTP.MaxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.config.HTTP.MaxBodyBytes)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read body: %w", err))
		return nil, false
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("request body is empty"))
		return nil, false
	}

	return body, true
}

func (h *HTTPServer) readWaveform(w http.ResponseWriter, r *http.Request) (audio.Waveform, bool) {
	body, ok := h.readBody(w, r)
	if !ok {
		return nil, false
	}

	decoder := audio.WAVDecoder{SampleRate: h.config.Audio.SampleRate, Resample: h.config.Audio.Resample}
	waveform, err := decoder.Decode(body)
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}

	return waveform, true
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, vad.ErrConfiguration),
		errors.Is(err, vad.ErrEmptyInput),
		errors.Is(err, audio.ErrInvalidWAV),
		errors.Is(err, audio.ErrNotMono):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrSampleRateMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
