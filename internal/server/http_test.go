package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skypro1111/voicegate/internal/audio"
	"github.com/skypro1111/voicegate/internal/classifier"
	"github.com/skypro1111/voicegate/internal/config"
	"github.com/skypro1111/voicegate/internal/metrics"
	"github.com/skypro1111/voicegate/internal/spectrogram"
	"github.com/skypro1111/voicegate/internal/vad"
)

type stubClassifier struct {
	label  string
	err    error
	shape  [4]int
	tensor *spectrogram.Tensor
}

func (s *stubClassifier) Classify(ctx context.Context, tensor *spectrogram.Tensor) (*classifier.Prediction, error) {
	s.shape = tensor.Shape
	s.tensor = tensor
	if s.err != nil {
		return nil, s.err
	}
	return &classifier.Prediction{Label: s.label, Index: 3}, nil
}

func newTestServer(t *testing.T, mutate func(*config.Config), opts ...Option) (*HTTPServer, *metrics.Metrics) {
	t.Helper()

	cfg := config.Default()
	cfg.Classifier.APIKey = "super-secret"
	if mutate != nil {
		mutate(cfg)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	opts = append([]Option{WithGatherer(reg)}, opts...)
	h, err := NewHTTPServer(cfg, slog.New(slog.DiscardHandler), m, opts...)
	require.NoError(t, err)
	return h, m
}

// wavBody returns a one second 16 kHz WAV: five voiced chunks then five silent ones
func wavBody(t *testing.T, sampleRate int) []byte {
	t.Helper()

	w := make(audio.Waveform, sampleRate)
	for i := 0; i < sampleRate/2; i++ {
		w[i] = 0.01
	}

	path := filepath.Join(t.TempDir(), "body.wav")
	require.NoError(t, audio.WriteWAVFile(path, w, sampleRate, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func do(t *testing.T, h *HTTPServer, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, m := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	components := body["components"].(map[string]interface{})
	assert.Equal(t, "disabled", components["classifier"].(map[string]interface{})["status"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/health", "200")))
}

func TestConfigHidesAPIKey(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret")
	assert.Contains(t, rec.Body.String(), `"sample_rate":16000`)
}

func TestRMS(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/v1/rms", wavBody(t, 16000))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var analysis vad.Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.Equal(t, 1600, analysis.ChunkSize)
	assert.Equal(t, 10, analysis.TotalChunks)
	assert.Equal(t, 5, analysis.KeptChunks)
	assert.Equal(t, 8000, analysis.ExtractedSamples)
	assert.Equal(t, 0.5, analysis.ExtractedSeconds)
	assert.True(t, analysis.IsVoice)
	for _, rms := range analysis.RMS {
		assert.InDelta(t, 327, rms, 1)
	}
}

func TestRMSUnfiltered(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/v1/rms?filter=false&step=0.25", wavBody(t, 16000))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var analysis vad.Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.Equal(t, 4000, analysis.ChunkSize)
	assert.Equal(t, 4, analysis.KeptChunks)
	assert.Equal(t, 0.0, analysis.MinRMS)
}

func TestRMSBadRequests(t *testing.T) {
	h, m := newTestServer(t, nil)
	body := wavBody(t, 16000)

	tests := []struct {
		name   string
		target string
		body   []byte
		status int
	}{
		{"invalid step", "/v1/rms?step=abc", body, http.StatusBadRequest},
		{"step below one sample", "/v1/rms?step=0.00001", body, http.StatusBadRequest},
		{"inverted range", "/v1/rms?low=10&high=5", body, http.StatusBadRequest},
		{"invalid filter", "/v1/rms?filter=maybe", body, http.StatusBadRequest},
		{"empty body", "/v1/rms", nil, http.StatusBadRequest},
		{"not a wav", "/v1/rms", []byte("definitely not riff data"), http.StatusBadRequest},
		{"wrong sample rate", "/v1/rms", wavBody(t, 8000), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(m.HTTPErrors.WithLabelValues("POST", "/v1/rms", "client_error")))
}

func TestBodyTooLarge(t *testing.T) {
	h, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.HTTP.MaxBodyBytes = 100
	})

	rec := do(t, h, http.MethodPost, "/v1/rms", wavBody(t, 16000))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSpectrogramSummary(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/v1/spectrogram", wavBody(t, 16000))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary spectrogram.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, [4]int{1, 124, 129, 1}, summary.Shape)
	assert.Equal(t, 0, summary.PeakBin)
}

func TestSpectrogramMsgpack(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/v1/spectrogram?format=msgpack", wavBody(t, 16000))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, classifier.ContentType, rec.Header().Get("Content-Type"))

	var tensor spectrogram.Tensor
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &tensor))
	assert.Equal(t, [4]int{1, 124, 129, 1}, tensor.Shape)
	assert.Len(t, tensor.Data, 124*129)
}

func TestClassifyDisabled(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/v1/classify", wavBody(t, 16000))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClassify(t *testing.T) {
	stub := &stubClassifier{label: "right"}
	h, _ := newTestServer(t, nil, WithClassifier(stub))

	body := wavBody(t, 16000)
	rec := do(t, h, http.MethodPost, "/v1/classify", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var prediction classifier.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prediction))
	assert.Equal(t, "right", prediction.Label)
	assert.Equal(t, 3, prediction.Index)
	assert.Equal(t, [4]int{1, 124, 129, 1}, stub.shape)

	want, err := h.builder.BuildFromEncoded(body)
	require.NoError(t, err)
	require.NotNil(t, stub.tensor)
	assert.Equal(t, want.Data, stub.tensor.Data, "files are classified at their decoded scale")
	assert.Less(t, stub.tensor.Summarize().Max, float32(2))
}

func TestClassifyInvalidWAV(t *testing.T) {
	stub := &stubClassifier{label: "right"}
	h, _ := newTestServer(t, nil, WithClassifier(stub))

	rec := do(t, h, http.MethodPost, "/v1/classify", []byte("not a wav file"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, stub.tensor)
}

func TestClassifyUpstreamError(t *testing.T) {
	h, _ := newTestServer(t, nil, WithClassifier(&stubClassifier{err: errors.New("model offline")}))

	rec := do(t, h, http.MethodPost, "/v1/classify", wavBody(t, 16000))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "model offline")
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, nil)

	do(t, h, http.MethodPost, "/v1/rms", wavBody(t, 16000))

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "voicegate_gate_chunks_scanned_total 10"), rec.Body.String())
	assert.Contains(t, rec.Body.String(), "voicegate_http_requests_total")
}

func TestRootAndNotFound(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/v1/rms")

	rec = do(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/rms", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartStop(t *testing.T) {
	h, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.HTTP.Address = "127.0.0.1"
		cfg.HTTP.Port = 0
	})

	require.NoError(t, h.Start())
	addr := h.Addr()
	require.NotNil(t, addr)

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, h.Stop(context.Background()))
}
