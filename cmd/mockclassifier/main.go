// Command mockclassifier serves a stand-in classification endpoint for local
// testing. It accepts msgpack spectrogram requests and answers with a label
// picked from the tensor's dominant frequency bin.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skypro1111/voicegate/internal/classifier"
	"github.com/skypro1111/voicegate/internal/spectrogram"
)

// defaultLabels is the mini speech commands class order
var defaultLabels = []string{"down", "go", "left", "no", "right", "stop", "up", "yes"}

type mockServer struct {
	labels     []string
	scoresOnly bool
	delay      time.Duration
	apiKey     string
	logger     *slog.Logger
}

func (m *mockServer) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if m.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+m.apiKey {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	var req classifier.Request
	if err := msgpack.Unmarshal(body, &req); err != nil {
		http.Error(w, "Error decoding msgpack request", http.StatusBadRequest)
		return
	}

	tensor := &spectrogram.Tensor{Shape: req.Shape, Data: req.Data}
	if tensor.Size() != len(tensor.Data) || len(tensor.Data) == 0 {
		http.Error(w, fmt.Sprintf("shape %v does not match %d values", req.Shape, len(req.Data)), http.StatusBadRequest)
		return
	}

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	prediction := m.predict(tensor)

	m.logger.Info("Classification request",
		slog.String("request_id", req.RequestID),
		slog.Int("sample_rate", req.SampleRate),
		slog.Any("shape", req.Shape),
		slog.Int("index", prediction.Index),
		slog.String("label", prediction.Label),
	)

	data, err := msgpack.Marshal(prediction)
	if err != nil {
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", classifier.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// predict scores every label and puts the peak bin's class on top
func (m *mockServer) predict(tensor *spectrogram.Tensor) *classifier.Prediction {
	index := tensor.Summarize().PeakBin % len(m.labels)

	scores := make([]float32, len(m.labels))
	for i := range scores {
		scores[i] = 0.1 / float32(len(scores))
	}
	scores[index] += 0.9

	prediction := &classifier.Prediction{Scores: scores}
	if !m.scoresOnly {
		prediction.Label = m.labels[index]
		prediction.Index = index
	}
	return prediction
}

func newRootCmd() *cobra.Command {
	var (
		addr       string
		labelsPath string
		scoresOnly bool
		delay      time.Duration
		apiKey     string
	)

	cmd := &cobra.Command{
		Use:           "mockclassifier",
		Short:         "Serve a fake command classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

			labels := defaultLabels
			if labelsPath != "" {
				var err error
				labels, err = classifier.LoadLabels(labelsPath)
				if err != nil {
					return err
				}
			}

			m := &mockServer{
				labels:     labels,
				scoresOnly: scoresOnly,
				delay:      delay,
				apiKey:     apiKey,
				logger:     logger,
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/classify", m.handleClassify)

			logger.Info("Mock classifier starting",
				slog.String("endpoint", "http://"+addr+"/classify"),
				slog.Int("labels", len(labels)),
				slog.Bool("scores_only", scoresOnly),
			)

			return http.ListenAndServe(addr, mux)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "localhost:8090", "listen address")
	f.StringVar(&labelsPath, "labels", "", "labels file, one class per line")
	f.BoolVar(&scoresOnly, "scores-only", false, "answer with scores only and let the client resolve the label")
	f.DurationVar(&delay, "delay", 50*time.Millisecond, "simulated inference time")
	f.StringVar(&apiKey, "api-key", "", "require this bearer token")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
