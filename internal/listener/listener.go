package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/voicegate/internal/audio"
	"github.com/skypro1111/voicegate/internal/capture"
	"github.com/skypro1111/voicegate/internal/classifier"
	"github.com/skypro1111/voicegate/internal/config"
	"github.com/skypro1111/voicegate/internal/spectrogram"
	"github.com/skypro1111/voicegate/internal/vad"
)

// ErrClassification wraps classifier failures so callers can keep listening
var ErrClassification = errors.New("classification failed")

// Config contains listen loop parameters
type Config struct {
	Duration       float64 // seconds recorded per attempt
	Step           float64 // seconds per RMS chunk
	Range          vad.Range
	VoiceThreshold float64
	Interval       time.Duration // pause between attempts
	StopLabel      string
	MaxAttempts    int // 0 = unlimited
	SaveDir        string
}

// ConfigFrom extracts listen parameters from the service configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Duration:       cfg.Listen.RecordingDuration,
		Step:           cfg.Gate.Step,
		Range:          vad.Range{Low: cfg.Gate.Range.Low, High: cfg.Gate.Range.High},
		VoiceThreshold: cfg.Gate.VoiceThreshold,
		Interval:       cfg.Listen.GetIntervalDuration(),
		StopLabel:      cfg.Listen.StopLabel,
		MaxAttempts:    cfg.Listen.MaxAttempts,
		SaveDir:        cfg.Listen.SaveDir,
	}
}

// Observer receives per-attempt statistics. *metrics.Metrics implements it.
type Observer interface {
	RecordListenAttempt(isVoice bool)
}

// Utterance is the outcome of one listen attempt
type Utterance struct {
	ID uuid.UUID `json:"id"`
	// Voice is the extracted audio on the 16-bit integer scale, at most one second long.
	Voice      audio.Waveform         `json:"-"`
	RMS        float64                `json:"rms"`
	IsVoice    bool                   `json:"is_voice"`
	Prediction *classifier.Prediction `json:"prediction,omitempty"`
	SavedPath  string                 `json:"saved_path,omitempty"`
	Duration   time.Duration          `json:"duration"`
}

// Label returns the predicted label or "" when nothing was classified
func (u *Utterance) Label() string {
	if u.Prediction == nil {
		return ""
	}
	return u.Prediction.Label
}

// Handler is called for every completed attempt. Returning an error stops Run.
type Handler func(ctx context.Context, u *Utterance) error

// Listener ties a capture source, the energy gate, the spectrogram builder and
// a classifier together.
type Listener struct {
	gate       *vad.EnergyGate
	builder    *spectrogram.Builder
	classifier classifier.Classifier
	source     capture.Source
	config     Config
	logger     *slog.Logger
	observer   Observer
}

// Option configures a Listener
type Option func(*Listener)

// WithClassifier sets the classifier. Without one, voiced utterances are
// reported with no prediction.
func WithClassifier(c classifier.Classifier) Option {
	return func(l *Listener) {
		l.classifier = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver sets the attempt observer
func WithObserver(observer Observer) Option {
	return func(l *Listener) {
		l.observer = observer
	}
}

// New creates a listener. The gate and builder must share a sample rate.
func New(gate *vad.EnergyGate, builder *spectrogram.Builder, source capture.Source, cfg Config, opts ...Option) (*Listener, error) {
	if gate == nil || builder == nil || source == nil {
		return nil, fmt.Errorf("%w: gate, builder and source are required", vad.ErrConfiguration)
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("%w: recording duration must be positive, got %v", vad.ErrConfiguration, cfg.Duration)
	}
	if _, err := gate.ChunkSize(cfg.Step); err != nil {
		return nil, err
	}
	if err := cfg.Range.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("%w: max attempts cannot be negative", vad.ErrConfiguration)
	}

	l := &Listener{
		gate:    gate,
		builder: builder,
		source:  source,
		config:  cfg,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}

	if cfg.SaveDir != "" {
		if err := os.MkdirAll(cfg.SaveDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create save directory %s: %w", cfg.SaveDir, err)
		}
	}

	return l, nil
}

// Listen performs one attempt. Capture errors are returned unchanged, so a
// replayed file ends with io.EOF. A classifier failure returns the utterance
// together with an error wrapping ErrClassification.
func (l *Listener) Listen(ctx context.Context) (*Utterance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	l.logger.Debug("Recording", slog.Float64("duration", l.config.Duration))

	voice, err := l.gate.RecordAndExtract(l.source.Capture, l.config.Duration, l.config.Step, l.config.Range)
	if err != nil {
		return nil, err
	}

	u := &Utterance{
		ID:    uuid.New(),
		Voice: voice,
	}

	// an empty extraction is silence
	if len(voice) > 0 {
		u.RMS, u.IsVoice, err = l.gate.Classify(voice, l.config.VoiceThreshold)
		if err != nil {
			return nil, err
		}
	}

	if l.observer != nil {
		l.observer.RecordListenAttempt(u.IsVoice)
	}

	l.logger.Info("Voice check",
		slog.String("utterance_id", u.ID.String()),
		slog.Bool("is_voice", u.IsVoice),
		slog.Float64("rms", u.RMS),
		slog.Int("samples", len(voice)),
	)

	if !u.IsVoice {
		u.Duration = time.Since(start)
		return u, nil
	}

	if l.config.SaveDir != "" {
		path := filepath.Join(l.config.SaveDir, u.ID.String()+".wav")
		if err := audio.WriteWAVFile(path, voice, l.gate.SampleRate(), true); err != nil {
			l.logger.Warn("Failed to save utterance", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			u.SavedPath = path
		}
	}

	if l.classifier != nil {
		tensor := l.builder.Build(voice)
		prediction, err := l.classifier.Classify(ctx, tensor)
		if err != nil {
			u.Duration = time.Since(start)
			return u, fmt.Errorf("%w: %w", ErrClassification, err)
		}
		u.Prediction = prediction

		l.logger.Info("Prediction",
			slog.String("utterance_id", u.ID.String()),
			slog.String("label", prediction.Label),
			slog.Int("index", prediction.Index),
		)
	}

	u.Duration = time.Since(start)
	return u, nil
}

// Run repeats Listen until the stop label is predicted, MaxAttempts is
// reached, the source is exhausted or ctx ends. Classifier failures are
// logged and listening continues; any other error stops the loop.
func (l *Listener) Run(ctx context.Context, handler Handler) error {
	for attempt := 1; ; attempt++ {
		u, err := l.Listen(ctx)
		switch {
		case errors.Is(err, io.EOF):
			l.logger.Info("Capture source exhausted", slog.Int("attempts", attempt-1))
			return nil
		case errors.Is(err, ErrClassification):
			l.logger.Error("Classification failed",
				slog.String("utterance_id", u.ID.String()),
				slog.String("error", err.Error()),
			)
		case err != nil:
			return err
		}

		if handler != nil {
			if err := handler(ctx, u); err != nil {
				return err
			}
		}

		if l.config.StopLabel != "" && u.Label() == l.config.StopLabel {
			l.logger.Info("Stop label predicted", slog.String("label", u.Label()), slog.Int("attempts", attempt))
			return nil
		}

		if l.config.MaxAttempts > 0 && attempt >= l.config.MaxAttempts {
			l.logger.Info("Reached max attempts", slog.Int("attempts", attempt))
			return nil
		}

		if l.config.Interval > 0 {
			timer := time.NewTimer(l.config.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}
