package vad

import (
	"fmt"
	"log/slog"

	"github.com/skypro1111/voicegate/internal/audio"
)

// CaptureFunc records durationSeconds of mono audio at sampleRate.
// It blocks for the whole duration and returns float samples in [-1, 1].
type CaptureFunc func(durationSeconds float64, sampleRate int) (audio.Waveform, error)

// Observer receives gate statistics. *metrics.Metrics implements it.
type Observer interface {
	ObserveScan(chunks, kept int)
	ObserveExtraction(samples, sampleRate int)
}

// EnergyGate separates voice from silence by per-chunk RMS energy.
// It holds only construction config and is safe for concurrent use.
type EnergyGate struct {
	sampleRate int
	logger     *slog.Logger
	observer   Observer
}

// Option configures an EnergyGate
type Option func(*EnergyGate)

// WithLogger sets the logger used for extraction summaries
func WithLogger(logger *slog.Logger) Option {
	return func(g *EnergyGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithObserver sets the statistics observer
func WithObserver(observer Observer) Option {
	return func(g *EnergyGate) {
		g.observer = observer
	}
}

// NewEnergyGate creates a gate for audio at sampleRate
func NewEnergyGate(sampleRate int, opts ...Option) (*EnergyGate, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrConfiguration, sampleRate)
	}

	g := &EnergyGate{
		sampleRate: sampleRate,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// SampleRate returns the rate the gate was built for
func (g *EnergyGate) SampleRate() int {
	return g.sampleRate
}

// MaxVoiceSamples is the cap applied to extracted voice: one second of audio.
func (g *EnergyGate) MaxVoiceSamples() int {
	return g.sampleRate
}

// ChunkSize returns int(step * sample rate), rejecting sizes below one sample.
func (g *EnergyGate) ChunkSize(step float64) (int, error) {
	size := audio.ChunkSize(step, g.sampleRate)
	if size <= 0 {
		return 0, fmt.Errorf("%w: step %vs at %d Hz gives chunk size %d", ErrConfiguration, step, g.sampleRate, size)
	}
	return size, nil
}

// Classify computes the RMS of signal and reports rms > threshold.
// The comparison is strict: an RMS equal to the threshold is not voice.
func (g *EnergyGate) Classify(signal audio.Waveform, threshold float64) (float64, bool, error) {
	rms, err := ComputeRMS(signal)
	if err != nil {
		return 0, false, err
	}
	return rms, rms > threshold, nil
}

// ScanResult is the outcome of a chunked RMS scan
type ScanResult struct {
	ChunkSize   int
	TotalChunks int
	// Dropped is the length of the trailing remainder that did not fill a chunk.
	Dropped int
	// RMS holds one value per kept chunk, in input order.
	RMS []float64
	// Extracted is the in-order concatenation of kept chunks.
	Extracted audio.Waveform
}

// Kept returns the number of chunks that passed the filter
func (r *ScanResult) Kept() int {
	return len(r.RMS)
}

// Scan splits signal into chunks of step seconds and computes the RMS of each.
// With filter set only chunks whose RMS lies strictly inside rng are kept;
// otherwise every chunk is kept and rng is not consulted.
// The extracted waveform is never capped.
func (g *EnergyGate) Scan(signal audio.Waveform, step float64, rng Range, filter bool) (*ScanResult, error) {
	size, err := g.ChunkSize(step)
	if err != nil {
		return nil, err
	}
	if filter {
		if err := rng.Validate(); err != nil {
			return nil, err
		}
	}

	return g.scan(signal, size, rng, filter)
}

func (g *EnergyGate) scan(signal audio.Waveform, size int, rng Range, filter bool) (*ScanResult, error) {
	chunks, dropped, err := audio.SplitChunks(signal, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	result := &ScanResult{
		ChunkSize:   size,
		TotalChunks: len(chunks),
		Dropped:     dropped,
		RMS:         make([]float64, 0, len(chunks)),
	}

	kept := make([]audio.Waveform, 0, len(chunks))
	for _, chunk := range chunks {
		rms, err := ComputeRMS(chunk)
		if err != nil {
			return nil, err
		}
		if filter && !rng.Contains(rms) {
			continue
		}
		result.RMS = append(result.RMS, rms)
		kept = append(kept, chunk)
	}
	result.Extracted = audio.Concat(kept...)

	if g.observer != nil {
		g.observer.ObserveScan(result.TotalChunks, result.Kept())
	}

	return result, nil
}

// RecordAndExtract captures duration seconds through capture, converts the
// samples to the 16-bit integer scale and keeps the chunks whose RMS lies
// strictly inside rng. The concatenated voice is truncated to one second.
//
// Capture errors are returned unchanged. Silence yields an empty waveform.
func (g *EnergyGate) RecordAndExtract(capture CaptureFunc, duration, step float64, rng Range) (audio.Waveform, error) {
	if capture == nil {
		return nil, fmt.Errorf("%w: capture function is required", ErrConfiguration)
	}
	size, err := g.ChunkSize(step)
	if err != nil {
		return nil, err
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	recorded, err := capture(duration, g.sampleRate)
	if err != nil {
		return nil, err
	}

	result, err := g.scan(recorded.ToPCM16Scale(), size, rng, true)
	if err != nil {
		return nil, err
	}

	voice := result.Extracted.Truncate(g.MaxVoiceSamples())
	seconds := voice.Seconds(g.sampleRate)

	g.logger.Info(fmt.Sprintf("Extracted %g seconds of voice audio", seconds),
		"samples", len(voice),
		"kept_chunks", result.Kept(),
		"total_chunks", result.TotalChunks,
		"range", rng.String())

	if g.observer != nil {
		g.observer.ObserveExtraction(len(voice), g.sampleRate)
	}

	return voice, nil
}
