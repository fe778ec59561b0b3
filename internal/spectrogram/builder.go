package spectrogram

import (
	"errors"
	"fmt"
	"time"

	"github.com/skypro1111/voicegate/internal/audio"
)

var (
	// ErrInvalidSampleRate is returned for a rate too low to hold one STFT frame
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	// ErrNoDecoder is returned by BuildFromEncoded when the builder has no decoder
	ErrNoDecoder = errors.New("no decoder configured")
)

// Decoder turns encoded audio bytes into a mono float waveform at the builder's rate.
type Decoder interface {
	Decode(data []byte) (audio.Waveform, error)
}

// Observer receives build timings. *metrics.Metrics implements it.
type Observer interface {
	ObserveSpectrogram(elapsed time.Duration)
}

// Builder produces spectrogram tensors for one second of audio at a fixed rate.
// It is stateless after construction and safe for concurrent use.
type Builder struct {
	sampleRate int
	decoder    Decoder
	observer   Observer
}

// Option configures a Builder
type Option func(*Builder)

// WithObserver sets the timing observer
func WithObserver(observer Observer) Option {
	return func(b *Builder) {
		b.observer = observer
	}
}

// NewBuilder creates a builder for sampleRate. decoder may be nil when only
// in-memory waveforms are built.
func NewBuilder(sampleRate int, decoder Decoder, opts ...Option) (*Builder, error) {
	if sampleRate < FrameLength {
		return nil, fmt.Errorf("%w: %d Hz is shorter than one %d-sample frame", ErrInvalidSampleRate, sampleRate, FrameLength)
	}

	b := &Builder{
		sampleRate: sampleRate,
		decoder:    decoder,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Shape returns the output shape for the builder's sample rate
func (b *Builder) Shape() [4]int {
	return [4]int{1, FrameCount(b.sampleRate), Bins, 1}
}

// Build truncates the waveform to one second, zero-pads it at the end to
// exactly one second and returns its magnitude spectrogram.
// The result shape depends only on the sample rate.
func (b *Builder) Build(w audio.Waveform) *Tensor {
	start := time.Now()

	signal := w.Truncate(b.sampleRate).PadTo(b.sampleRate)
	tensor := &Tensor{
		Shape: b.Shape(),
		Data:  magnitudeSTFT(signal),
	}

	if b.observer != nil {
		b.observer.ObserveSpectrogram(time.Since(start))
	}

	return tensor
}

// BuildFromWaveform builds the spectrogram of an in-memory mono waveform
func (b *Builder) BuildFromWaveform(w audio.Waveform) *Tensor {
	return b.Build(w)
}

// BuildFromFrames drops the trailing channel axis of single-channel frames
// and builds their spectrogram. Multi-channel frames are rejected.
func (b *Builder) BuildFromFrames(frames audio.Frames) (*Tensor, error) {
	w, err := frames.Squeeze()
	if err != nil {
		return nil, err
	}
	return b.Build(w), nil
}

// BuildFromEncoded decodes data with the configured decoder and builds the
// spectrogram of the result. Decoder errors are returned unchanged.
func (b *Builder) BuildFromEncoded(data []byte) (*Tensor, error) {
	if b.decoder == nil {
		return nil, ErrNoDecoder
	}

	w, err := b.decoder.Decode(data)
	if err != nil {
		return nil, err
	}

	return b.Build(w), nil
}
