package audio

import (
	"errors"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrSampleRateMismatch is returned when decoded audio does not match the
// configured rate and resampling is disabled.
var ErrSampleRateMismatch = errors.New("sample rate mismatch")

// WAVDecoder decodes WAV bytes into a mono float waveform at SampleRate.
// The channel axis is squeezed; true multi-channel input is rejected.
type WAVDecoder struct {
	SampleRate int
	// Resample converts other rates to SampleRate instead of failing.
	Resample bool
}

// Decode implements the decode collaborator
func (d WAVDecoder) Decode(data []byte) (Waveform, error) {
	decoded, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}

	return d.FromDecoded(decoded)
}

// FromDecoded squeezes and, when needed, resamples already decoded audio.
func (d WAVDecoder) FromDecoded(decoded *Decoded) (Waveform, error) {
	waveform, err := decoded.Frames.Squeeze()
	if err != nil {
		return nil, err
	}

	if decoded.SampleRate == d.SampleRate {
		return waveform, nil
	}

	if !d.Resample {
		return nil, fmt.Errorf("%w: audio is %d Hz, expected %d Hz", ErrSampleRateMismatch, decoded.SampleRate, d.SampleRate)
	}

	return Resample(waveform, decoded.SampleRate, d.SampleRate)
}

// Resample converts a mono waveform in [-1, 1] between sample rates
func Resample(w Waveform, fromRate, toRate int) (Waveform, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(w) == 0 {
		return w.Clone(), nil
	}

	resampler, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	output, err := resampler.Process([]float64(w))
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	return Waveform(output), nil
}
