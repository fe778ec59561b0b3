package capture

import (
	"errors"
	"fmt"

	"github.com/skypro1111/voicegate/internal/audio"
)

var (
	// ErrSampleRate is returned when a capture asks for a rate the source does not deliver
	ErrSampleRate = errors.New("unsupported sample rate")
	// ErrClosed is returned by a stopped source
	ErrClosed = errors.New("capture source closed")
)

// Source records mono audio. Capture blocks until durationSeconds of audio
// at sampleRate is available and cannot be cancelled early.
type Source interface {
	Capture(durationSeconds float64, sampleRate int) (audio.Waveform, error)
}

// Func adapts a plain function to Source
type Func func(durationSeconds float64, sampleRate int) (audio.Waveform, error)

// Capture calls f
func (f Func) Capture(durationSeconds float64, sampleRate int) (audio.Waveform, error) {
	return f(durationSeconds, sampleRate)
}

// Observer receives capture statistics. *metrics.Metrics implements it.
type Observer interface {
	ObserveCapture(source string, samples int, err error)
}

// Observed wraps a source so every Capture is reported to observer under name
func Observed(name string, src Source, observer Observer) Source {
	if observer == nil {
		return src
	}
	return Func(func(durationSeconds float64, sampleRate int) (audio.Waveform, error) {
		w, err := src.Capture(durationSeconds, sampleRate)
		observer.ObserveCapture(name, len(w), err)
		return w, err
	})
}

// SampleCount returns the number of samples in durationSeconds at sampleRate
func SampleCount(durationSeconds float64, sampleRate int) (int, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("%w: %d Hz", ErrSampleRate, sampleRate)
	}
	if durationSeconds < 0 {
		return 0, fmt.Errorf("capture duration cannot be negative, got %v", durationSeconds)
	}
	return int(durationSeconds * float64(sampleRate)), nil
}
