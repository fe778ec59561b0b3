package audio

import (
	"errors"
	"fmt"
	"math"
)

// PCM16Scale is the factor applied when converting float samples in [-1, 1]
// to the 16-bit integer representation.
const PCM16Scale = 32767

// ErrNotMono is returned when multi-channel audio reaches a mono-only interface.
var ErrNotMono = errors.New("audio is not mono")

// Waveform is an ordered sequence of samples at a fixed sample rate.
// Values are either floats in [-1, 1] or integers on the 16-bit scale;
// operations never mutate a waveform in place.
type Waveform []float64

// Frames is multi-channel audio laid out frame-major: Frames[i][c] is
// sample i of channel c.
type Frames [][]float64

// Len returns the number of samples
func (w Waveform) Len() int {
	return len(w)
}

// Seconds returns the duration of the waveform at the given sample rate
func (w Waveform) Seconds(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(w)) / float64(sampleRate)
}

// Clone returns an independent copy
func (w Waveform) Clone() Waveform {
	out := make(Waveform, len(w))
	copy(out, w)
	return out
}

// Truncate returns a copy holding at most n samples from the start.
func (w Waveform) Truncate(n int) Waveform {
	if n < 0 {
		n = 0
	}
	if len(w) <= n {
		return w.Clone()
	}
	out := make(Waveform, n)
	copy(out, w[:n])
	return out
}

// PadTo returns a copy zero-padded at the end to exactly n samples.
// A waveform already at least n long is returned unchanged (copied).
func (w Waveform) PadTo(n int) Waveform {
	if len(w) >= n {
		return w.Clone()
	}
	out := make(Waveform, n)
	copy(out, w)
	return out
}

// ToPCM16Scale converts float samples to the 16-bit integer representation:
// each value is multiplied by 32767, truncated toward zero and clamped to int16.
func (w Waveform) ToPCM16Scale() Waveform {
	out := make(Waveform, len(w))
	for i, v := range w {
		s := math.Trunc(v * PCM16Scale)
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		out[i] = s
	}
	return out
}

// Normalize16 maps 16-bit scaled samples back to floats in [-1, 1].
func (w Waveform) Normalize16() Waveform {
	out := make(Waveform, len(w))
	for i, v := range w {
		out[i] = v / 32768.0
	}
	return out
}

// PCM16 returns the samples as int16 values, clamping anything out of range.
// The waveform must already be on the 16-bit scale.
func (w Waveform) PCM16() []int16 {
	out := make([]int16, len(w))
	for i, v := range w {
		switch {
		case v > math.MaxInt16:
			out[i] = math.MaxInt16
		case v < math.MinInt16:
			out[i] = math.MinInt16
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// FromPCM16 builds a 16-bit scaled waveform from int16 samples
func FromPCM16(samples []int16) Waveform {
	out := make(Waveform, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}

// Concat joins waveforms in order into a new waveform.
// The result is empty (non-nil) when no samples are given.
func Concat(parts ...Waveform) Waveform {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make(Waveform, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Channels returns the channel count of the first frame, or 0 for empty audio.
func (f Frames) Channels() int {
	if len(f) == 0 {
		return 0
	}
	return len(f[0])
}

// Squeeze drops the trailing channel axis of mono frames.
// Multi-channel audio is rejected; it is never downmixed.
func (f Frames) Squeeze() (Waveform, error) {
	out := make(Waveform, len(f))
	for i, frame := range f {
		if len(frame) != 1 {
			return nil, fmt.Errorf("%w: frame %d has %d channels", ErrNotMono, i, len(frame))
		}
		out[i] = frame[0]
	}
	return out, nil
}

// FramesFromWaveform wraps a mono waveform into single-channel frames
func FramesFromWaveform(w Waveform) Frames {
	out := make(Frames, len(w))
	for i, v := range w {
		out[i] = []float64{v}
	}
	return out
}
