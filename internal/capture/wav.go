package capture

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/skypro1111/voicegate/internal/audio"
)

// WAVSource replays a WAV file as consecutive capture windows.
// Once the file is exhausted Capture returns io.EOF unless looping.
type WAVSource struct {
	samples    audio.Waveform
	sampleRate int
	loop       bool
	realtime   bool
	sleep      func(time.Duration)

	mu     sync.Mutex
	cursor int
}

// WAVOption configures a WAVSource
type WAVOption func(*WAVSource)

// WithLoop restarts from the beginning of the file when it runs out
func WithLoop(loop bool) WAVOption {
	return func(s *WAVSource) {
		s.loop = loop
	}
}

// WithRealtime makes Capture block for the requested duration like a microphone
func WithRealtime(realtime bool) WAVOption {
	return func(s *WAVSource) {
		s.realtime = realtime
	}
}

// NewWAVSource decodes the file at path for capture at sampleRate.
// Mismatched files are resampled when resample is set and rejected otherwise.
func NewWAVSource(path string, sampleRate int, resample bool, opts ...WAVOption) (*WAVSource, error) {
	decoded, err := audio.ReadWAVFile(path)
	if err != nil {
		return nil, err
	}

	w, err := audio.WAVDecoder{SampleRate: sampleRate, Resample: resample}.FromDecoded(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	return NewWaveformSource(w, sampleRate, opts...)
}

// NewWaveformSource serves an in-memory float waveform recorded at sampleRate
func NewWaveformSource(w audio.Waveform, sampleRate int, opts ...WAVOption) (*WAVSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d Hz", ErrSampleRate, sampleRate)
	}

	s := &WAVSource{
		samples:    w.Clone(),
		sampleRate: sampleRate,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Capture returns the next durationSeconds of the file. A window running past
// the end is zero-padded, or wraps around when looping.
func (s *WAVSource) Capture(durationSeconds float64, sampleRate int) (audio.Waveform, error) {
	if sampleRate != s.sampleRate {
		return nil, fmt.Errorf("%w: source is %d Hz, capture asked for %d Hz", ErrSampleRate, s.sampleRate, sampleRate)
	}

	n, err := SampleCount(durationSeconds, sampleRate)
	if err != nil {
		return nil, err
	}

	w, err := s.next(n)
	if err != nil {
		return nil, err
	}

	if s.realtime {
		s.sleep(time.Duration(durationSeconds * float64(time.Second)))
	}

	return w, nil
}

func (s *WAVSource) next(n int) (audio.Waveform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 || (!s.loop && s.cursor >= len(s.samples)) {
		return nil, io.EOF
	}

	out := make(audio.Waveform, 0, n)
	for len(out) < n {
		if s.cursor >= len(s.samples) {
			if !s.loop {
				break
			}
			s.cursor = 0
		}
		take := min(n-len(out), len(s.samples)-s.cursor)
		out = append(out, s.samples[s.cursor:s.cursor+take]...)
		s.cursor += take
	}

	return out.PadTo(n), nil
}

// SampleRate returns the rate of the decoded file
func (s *WAVSource) SampleRate() int {
	return s.sampleRate
}
