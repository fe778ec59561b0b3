package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE format tag for integer PCM
const wavFormatPCM = 1

// ErrInvalidWAV is returned for data that is not a decodable PCM WAV stream.
var ErrInvalidWAV = errors.New("invalid WAV data")

// Decoded holds the result of decoding a WAV stream.
type Decoded struct {
	Frames     Frames // normalized to [-1, 1]
	SampleRate int
	Channels   int
	BitDepth   int
}

// WAVInfo describes a WAV stream without its samples
type WAVInfo struct {
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	BitsPerSample int     `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
}

// DecodeWAV decodes integer PCM WAV data into normalized float frames
func DecodeWAV(data []byte) (*Decoded, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: unsupported audio format %d (only PCM is supported)", ErrInvalidWAV, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidWAV, channels)
	}

	bitDepth := int(decoder.BitDepth)
	scale, offset, err := sampleScale(bitDepth)
	if err != nil {
		return nil, err
	}

	numFrames := len(buf.Data) / channels
	frames := make(Frames, numFrames)
	for i := 0; i < numFrames; i++ {
		frame := make([]float64, channels)
		for c := 0; c < channels; c++ {
			frame[c] = (float64(buf.Data[i*channels+c]) - offset) / scale
		}
		frames[i] = frame
	}

	return &Decoded{
		Frames:     frames,
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
	}, nil
}

// sampleScale returns the divisor and offset that map integer samples of the
// given bit depth to [-1, 1]. 8-bit PCM is unsigned.
func sampleScale(bitDepth int) (scale, offset float64, err error) {
	switch bitDepth {
	case 8:
		return 128, 128, nil
	case 16, 24, 32:
		return float64(int64(1) << (bitDepth - 1)), 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bitDepth)
	}
}

// GetWAVInfo extracts metadata from WAV data
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return nil, fmt.Errorf("failed to compute WAV duration: %w", err)
	}

	return &WAVInfo{
		SampleRate:    int(decoder.SampleRate),
		Channels:      int(decoder.NumChans),
		BitsPerSample: int(decoder.BitDepth),
		Duration:      duration.Seconds(),
	}, nil
}

// ReadWAVFile reads and decodes a WAV file from disk
func ReadWAVFile(path string) (*Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV file %s: %w", path, err)
	}

	decoded, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV file %s: %w", path, err)
	}

	return decoded, nil
}

// WriteWAVFile writes a mono waveform as 16-bit PCM WAV.
// pcm16 reports whether w is already on the 16-bit scale; float waveforms are
// scaled first.
func WriteWAVFile(path string, w Waveform, sampleRate int, pcm16 bool) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	samples := w
	if !pcm16 {
		samples = w.ToPCM16Scale()
	}

	data := make([]int, len(samples))
	for i, s := range samples.PCM16() {
		data[i] = int(s)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file %s: %w", path, err)
	}
	defer file.Close()

	encoder := wav.NewEncoder(file, sampleRate, 16, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV samples: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}

	return nil
}
