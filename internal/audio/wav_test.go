package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSine writes a 440Hz sine wave of n samples and returns its bytes
func writeSine(t *testing.T, n, sampleRate int) []byte {
	t.Helper()

	w := make(Waveform, n)
	for i := range w {
		w[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}

	path := filepath.Join(t.TempDir(), "sine.wav")
	require.NoError(t, WriteWAVFile(path, w, sampleRate, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestWriteAndDecodeWAV(t *testing.T) {
	data := writeSine(t, 1600, 16000)

	decoded, err := DecodeWAV(data)
	require.NoError(t, err)

	assert.Equal(t, 16000, decoded.SampleRate)
	assert.Equal(t, 1, decoded.Channels)
	assert.Equal(t, 16, decoded.BitDepth)
	require.Len(t, decoded.Frames, 1600)

	for i, frame := range decoded.Frames {
		want := 0.5 * math.Sin(2*math.Pi*440*float64(i)/16000)
		require.InDelta(t, want, frame[0], 1e-3, "sample %d", i)
	}
}

func TestWriteWAVFilePCM16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm.wav")
	require.NoError(t, WriteWAVFile(path, Waveform{100, -200, 300}, 8000, true))

	decoded, err := ReadWAVFile(path)
	require.NoError(t, err)

	w, err := decoded.Frames.Squeeze()
	require.NoError(t, err)
	require.Len(t, w, 3)

	for i, want := range []float64{100, -200, 300} {
		assert.InDelta(t, want, w[i]*32768, 1e-9)
	}
}

func TestWriteWAVFileInvalidSampleRate(t *testing.T) {
	err := WriteWAVFile(filepath.Join(t.TempDir(), "x.wav"), Waveform{1}, 0, true)
	assert.Error(t, err)
}

func TestDecodeWAVInvalid(t *testing.T) {
	_, err := DecodeWAV([]byte("definitely not a wav file, just text padding it out"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidWAV))
}

func TestGetWAVInfo(t *testing.T) {
	data := writeSine(t, 8000, 16000)

	info, err := GetWAVInfo(data)
	require.NoError(t, err)

	assert.Equal(t, 16000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitsPerSample)
	assert.InDelta(t, 0.5, info.Duration, 0.001)
}

func TestWAVDecoder(t *testing.T) {
	data := writeSine(t, 400, 16000)

	w, err := WAVDecoder{SampleRate: 16000}.Decode(data)
	require.NoError(t, err)
	assert.Len(t, w, 400)

	_, err = WAVDecoder{SampleRate: 8000}.Decode(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSampleRateMismatch))
}

func TestWAVDecoderRejectsStereo(t *testing.T) {
	decoded := &Decoded{
		Frames:     Frames{{0.1, 0.2}, {0.3, 0.4}},
		SampleRate: 16000,
		Channels:   2,
		BitDepth:   16,
	}

	_, err := WAVDecoder{SampleRate: 16000}.FromDecoded(decoded)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotMono))
}

func TestResampleSameRate(t *testing.T) {
	w := Waveform{0.1, 0.2}
	out, err := Resample(w, 16000, 16000)
	require.NoError(t, err)
	assert.Equal(t, w, out)

	_, err = Resample(w, 0, 16000)
	assert.Error(t, err)
}
