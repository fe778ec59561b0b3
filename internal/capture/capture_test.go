package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voicegate/internal/audio"
	"github.com/skypro1111/voicegate/internal/config"
	"github.com/skypro1111/voicegate/internal/protocol"
)

type captureRecord struct {
	source  string
	samples int
	err     error
}

type recordingObserver struct {
	records []captureRecord
}

func (o *recordingObserver) ObserveCapture(source string, samples int, err error) {
	o.records = append(o.records, captureRecord{source: source, samples: samples, err: err})
}

func ramp(n int) audio.Waveform {
	w := make(audio.Waveform, n)
	for i := range w {
		w[i] = float64(i+1) / 1000
	}
	return w
}

func TestFuncAndObserved(t *testing.T) {
	captureErr := errors.New("mic unplugged")
	calls := 0
	src := Func(func(d float64, rate int) (audio.Waveform, error) {
		calls++
		if calls > 1 {
			return nil, captureErr
		}
		return make(audio.Waveform, int(d*float64(rate))), nil
	})

	obs := &recordingObserver{}
	observed := Observed("test", src, obs)

	w, err := observed.Capture(0.5, 100)
	require.NoError(t, err)
	assert.Len(t, w, 50)

	_, err = observed.Capture(0.5, 100)
	assert.Equal(t, captureErr, err)

	require.Len(t, obs.records, 2)
	assert.Equal(t, captureRecord{source: "test", samples: 50}, obs.records[0])
	assert.Equal(t, captureErr, obs.records[1].err)
}

func TestSampleCount(t *testing.T) {
	n, err := SampleCount(2, 16000)
	require.NoError(t, err)
	assert.Equal(t, 32000, n)

	_, err = SampleCount(1, 0)
	assert.True(t, errors.Is(err, ErrSampleRate))

	_, err = SampleCount(-1, 16000)
	assert.Error(t, err)
}

func TestWaveformSourceWindows(t *testing.T) {
	src, err := NewWaveformSource(ramp(25), 10)
	require.NoError(t, err)

	first, err := src.Capture(1, 10)
	require.NoError(t, err)
	assert.Equal(t, ramp(10), first)

	second, err := src.Capture(1, 10)
	require.NoError(t, err)
	assert.Equal(t, ramp(20)[10:], second)

	// the last window runs past the end and is zero-padded
	third, err := src.Capture(1, 10)
	require.NoError(t, err)
	require.Len(t, third, 10)
	assert.Equal(t, ramp(25)[20:], third[:5])
	assert.Equal(t, audio.Waveform{0, 0, 0, 0, 0}, third[5:])

	_, err = src.Capture(1, 10)
	assert.Equal(t, io.EOF, err)

	_, err = src.Capture(1, 10)
	assert.Equal(t, io.EOF, err, "an exhausted source stays exhausted")
}

func TestWaveformSourceLoop(t *testing.T) {
	src, err := NewWaveformSource(ramp(4), 4, WithLoop(true))
	require.NoError(t, err)

	w, err := src.Capture(2.5, 4)
	require.NoError(t, err)
	assert.Equal(t, audio.Waveform{0.001, 0.002, 0.003, 0.004, 0.001, 0.002, 0.003, 0.004, 0.001, 0.002}, w)
}

func TestWaveformSourceRealtime(t *testing.T) {
	src, err := NewWaveformSource(ramp(100), 100, WithRealtime(true))
	require.NoError(t, err)

	var slept []time.Duration
	src.sleep = func(d time.Duration) { slept = append(slept, d) }

	_, err = src.Capture(0.5, 100)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, slept)
}

func TestWaveformSourceRateMismatch(t *testing.T) {
	src, err := NewWaveformSource(ramp(100), 100)
	require.NoError(t, err)

	_, err = src.Capture(1, 200)
	assert.True(t, errors.Is(err, ErrSampleRate))

	_, err = NewWaveformSource(ramp(1), 0)
	assert.True(t, errors.Is(err, ErrSampleRate))
}

func TestWAVSourceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mic.wav")
	require.NoError(t, audio.WriteWAVFile(path, make(audio.Waveform, 16000), 16000, false))

	src, err := NewWAVSource(path, 16000, false)
	require.NoError(t, err)
	assert.Equal(t, 16000, src.SampleRate())

	w, err := src.Capture(2, 16000)
	require.NoError(t, err)
	assert.Len(t, w, 32000)

	_, err = NewWAVSource(path, 8000, false)
	assert.True(t, errors.Is(err, audio.ErrSampleRateMismatch))

	_, err = NewWAVSource(filepath.Join(t.TempDir(), "missing.wav"), 16000, false)
	assert.Error(t, err)
}

func newTestUDPSource(t *testing.T) (*UDPSource, *net.UDPConn) {
	t.Helper()

	cfg := &config.UDPConfig{
		Port:        0,
		BindAddress: "127.0.0.1",
		BufferSize:  65536,
		Workers:     1,
		QueueSize:   100,
	}
	src := NewUDPSource(cfg, 16000, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, src.Start())
	t.Cleanup(func() { _ = src.Stop() })

	client, err := net.DialUDP("udp", nil, src.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return src, client
}

func pcmPacket(t *testing.T, streamID, seq uint32, n int, value int16) []byte {
	t.Helper()

	w := make(audio.Waveform, n)
	for i := range w {
		w[i] = float64(value)
	}
	packet, err := protocol.EncodeAudio(streamID, seq, audio.EncodePCM16LE(w))
	require.NoError(t, err)
	return packet
}

func startStream(t *testing.T, src *UDPSource, client *net.UDPConn, streamID uint32, sampleRate uint32) {
	t.Helper()

	start, err := protocol.EncodeStart(streamID, sampleRate, 1, "test-mic")
	require.NoError(t, err)
	_, err = client.Write(start)
	require.NoError(t, err)
}

func TestUDPSourceCapture(t *testing.T) {
	src, client := newTestUDPSource(t)

	startStream(t, src, client, 9, 16000)
	require.Eventually(t, func() bool { return src.GetStatistics().StreamActive }, 2*time.Second, 10*time.Millisecond)

	src.wait = func(context.Context, time.Duration) {
		for seq := uint32(0); seq < 2; seq++ {
			_, err := client.Write(pcmPacket(t, 9, seq, 800, 16384))
			require.NoError(t, err)
		}
		require.Eventually(t, func() bool {
			stats := src.GetStatistics()
			return stats.Buffer != nil && stats.Buffer.BufferSize == 1600
		}, 2*time.Second, 10*time.Millisecond)
	}

	w, err := src.Capture(0.2, 16000)
	require.NoError(t, err)
	require.Len(t, w, 3200)
	assert.Equal(t, 0.5, w[0])
	assert.Equal(t, 0.5, w[1599])
	assert.Equal(t, 0.0, w[1600])
	assert.Equal(t, 0.0, w[3199])

	stats := src.GetStatistics()
	assert.Equal(t, "test-mic", stats.DeviceID)
	assert.Equal(t, uint32(9), stats.StreamID)
	assert.Equal(t, uint64(3), stats.PacketsProcessed)
}

func TestUDPSourceDiscardsAudioBeforeCapture(t *testing.T) {
	src, client := newTestUDPSource(t)

	startStream(t, src, client, 3, 16000)
	_, err := client.Write(pcmPacket(t, 3, 0, 400, 1000))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		stats := src.GetStatistics()
		return stats.Buffer != nil && stats.Buffer.BufferSize == 400
	}, 2*time.Second, 10*time.Millisecond)

	src.wait = func(context.Context, time.Duration) {}

	w, err := src.Capture(0.01, 16000)
	require.NoError(t, err)
	assert.Equal(t, make(audio.Waveform, 160), w)
}

func TestUDPSourceRejectsMismatchedStream(t *testing.T) {
	src, client := newTestUDPSource(t)

	startStream(t, src, client, 5, 8000)
	require.Eventually(t, func() bool { return src.GetStatistics().PacketsProcessed == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, src.GetStatistics().StreamActive)

	_, err := client.Write([]byte("garbage"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return src.GetStatistics().ParseErrors == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestUDPSourceEndPacket(t *testing.T) {
	src, client := newTestUDPSource(t)

	startStream(t, src, client, 4, 16000)
	require.Eventually(t, func() bool { return src.GetStatistics().StreamActive }, 2*time.Second, 10*time.Millisecond)

	_, err := client.Write(protocol.EncodeEnd(4))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !src.GetStatistics().StreamActive }, 2*time.Second, 10*time.Millisecond)
}

func TestUDPSourceClosed(t *testing.T) {
	src, _ := newTestUDPSource(t)
	require.NoError(t, src.Stop())

	_, err := src.Capture(0.1, 16000)
	assert.True(t, errors.Is(err, ErrClosed))

	_, err = src.Capture(0.1, 8000)
	assert.True(t, errors.Is(err, ErrSampleRate))
}

func TestUDPSourceStopInterruptsCapture(t *testing.T) {
	src, _ := newTestUDPSource(t)

	done := make(chan error, 1)
	started := time.Now()
	go func() {
		_, err := src.Capture(3, 16000)
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, src.Stop())

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrClosed))
		assert.Less(t, time.Since(started), 2*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not return after Stop")
	}
}

type packetRecorder struct {
	packets [][]byte
}

func (r *packetRecorder) Write(p []byte) (int, error) {
	r.packets = append(r.packets, append([]byte(nil), p...))
	return len(p), nil
}

func TestSendWaveformPackets(t *testing.T) {
	rec := &packetRecorder{}
	var paced []time.Duration

	n, err := SendWaveform(context.Background(), rec, SendOptions{
		StreamID:      11,
		DeviceID:      "replay",
		SampleRate:    1000,
		PacketSamples: 40,
		Pace:          func(d time.Duration) { paced = append(paced, d) },
	}, make(audio.Waveform, 100))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, rec.packets, 5)

	first, err := protocol.ParsePacket(rec.packets[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(protocol.PacketTypeStart), first.Header.PacketType)
	assert.Equal(t, "replay", first.Start.GetDeviceID())

	last, err := protocol.ParsePacket(rec.packets[3])
	require.NoError(t, err)
	assert.Equal(t, uint32(2), last.Audio.Sequence)
	assert.Len(t, last.Audio.AudioData, 40)

	end, err := protocol.ParsePacket(rec.packets[4])
	require.NoError(t, err)
	assert.Equal(t, uint8(protocol.PacketTypeEnd), end.Header.PacketType)

	assert.Equal(t, []time.Duration{40 * time.Millisecond, 40 * time.Millisecond, 20 * time.Millisecond}, paced)
}

func TestSendWaveformValidation(t *testing.T) {
	_, err := SendWaveform(context.Background(), &packetRecorder{}, SendOptions{SampleRate: 0, PacketSamples: 10}, nil)
	assert.True(t, errors.Is(err, ErrSampleRate))

	_, err = SendWaveform(context.Background(), &packetRecorder{}, SendOptions{SampleRate: 16000}, nil)
	assert.Error(t, err)
}

func TestSendWaveformToUDPSource(t *testing.T) {
	src, client := newTestUDPSource(t)

	sent := make(chan error, 1)
	src.wait = func(context.Context, time.Duration) {
		w := make(audio.Waveform, 1600)
		for i := range w {
			w[i] = 0.25
		}
		_, err := SendWaveform(context.Background(), client, SendOptions{
			StreamID:      21,
			DeviceID:      "replay",
			SampleRate:    16000,
			PacketSamples: 320,
		}, w)
		sent <- err
		require.Eventually(t, func() bool { return src.GetStatistics().PacketsProcessed == 7 }, 2*time.Second, 10*time.Millisecond)
	}

	w, err := src.Capture(0.1, 16000)
	require.NoError(t, err)
	require.NoError(t, <-sent)
	require.Len(t, w, 1600)
	assert.InDelta(t, 0.25, w[0], 1e-3)
	assert.InDelta(t, 0.25, w[1599], 1e-3)
}
