package capture

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/skypro1111/voicegate/internal/audio"
	"github.com/skypro1111/voicegate/internal/protocol"
)

// SendOptions describes one outgoing microphone stream
type SendOptions struct {
	StreamID   uint32
	DeviceID   string
	SampleRate int
	// PacketSamples is the number of samples per audio packet.
	PacketSamples int
	// Pace is called after every audio packet with the audio duration it
	// carried. nil sends as fast as possible.
	Pace func(time.Duration)
}

// SendWaveform writes w (floats in [-1, 1]) to conn as a Start packet, a run
// of sequenced audio packets and an End packet. It returns the number of
// audio packets written.
func SendWaveform(ctx context.Context, conn io.Writer, opts SendOptions, w audio.Waveform) (int, error) {
	if opts.SampleRate <= 0 {
		return 0, fmt.Errorf("%w: %d Hz", ErrSampleRate, opts.SampleRate)
	}
	maxSamples := protocol.MaxAudioDataSize() / 2
	if opts.PacketSamples <= 0 || opts.PacketSamples > maxSamples {
		return 0, fmt.Errorf("packet size must be between 1 and %d samples, got %d", maxSamples, opts.PacketSamples)
	}

	start, err := protocol.EncodeStart(opts.StreamID, uint32(opts.SampleRate), 1, opts.DeviceID)
	if err != nil {
		return 0, err
	}
	if _, err := conn.Write(start); err != nil {
		return 0, fmt.Errorf("failed to send start packet: %w", err)
	}

	pcm := w.ToPCM16Scale()
	packets := 0
	for offset := 0; offset < len(pcm); offset += opts.PacketSamples {
		if err := ctx.Err(); err != nil {
			return packets, err
		}

		chunk := pcm[offset:min(offset+opts.PacketSamples, len(pcm))]
		packet, err := protocol.EncodeAudio(opts.StreamID, uint32(packets), audio.EncodePCM16LE(chunk))
		if err != nil {
			return packets, err
		}
		if _, err := conn.Write(packet); err != nil {
			return packets, fmt.Errorf("failed to send audio packet %d: %w", packets, err)
		}
		packets++

		if opts.Pace != nil {
			opts.Pace(time.Duration(float64(len(chunk)) / float64(opts.SampleRate) * float64(time.Second)))
		}
	}

	if _, err := conn.Write(protocol.EncodeEnd(opts.StreamID)); err != nil {
		return packets, fmt.Errorf("failed to send end packet: %w", err)
	}

	return packets, nil
}
