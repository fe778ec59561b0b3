package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voicegate/internal/audio"
	"github.com/skypro1111/voicegate/internal/capture"
)

var streamFlags struct {
	addr     string
	streamID uint32
	deviceID string
	packetMS int
	fast     bool
}

var streamCmd = &cobra.Command{
	Use:   "stream <file.wav>",
	Short: "Send a WAV file to a listener as UDP microphone packets",
	Long: `Replay a WAV file as a network microphone: a start packet, PCM16 audio
packets of --packet-ms each paced in real time, and an end packet.

The file is converted to the configured sample rate when audio.resample is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

func init() {
	f := streamCmd.Flags()
	f.StringVar(&streamFlags.addr, "addr", "", "listener address (default from capture.udp)")
	f.Uint32Var(&streamFlags.streamID, "stream-id", 0, "stream ID (random when 0)")
	f.StringVar(&streamFlags.deviceID, "device", "voicegate-stream", "device ID announced in the start packet")
	f.IntVar(&streamFlags.packetMS, "packet-ms", 20, "audio per packet in milliseconds")
	f.BoolVar(&streamFlags.fast, "fast", false, "send without real-time pacing")

	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := streamFlags.addr
	if addr == "" {
		host := cfg.Capture.UDP.BindAddress
		if host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		addr = fmt.Sprintf("%s:%d", host, cfg.Capture.UDP.Port)
	}

	decoded, err := audio.ReadWAVFile(args[0])
	if err != nil {
		return err
	}
	waveform, err := audio.WAVDecoder{SampleRate: cfg.Audio.SampleRate, Resample: cfg.Audio.Resample}.FromDecoded(decoded)
	if err != nil {
		return err
	}

	streamID := streamFlags.streamID
	if streamID == 0 {
		streamID = rand.Uint32N(1<<31) + 1
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := capture.SendOptions{
		StreamID:      streamID,
		DeviceID:      streamFlags.deviceID,
		SampleRate:    cfg.Audio.SampleRate,
		PacketSamples: cfg.Audio.SampleRate * streamFlags.packetMS / 1000,
	}
	if !streamFlags.fast {
		opts.Pace = time.Sleep
	}

	start := time.Now()
	packets, err := capture.SendWaveform(ctx, conn, opts, waveform)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d packets (%g seconds of audio) to %s as stream %d in %s\n",
		packets, waveform.Seconds(cfg.Audio.SampleRate), addr, streamID, time.Since(start).Round(time.Millisecond))
	return nil
}
