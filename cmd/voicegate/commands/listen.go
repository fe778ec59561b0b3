package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voicegate/internal/capture"
	"github.com/skypro1111/voicegate/internal/listener"
	"github.com/skypro1111/voicegate/internal/logging"
	"github.com/skypro1111/voicegate/internal/server"
	"github.com/skypro1111/voicegate/internal/spectrogram"
	"github.com/skypro1111/voicegate/internal/vad"
)

var listenFlags struct {
	source      string
	wavFile     string
	loop        bool
	maxAttempts int
	saveDir     string
	jsonOut     bool
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the capture, voice check and classify loop",
	Long: `Record recording_duration seconds at a time, keep the chunks whose RMS lies
inside the gate range, and when the extracted audio is louder than the voice
threshold send its spectrogram to the classifier.

The loop ends when the stop label is predicted, after --max-attempts, when a
replayed file runs out, or on interrupt. With http.enabled the HTTP API runs
alongside and reports the network microphone.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	f := listenCmd.Flags()
	f.StringVar(&listenFlags.source, "source", "", "capture source: wav or udp (default from config)")
	f.StringVar(&listenFlags.wavFile, "wav", "", "WAV file to replay (implies --source wav)")
	f.BoolVar(&listenFlags.loop, "loop", false, "restart the WAV file when it ends")
	f.IntVar(&listenFlags.maxAttempts, "max-attempts", 0, "stop after this many attempts (0 = config)")
	f.StringVar(&listenFlags.saveDir, "save-dir", "", "save every voiced utterance as WAV here")
	f.BoolVar(&listenFlags.jsonOut, "json", false, "print one JSON line per attempt")

	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if listenFlags.wavFile != "" {
		cfg.Capture.Source = "wav"
		cfg.Capture.WAVFile = listenFlags.wavFile
	}
	if f.Changed("source") {
		cfg.Capture.Source = listenFlags.source
	}
	if f.Changed("loop") {
		cfg.Capture.Loop = listenFlags.loop
	}
	if f.Changed("max-attempts") {
		cfg.Listen.MaxAttempts = listenFlags.maxAttempts
	}
	if f.Changed("save-dir") {
		cfg.Listen.SaveDir = listenFlags.saveDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := appMetrics()

	logger.Info("Listener starting",
		slog.String("source", cfg.Capture.Source),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("recording_duration", cfg.Listen.RecordingDuration),
		slog.Float64("step", cfg.Gate.Step),
		slog.String("range", fmt.Sprintf("(%g, %g)", cfg.Gate.Range.Low, cfg.Gate.Range.High)),
		slog.Float64("voice_threshold", cfg.Gate.VoiceThreshold),
		slog.Bool("classifier_enabled", cfg.Classifier.Enabled),
	)

	var (
		source    capture.Source
		udpSource *capture.UDPSource
	)
	switch cfg.Capture.Source {
	case "wav":
		wavSource, err := capture.NewWAVSource(cfg.Capture.WAVFile, cfg.Audio.SampleRate, cfg.Audio.Resample,
			capture.WithLoop(cfg.Capture.Loop), capture.WithRealtime(cfg.Capture.Realtime))
		if err != nil {
			return err
		}
		source = wavSource
	case "udp":
		udpSource = capture.NewUDPSource(&cfg.Capture.UDP, cfg.Audio.SampleRate, logger, m)
		if err := udpSource.Start(); err != nil {
			return err
		}
		defer func() {
			if err := udpSource.Stop(); err != nil {
				logger.Error("Error stopping UDP source", slog.String("error", err.Error()))
			}
		}()
		source = udpSource
	}
	source = capture.Observed(cfg.Capture.Source, source, m)

	gate, err := vad.NewEnergyGate(cfg.Audio.SampleRate, vad.WithLogger(logger), vad.WithObserver(m))
	if err != nil {
		return err
	}
	builder, err := spectrogram.NewBuilder(cfg.Audio.SampleRate, nil, spectrogram.WithObserver(m))
	if err != nil {
		return err
	}

	opts := []listener.Option{listener.WithLogger(logger), listener.WithObserver(m)}
	client, err := newClassifier(cfg, m, logger)
	if err != nil {
		return err
	}
	if client != nil {
		opts = append(opts, listener.WithClassifier(client))
	} else {
		logger.Warn("Classifier disabled, voiced utterances are reported without a label")
	}

	l, err := listener.New(gate, builder, source, listener.ConfigFrom(cfg), opts...)
	if err != nil {
		return err
	}

	if cfg.HTTP.Enabled {
		serverOpts := []server.Option{server.WithUDPSource(udpSource)}
		if client != nil {
			serverOpts = append(serverOpts, server.WithClassifier(client))
		}
		httpServer, err := server.NewHTTPServer(cfg, logger, m, serverOpts...)
		if err != nil {
			return err
		}
		if err := httpServer.Start(); err != nil {
			return err
		}
		defer shutdownHTTP(httpServer, logger)
	}

	out := cmd.OutOrStdout()
	encoder := json.NewEncoder(out)
	err = l.Run(ctx, func(ctx context.Context, u *listener.Utterance) error {
		if listenFlags.jsonOut {
			return encoder.Encode(u)
		}
		switch {
		case !u.IsVoice:
			fmt.Fprintf(out, "no voice (rms %g)\n", u.RMS)
		case u.Prediction != nil:
			fmt.Fprintf(out, "%s (rms %g)\n", u.Label(), u.RMS)
		default:
			fmt.Fprintf(out, "voice (rms %g)\n", u.RMS)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		logger.Info("Interrupted, shutting down")
		return nil
	}
	return err
}
