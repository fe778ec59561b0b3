package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voicegate/internal/logging"
	"github.com/skypro1111/voicegate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve RMS analysis, spectrogram and classification of uploaded WAV files,
together with /health, /config, /stats and Prometheus /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info("Service starting",
		slog.String("version", Version),
		slog.String("config_path", configPath),
		slog.String("http_address", cfg.HTTP.Addr()),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
	)

	m := appMetrics()

	client, err := newClassifier(cfg, m, logger)
	if err != nil {
		return err
	}

	var opts []server.Option
	if client != nil {
		opts = append(opts, server.WithClassifier(client))
	}

	httpServer, err := server.NewHTTPServer(cfg, logger, m, opts...)
	if err != nil {
		return err
	}
	if err := httpServer.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownHTTP(httpServer, logger)

	if client != nil {
		stats := client.GetStats()
		logger.Info("Final classifier statistics",
			slog.Uint64("total_requests", stats.TotalRequests),
			slog.Uint64("failed_requests", stats.FailedRequests),
			slog.Uint64("total_retries", stats.TotalRetries),
		)
	}

	logger.Info("Service stopped")
	return nil
}

func shutdownHTTP(httpServer *server.HTTPServer, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}
}
