package commands

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/skypro1111/voicegate/internal/classifier"
	"github.com/skypro1111/voicegate/internal/config"
	"github.com/skypro1111/voicegate/internal/metrics"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "voicegate",
	Short: "Energy-gated voice command recognition",
	Long: `voicegate - record short windows of audio, keep the chunks whose RMS
energy looks like speech and hand one second of voice to a command classifier.

Configuration is read from a YAML file (--config) over built-in defaults.
A .env file next to it may set VOICEGATE_CLASSIFIER_API_KEY.

Examples:
  # Inspect the RMS profile of a recording
  voicegate rms recordings/left1.wav --low 0.5 --high 50

  # Listen to a network microphone and classify commands
  voicegate listen --config configs/voicegate.yaml

  # Replay a file into a running listener
  voicegate stream recordings/left1.wav --addr 127.0.0.1:4444`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (defaults when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// loadConfig reads the configuration selected by --config
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// appMetrics returns the process-wide metrics registered with the default registry
var appMetrics = sync.OnceValue(func() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.DefaultRegisterer)
})

// newClassifier builds the HTTP classifier client, or returns nil when the
// classifier is disabled. Labels are read from the model folder when one is set.
func newClassifier(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*classifier.Client, error) {
	if !cfg.Classifier.Enabled {
		return nil, nil
	}

	var labels []string
	if cfg.Classifier.ModelDir != "" {
		var err error
		labels, err = classifier.LoadModelLabels(cfg.Classifier.ModelDir)
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded labels", slog.Int("count", len(labels)), slog.String("model_dir", cfg.Classifier.ModelDir))
	}

	var observer classifier.Observer
	if m != nil {
		observer = m
	}

	client, err := classifier.NewClient(classifier.Config{
		Endpoint:      cfg.Classifier.Endpoint,
		APIKey:        cfg.Classifier.APIKey,
		Timeout:       cfg.Classifier.GetTimeoutDuration(),
		MaxRetries:    cfg.Classifier.MaxRetries,
		MaxConcurrent: cfg.Classifier.MaxConcurrent,
		SampleRate:    cfg.Audio.SampleRate,
		Labels:        labels,
	}, observer)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier client: %w", err)
	}

	return client, nil
}
