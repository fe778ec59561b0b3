package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv overrides classifier.api_key when set
const APIKeyEnv = "VOICEGATE_CLASSIFIER_API_KEY"

// Config represents the complete service configuration
type Config struct {
	Audio      AudioConfig      `yaml:"audio" json:"audio"`
	Gate       GateConfig       `yaml:"gate" json:"gate"`
	Listen     ListenConfig     `yaml:"listen" json:"listen"`
	Capture    CaptureConfig    `yaml:"capture" json:"capture"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	HTTP       HTTPConfig       `yaml:"http" json:"http"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// AudioConfig contains the sample format shared by every component
type AudioConfig struct {
	SampleRate int  `yaml:"sample_rate" json:"sample_rate"`
	Resample   bool `yaml:"resample" json:"resample"` // resample decoded files instead of rejecting a rate mismatch
}

// RangeConfig is an open interval of RMS values
type RangeConfig struct {
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high"`
}

// GateConfig contains energy gate parameters
type GateConfig struct {
	Step           float64     `yaml:"step" json:"step"` // seconds per chunk
	Range          RangeConfig `yaml:"range" json:"range"`
	VoiceThreshold float64     `yaml:"voice_threshold" json:"voice_threshold"`
}

// ListenConfig contains the listen loop parameters
type ListenConfig struct {
	RecordingDuration float64 `yaml:"recording_duration" json:"recording_duration"` // seconds
	Interval          int     `yaml:"interval" json:"interval"`                     // milliseconds
	StopLabel         string  `yaml:"stop_label" json:"stop_label"`
	MaxAttempts       int     `yaml:"max_attempts" json:"max_attempts"` // 0 = unlimited
	SaveDir           string  `yaml:"save_dir" json:"save_dir"`
}

// CaptureConfig selects and configures the audio source
type CaptureConfig struct {
	Source   string    `yaml:"source" json:"source"` // "wav" or "udp"
	WAVFile  string    `yaml:"wav_file" json:"wav_file"`
	Loop     bool      `yaml:"loop" json:"loop"`
	Realtime bool      `yaml:"realtime" json:"realtime"`
	UDP      UDPConfig `yaml:"udp" json:"udp"`
}

// UDPConfig contains network microphone listener configuration
type UDPConfig struct {
	Port        int    `yaml:"port" json:"port"`
	BindAddress string `yaml:"bind_address" json:"bind_address"`
	BufferSize  int    `yaml:"buffer_size" json:"buffer_size"`
	Workers     int    `yaml:"workers" json:"workers"`
	QueueSize   int    `yaml:"queue_size" json:"queue_size"`
}

// ClassifierConfig contains classification API configuration
type ClassifierConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Endpoint      string `yaml:"endpoint" json:"endpoint"`
	APIKey        string `yaml:"api_key" json:"-"`
	Timeout       int    `yaml:"timeout" json:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries" json:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent" json:"max_concurrent"`
	ModelDir      string `yaml:"model_dir" json:"model_dir"` // folder holding the labels file
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port         int    `yaml:"port" json:"port"`
	Address      string `yaml:"address" json:"address"`
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 16000,
		},
		Gate: GateConfig{
			Step:           0.1,
			Range:          RangeConfig{Low: 1.9, High: 1000},
			VoiceThreshold: 25,
		},
		Listen: ListenConfig{
			RecordingDuration: 2,
			Interval:          750,
			StopLabel:         "stop",
		},
		Capture: CaptureConfig{
			Source:   "udp",
			Realtime: true,
			UDP: UDPConfig{
				Port:        4444,
				BindAddress: "0.0.0.0",
				BufferSize:  65536,
				Workers:     2,
				QueueSize:   1000,
			},
		},
		Classifier: ClassifierConfig{
			Endpoint:      "http://localhost:8090/classify",
			Timeout:       10,
			MaxRetries:    3,
			MaxConcurrent: 4,
		},
		HTTP: HTTPConfig{
			Port:         8080,
			Address:      "0.0.0.0",
			Enabled:      true,
			MaxBodyBytes: 10 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file over the defaults, applies environment
// overrides and validates the result. An empty path yields the defaults.
// A .env file next to the config file (or in the working directory) is loaded
// into the environment first; variables already set are not overwritten.
func Load(path string) (*Config, error) {
	config := Default()

	envDir := "."
	if path != "" {
		envDir = filepath.Dir(path)
	}
	if err := godotenv.Load(filepath.Join(envDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.Classifier.APIKey = key
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate config: %w", err)
	}

	if chunk := int(c.Gate.Step * float64(c.Audio.SampleRate)); chunk < 1 {
		return fmt.Errorf("gate config: step %v at %d Hz gives an empty chunk", c.Gate.Step, c.Audio.SampleRate)
	}

	if err := c.Listen.Validate(); err != nil {
		return fmt.Errorf("listen config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	// one spectrogram frame is 255 samples, so anything lower cannot produce a tensor
	if a.SampleRate < 1000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 1000 and 192000 Hz, got %d", a.SampleRate)
	}

	return nil
}

// Validate validates gate configuration
func (g *GateConfig) Validate() error {
	if g.Step <= 0 {
		return fmt.Errorf("step must be positive, got %f", g.Step)
	}

	if g.Range.Low >= g.Range.High {
		return fmt.Errorf("range low (%f) must be less than range high (%f)", g.Range.Low, g.Range.High)
	}

	if g.VoiceThreshold < 0 {
		return fmt.Errorf("voice_threshold cannot be negative, got %f", g.VoiceThreshold)
	}

	return nil
}

// Validate validates listen configuration
func (l *ListenConfig) Validate() error {
	if l.RecordingDuration <= 0 {
		return fmt.Errorf("recording_duration must be positive, got %f", l.RecordingDuration)
	}

	if l.Interval < 0 {
		return fmt.Errorf("interval cannot be negative, got %d", l.Interval)
	}

	if l.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts cannot be negative, got %d", l.MaxAttempts)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	switch c.Source {
	case "wav":
		if c.WAVFile == "" {
			return fmt.Errorf("wav_file cannot be empty when source is 'wav'")
		}
	case "udp":
		if err := c.UDP.Validate(); err != nil {
			return fmt.Errorf("udp: %w", err)
		}
	default:
		return fmt.Errorf("source must be 'wav' or 'udp', got '%s'", c.Source)
	}

	return nil
}

// Validate validates UDP listener configuration
func (u *UDPConfig) Validate() error {
	if u.Port < 0 || u.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", u.Port)
	}

	if u.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if u.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", u.BufferSize)
	}

	if u.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", u.Workers)
	}

	if u.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", u.QueueSize)
	}

	return nil
}

// Validate validates classifier configuration
func (c *ClassifierConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when the classifier is enabled")
	}

	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", c.Timeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", c.MaxRetries)
	}

	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}

		if h.MaxBodyBytes < 1024 {
			return fmt.Errorf("max_body_bytes must be at least 1024, got %d", h.MaxBodyBytes)
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path

	return nil
}

// GetIntervalDuration returns the pause between listen attempts
func (l *ListenConfig) GetIntervalDuration() time.Duration {
	return time.Duration(l.Interval) * time.Millisecond
}

// GetTimeoutDuration returns the classification timeout as a time.Duration
func (c *ClassifierConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Addr returns the UDP listen address
func (u *UDPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", u.BindAddress, u.Port)
}

// Addr returns the HTTP listen address
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}
