// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/mediacompose/internal/ffmpeg"
)

// Static errors for configuration validation.
var (
	// ErrInvalidEncoder is returned when ENCODER names an unknown encoder kind.
	ErrInvalidEncoder = errors.New("config: ENCODER must be nvenc or x264")
	// ErrInvalidAttempts is returned when CONCAT_MAX_ATTEMPTS is below 1.
	ErrInvalidAttempts = errors.New("config: CONCAT_MAX_ATTEMPTS must be at least 1")
	// ErrInvalidCeiling is returned when OVERLAY_EXTEND_CEILING is below 1.
	ErrInvalidCeiling = errors.New("config: OVERLAY_EXTEND_CEILING must be at least 1")
	// ErrInvalidConcurrency is returned when MAX_CONCURRENT_JOBS is below 1.
	ErrInvalidConcurrency = errors.New("config: MAX_CONCURRENT_JOBS must be at least 1")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/mediacompose" json:"temp_dir"`

	// Engine settings
	FFmpegPath    string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath   string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	NvidiaSMIPath string `env:"NVIDIA_SMI_PATH, default=nvidia-smi" json:"nvidia_smi_path"`
	Encoder       string `env:"ENCODER, default=nvenc" json:"encoder"` // "nvenc" or "x264"

	// Processing settings
	ConcatMaxAttempts    int           `env:"CONCAT_MAX_ATTEMPTS, default=3" json:"concat_max_attempts"`
	ConcatBackoffStep    time.Duration `env:"CONCAT_BACKOFF_STEP, default=2s" json:"concat_backoff_step"`
	OverlayExtendCeiling float64       `env:"OVERLAY_EXTEND_CEILING, default=2.0" json:"overlay_extend_ceiling"`
	MaxConcurrentJobs    int           `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs"`
	JobTimeout           time.Duration `env:"JOB_TIMEOUT, default=0s" json:"job_timeout"`
	JobRetention         time.Duration `env:"JOB_RETENTION, default=24h" json:"job_retention"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "trace", "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Encoder) {
	case ffmpeg.EncoderNVENC, ffmpeg.EncoderX264:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidEncoder, c.Encoder)
	}
	if c.ConcatMaxAttempts < 1 {
		return ErrInvalidAttempts
	}
	if c.OverlayExtendCeiling < 1 {
		return ErrInvalidCeiling
	}
	if c.MaxConcurrentJobs < 1 {
		return ErrInvalidConcurrency
	}
	return nil
}

// EncoderKind returns the normalized encoder kind.
func (c *Config) EncoderKind() string {
	return strings.ToLower(c.Encoder)
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLogLevel(c.LogLevel),
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// replaceLevel names the engine trace level, which slog would print as DEBUG-4.
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level <= ffmpeg.LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, FFmpegPath: %s, FFprobePath: %s, Encoder: %s, ConcatMaxAttempts: %d, ConcatBackoffStep: %s, OverlayExtendCeiling: %g, MaxConcurrentJobs: %d, JobTimeout: %s, JobRetention: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, AWSSecretAccessKey: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.FFmpegPath,
		c.FFprobePath,
		c.Encoder,
		c.ConcatMaxAttempts,
		c.ConcatBackoffStep,
		c.OverlayExtendCeiling,
		c.MaxConcurrentJobs,
		c.JobTimeout,
		c.JobRetention,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		mask(c.AWSSecretAccessKey),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return ffmpeg.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
