// Package bootstrap wires configuration into the media pipelines, the job
// service and storage.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/mediacompose/internal/audio"
	"github.com/maauso/mediacompose/internal/config"
	"github.com/maauso/mediacompose/internal/diagnostics"
	"github.com/maauso/mediacompose/internal/ffmpeg"
	"github.com/maauso/mediacompose/internal/job"
	"github.com/maauso/mediacompose/internal/media"
	"github.com/maauso/mediacompose/internal/overlay"
	"github.com/maauso/mediacompose/internal/probe"
	"github.com/maauso/mediacompose/internal/retry"
	"github.com/maauso/mediacompose/internal/storage"
)

// Pipelines holds the media operations built from one configuration.
type Pipelines struct {
	Profiles     ffmpeg.Profiles
	Prober       *probe.FFprobe
	Compositor   *overlay.Compositor
	Encoder      *media.SegmentEncoder
	Concatenator *media.Concatenator
	Mixer        *audio.Mixer
}

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Pipelines
	Store storage.Storage
	Jobs  *job.Service
}

// NewPipelines creates the prober and the overlay, concat and mix pipelines.
func NewPipelines(cfg *config.Config, logger *slog.Logger) (*Pipelines, error) {
	profiles, err := ffmpeg.ProfilesFor(cfg.EncoderKind())
	if err != nil {
		return nil, fmt.Errorf("select encoder profiles: %w", err)
	}

	runner := ffmpeg.ExecRunner{}
	engine := ffmpeg.NewEngine(cfg.FFmpegPath, ffmpeg.WithRunner(runner), ffmpeg.WithLogger(logger))
	prober := probe.NewFFprobe(cfg.FFprobePath, runner, logger)

	encoder := media.NewSegmentEncoder(engine, prober, profiles, media.WithEncoderLogger(logger))
	concatOpts := []media.ConcatOption{
		media.WithRetryPolicy(retry.Linear(cfg.ConcatMaxAttempts, cfg.ConcatBackoffStep)),
		media.WithRetryOptions(retry.WithLogger(logger)),
		media.WithConcatLogger(logger),
	}
	if encoder.Hardware() {
		concatOpts = append(concatOpts, media.WithDiagnostics(diagnostics.NewCollector(cfg.NvidiaSMIPath, runner, logger)))
	}

	logger.Info("media pipelines configured",
		slog.String("encoder", profiles.Kind),
		slog.String("ffmpeg", engine.Binary()),
		slog.Int("concat_max_attempts", cfg.ConcatMaxAttempts),
		slog.Float64("overlay_extend_ceiling", cfg.OverlayExtendCeiling),
	)

	return &Pipelines{
		Profiles: profiles,
		Prober:   prober,
		Compositor: overlay.NewCompositor(engine, prober, profiles.Overlay,
			overlay.WithExtendCeiling(cfg.OverlayExtendCeiling),
			overlay.WithLogger(logger),
		),
		Encoder:      encoder,
		Concatenator: media.NewConcatenator(engine, encoder, concatOpts...),
		Mixer:        audio.NewMixer(engine, prober, audio.WithLogger(logger)),
	}, nil
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	pipes, err := NewPipelines(cfg, logger)
	if err != nil {
		return nil, err
	}

	jobs := job.NewService(job.NewMemoryRepository(), store,
		job.WithMaxConcurrent(cfg.MaxConcurrentJobs),
		job.WithTimeout(cfg.JobTimeout),
		job.WithRetention(cfg.JobRetention),
		job.WithLogger(logger),
	)

	return &Dependencies{
		Pipelines: *pipes,
		Store:     store,
		Jobs:      jobs,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("root", localStore.Root()),
	)
	return localStore, nil
}
