package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/maauso/mediacompose/internal/audio"
	"github.com/maauso/mediacompose/internal/bootstrap"
	"github.com/maauso/mediacompose/internal/config"
	"github.com/maauso/mediacompose/internal/overlay"
	"github.com/maauso/mediacompose/internal/probe"
)

type compositor interface {
	Prepare(ctx context.Context, basePath, overlayPath string, req overlay.Request) (*overlay.Prepared, error)
	Compose(ctx context.Context, basePath, overlayPath, output string, req overlay.Request) (*overlay.Result, error)
}

type concatenator interface {
	Concatenate(ctx context.Context, segments []string, output string) error
}

type mixer interface {
	AddBackgroundMusic(ctx context.Context, videoPath string, tracks []audio.Track, output string, opts audio.MixOptions) (*audio.MixResult, error)
	ExtendWithSilence(ctx context.Context, input, output string, front, back float64) error
	ConcatWithSilence(ctx context.Context, chunks []string, output string, gap float64) error
}

type pipelines struct {
	prober     probe.Prober
	compositor compositor
	concat     concatenator
	mixer      mixer
}

type pipelineLoader func(cfg *config.Config, logger *slog.Logger) (*pipelines, error)

func loadPipelines(cfg *config.Config, logger *slog.Logger) (*pipelines, error) {
	p, err := bootstrap.NewPipelines(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &pipelines{
		prober:     p.Prober,
		compositor: p.Compositor,
		concat:     p.Concatenator,
		mixer:      p.Mixer,
	}, nil
}

type commandContext struct {
	jsonFlag     bool
	logLevelFlag string
	load         pipelineLoader

	once  sync.Once
	pipes *pipelines
	err   error
}

func newCommandContext(load pipelineLoader) *commandContext {
	return &commandContext{load: load}
}

// ensurePipelines loads the environment configuration once and builds the
// pipelines from it. Logs go to stderr so stdout stays machine readable.
func (c *commandContext) ensurePipelines(cmd *cobra.Command) (*pipelines, error) {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		if level := strings.TrimSpace(c.logLevelFlag); level != "" {
			cfg.LogLevel = level
		}
		c.pipes, c.err = c.load(cfg, cfg.NewLoggerTo(cmd.ErrOrStderr()))
	})
	return c.pipes, c.err
}

// wantJSON reports whether output should be JSON: when asked for, or when
// stdout is not a terminal.
func (c *commandContext) wantJSON(cmd *cobra.Command) bool {
	return c.jsonFlag || !isTerminal(cmd.OutOrStdout())
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
