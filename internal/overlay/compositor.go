package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/maauso/mediacompose/internal/ffmpeg"
	"github.com/maauso/mediacompose/internal/mediaerr"
	"github.com/maauso/mediacompose/internal/probe"
)

// DefaultMinOutputBytes is the smallest composite accepted as valid.
const DefaultMinOutputBytes = 1000

// ErrSameInputOutput is returned when the output path is one of the inputs.
var ErrSameInputOutput = mediaerr.ErrSameInputOutput

// Result describes a finished composition.
type Result struct {
	Output     string      `json:"output"`
	Placements []Placement `json:"placements"`
	// Passthrough is set when nothing was placed and the base was copied.
	Passthrough bool `json:"passthrough"`
	// ExpectedDuration is the planned output duration in seconds.
	ExpectedDuration float64 `json:"expected_duration_seconds"`
	HasAudio         bool    `json:"has_audio"`
}

// Compositor places overlays onto base videos.
type Compositor struct {
	engine   ffmpeg.Executor
	prober   probe.Prober
	profile  ffmpeg.EncodeProfile
	ceiling  float64
	minBytes int64
	logger   *slog.Logger
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithExtendCeiling sets the multiple of the base duration after which no
// further placement starts.
func WithExtendCeiling(c float64) Option {
	return func(comp *Compositor) {
		if c > 0 {
			comp.ceiling = c
		}
	}
}

// WithMinOutputBytes sets the minimum accepted output size.
func WithMinOutputBytes(n int64) Option {
	return func(c *Compositor) {
		if n > 0 {
			c.minBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompositor creates a Compositor encoding with profile.
func NewCompositor(engine ffmpeg.Executor, prober probe.Prober, profile ffmpeg.EncodeProfile, opts ...Option) *Compositor {
	c := &Compositor{
		engine:   engine,
		prober:   prober,
		profile:  profile,
		ceiling:  DefaultExtendCeiling,
		minBytes: DefaultMinOutputBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prepared is a probed and planned composition that has not run yet.
type Prepared struct {
	Base     *probe.MediaDescriptor
	Overlay  *probe.MediaDescriptor
	Schedule Schedule
	// Composition is nil when nothing can be placed.
	Composition *Composition
}

// Prepare probes both inputs and plans the composition without running it.
func (c *Compositor) Prepare(ctx context.Context, basePath, overlayPath string, req Request) (*Prepared, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for _, p := range []string{basePath, overlayPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: %s", mediaerr.ErrInputMissing, p)
		}
	}

	base, err := c.prober.Probe(ctx, basePath)
	if err != nil {
		return nil, fmt.Errorf("probe base video: %w", err)
	}
	ov, err := c.prober.Probe(ctx, overlayPath)
	if err != nil {
		return nil, fmt.Errorf("probe overlay video: %w", err)
	}
	prep := &Prepared{Base: base, Overlay: ov}

	prep.Schedule, err = Plan(base.Duration, ov.Duration, req, c.ceiling)
	for _, start := range prep.Schedule.Skipped {
		c.logger.Debug("skipping overlay window past the end of the base video",
			slog.Float64("start", start),
			slog.Float64("end", start+ov.Duration),
			slog.Float64("base_duration", base.Duration),
		)
	}
	if prep.Schedule.Capped {
		c.logger.Warn("stopped generating overlay windows at the extension ceiling",
			slog.Float64("ceiling_seconds", base.Duration*c.ceiling),
		)
	}
	if err != nil {
		c.logger.Warn("no valid overlay placement, copying base video", slog.String("reason", err.Error()))
		return prep, nil
	}

	prep.Composition = Build(base, ov, prep.Schedule.Placements, req)
	if prep.Composition.OverlayAudioDropped {
		c.logger.Warn("overlay has audio but the base video does not, dropping overlay audio",
			slog.String("overlay", overlayPath),
		)
	}
	return prep, nil
}

// Compose writes basePath with the overlay placed per req to output.
//
// Zero placements is not an error: the base is stream-copied and the result is
// marked as passthrough. Engine failures are not retried; on any failure no
// file is left at output.
func (c *Compositor) Compose(ctx context.Context, basePath, overlayPath, output string, req Request) (*Result, error) {
	if err := ffmpeg.CheckOutput(output, basePath, overlayPath); err != nil {
		return nil, err
	}

	prep, err := c.Prepare(ctx, basePath, overlayPath, req)
	if err != nil {
		return nil, err
	}
	base, comp := prep.Base, prep.Composition

	start := time.Now()
	if comp == nil {
		if err := c.passthrough(ctx, basePath, output); err != nil {
			return nil, err
		}
		return &Result{
			Output:           output,
			Passthrough:      true,
			ExpectedDuration: base.Duration,
			HasAudio:         base.HasAudio,
		}, nil
	}

	inv := ffmpeg.Invocation{
		Inputs:     []ffmpeg.Input{ffmpeg.In(basePath), ffmpeg.In(overlayPath)},
		Graph:      comp.Graph,
		OutputArgs: c.outputArgs(base.FrameRate, comp.Audio),
		Output:     output,
	}

	c.logger.Info("compositing overlay",
		slog.String("base", basePath),
		slog.String("overlay", overlayPath),
		slog.String("position", string(req.Position)),
		slog.Int("placements", len(prep.Schedule.Placements)),
		slog.Float64("expected_duration", comp.Duration),
	)

	if err := c.engine.Run(ctx, inv); err != nil {
		return nil, fmt.Errorf("composite overlay: %w", err)
	}
	if err := ffmpeg.ValidateOutput(output, c.minBytes); err != nil {
		return nil, err
	}

	c.logger.Info("overlay composite complete",
		slog.String("output", output),
		slog.Duration("elapsed", time.Since(start)),
	)
	return &Result{
		Output:           output,
		Placements:       prep.Schedule.Placements,
		ExpectedDuration: comp.Duration,
		HasAudio:         comp.Audio != AudioNone,
	}, nil
}

func (c *Compositor) outputArgs(fps float64, audio AudioMode) []string {
	args := c.profile.VideoArgs(fps)
	switch audio {
	case AudioEncode:
		args = append(args, c.profile.AudioArgs()...)
	case AudioCopy:
		args = append(args, "-c:a", "copy")
	}
	return append(args, c.profile.ContainerArgs()...)
}

func (c *Compositor) passthrough(ctx context.Context, basePath, output string) error {
	if err := c.engine.Run(ctx, ffmpeg.Invocation{
		Inputs:     []ffmpeg.Input{ffmpeg.In(basePath)},
		OutputArgs: []string{"-c", "copy"},
		Output:     output,
	}); err != nil {
		return fmt.Errorf("copy base video: %w", err)
	}
	return ffmpeg.ValidateOutput(output, c.minBytes)
}
