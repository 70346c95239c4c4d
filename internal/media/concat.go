package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/maauso/mediacompose/internal/ffmpeg"
	"github.com/maauso/mediacompose/internal/mediaerr"
	"github.com/maauso/mediacompose/internal/probe"
	"github.com/maauso/mediacompose/internal/retry"
	"github.com/maauso/mediacompose/internal/workspace"
)

// Diagnostics logs a snapshot of encoder resources.
type Diagnostics interface {
	Log(ctx context.Context, level slog.Level, msg string)
}

// Concatenator joins segments losslessly after re-encoding them to a uniform
// profile. The whole run is retried with a clean workspace on failure.
type Concatenator struct {
	engine    ffmpeg.Executor
	encoder   *SegmentEncoder
	diag      Diagnostics
	policy    retry.Policy
	retryOpts []retry.Option
	minBytes  int64
	logger    *slog.Logger
}

// ConcatOption configures a Concatenator.
type ConcatOption func(*Concatenator)

// WithRetryPolicy sets the attempt bound and backoff.
func WithRetryPolicy(p retry.Policy) ConcatOption {
	return func(c *Concatenator) {
		c.policy = p
	}
}

// WithRetryOptions passes extra options to the retry runner.
func WithRetryOptions(opts ...retry.Option) ConcatOption {
	return func(c *Concatenator) {
		c.retryOpts = append(c.retryOpts, opts...)
	}
}

// WithDiagnostics enables encoder resource snapshots.
func WithDiagnostics(d Diagnostics) ConcatOption {
	return func(c *Concatenator) {
		c.diag = d
	}
}

// WithMinOutputBytes sets the minimum size of the joined output.
func WithMinOutputBytes(n int64) ConcatOption {
	return func(c *Concatenator) {
		if n > 0 {
			c.minBytes = n
		}
	}
}

// WithConcatLogger sets the logger.
func WithConcatLogger(l *slog.Logger) ConcatOption {
	return func(c *Concatenator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConcatenator creates a Concatenator with three attempts and a 2s linear
// backoff unless configured otherwise.
func NewConcatenator(engine ffmpeg.Executor, encoder *SegmentEncoder, opts ...ConcatOption) *Concatenator {
	c := &Concatenator{
		engine:   engine,
		encoder:  encoder,
		policy:   retry.Default(),
		minBytes: DefaultMinOutputBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Concatenate joins segments, in order, into output. Every segment but the
// last is shortened by one frame so cut points do not repeat a frame.
//
// Inputs are validated before any work and invalid inputs fail immediately.
// Encode and validation failures are retried with a reset workspace. On
// failure no file is left at output.
func (c *Concatenator) Concatenate(ctx context.Context, segments []string, output string) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}
	if err := ffmpeg.CheckOutput(output, segments...); err != nil {
		return err
	}

	descs := make([]*probe.MediaDescriptor, len(segments))
	for i, s := range segments {
		d, err := c.encoder.Validate(ctx, s)
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		descs[i] = d
	}

	ws, err := workspace.Open(output, c.logger)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			c.logger.Warn("failed to clean workspace", slog.String("dir", ws.Dir()), slog.String("error", err.Error()))
		}
	}()

	if c.diag != nil {
		c.diag.Log(ctx, slog.LevelDebug, "encoder resources before concatenation")
	}

	start := time.Now()
	opts := []retry.Option{
		retry.WithLogger(c.logger),
		retry.OnFailure(func(attempt int, _ error) {
			c.removeOutput(output)
			if attempt > 1 && c.diag != nil && c.encoder.Hardware() {
				c.diag.Log(ctx, slog.LevelWarn, "hardware encoder failed repeatedly")
			}
		}),
	}
	runner := retry.New(c.policy, append(opts, c.retryOpts...)...)

	err = runner.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			if err := ws.Reset(); err != nil {
				return retry.Permanent(err)
			}
			c.logger.Info("retrying concatenation", slog.Int("attempt", attempt), slog.String("output", output))
		}
		err := c.attempt(ctx, ws, descs, output)
		if err != nil && !mediaerr.Retryable(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		c.removeOutput(output)
		return fmt.Errorf("concatenate %d segments: %w", len(segments), err)
	}

	c.logger.Info("concatenation complete",
		slog.String("output", output),
		slog.Int("segments", len(segments)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (c *Concatenator) attempt(ctx context.Context, ws *workspace.Workspace, descs []*probe.MediaDescriptor, output string) error {
	processed := make([]string, len(descs))
	for i, d := range descs {
		dst := ws.SegmentPath(i)
		if err := c.encoder.Encode(ctx, d, dst, TrimTarget(d, i == len(descs)-1)); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		processed[i] = dst
	}

	list, err := ws.WriteManifest(processed)
	if err != nil {
		return err
	}

	if err := c.engine.Run(ctx, ffmpeg.Invocation{
		Inputs: []ffmpeg.Input{ffmpeg.In(list, "-f", "concat", "-safe", "0")},
		OutputArgs: []string{
			"-c", "copy",
			"-bsf:a", "aac_adtstoasc",
			"-movflags", "+faststart",
		},
		Output: output,
	}); err != nil {
		return fmt.Errorf("join segments: %w", err)
	}

	return ffmpeg.ValidateOutput(output, c.minBytes)
}

func (c *Concatenator) removeOutput(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove output", slog.String("path", path), slog.String("error", err.Error()))
	}
}
