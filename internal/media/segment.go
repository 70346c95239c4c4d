// Package media re-encodes video segments to a uniform profile and joins them
// into a single file.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maauso/mediacompose/internal/ffmpeg"
	"github.com/maauso/mediacompose/internal/graph"
	"github.com/maauso/mediacompose/internal/mediaerr"
	"github.com/maauso/mediacompose/internal/probe"
)

// Size thresholds below which a file is not considered valid media.
const (
	DefaultMinSegmentBytes   = 1000
	DefaultMinOutputBytes    = 10000
	DefaultMinReencodedBytes = 1024
)

// minTrimSeconds is the shortest duration a trimmed segment is cut to.
const minTrimSeconds = 0.001

// Static errors for media operations.
var (
	// ErrNoSegments is returned when no segments are provided for joining.
	ErrNoSegments = errors.New("no segments provided")
	// ErrSameInputOutput is returned when an operation would overwrite its input.
	ErrSameInputOutput = mediaerr.ErrSameInputOutput
)

// SegmentEncoder validates segments and re-encodes them to the segment profile.
type SegmentEncoder struct {
	engine   ffmpeg.Executor
	prober   probe.Prober
	profile  ffmpeg.EncodeProfile
	kind     string
	minBytes int64
	logger   *slog.Logger
}

// EncoderOption configures a SegmentEncoder.
type EncoderOption func(*SegmentEncoder)

// WithMinSegmentBytes sets the minimum size of input and processed segments.
func WithMinSegmentBytes(n int64) EncoderOption {
	return func(e *SegmentEncoder) {
		if n > 0 {
			e.minBytes = n
		}
	}
}

// WithEncoderLogger sets the logger.
func WithEncoderLogger(l *slog.Logger) EncoderOption {
	return func(e *SegmentEncoder) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewSegmentEncoder creates a SegmentEncoder encoding with profiles.Segment.
func NewSegmentEncoder(engine ffmpeg.Executor, prober probe.Prober, profiles ffmpeg.Profiles, opts ...EncoderOption) *SegmentEncoder {
	e := &SegmentEncoder{
		engine:   engine,
		prober:   prober,
		profile:  profiles.Segment,
		kind:     profiles.Kind,
		minBytes: DefaultMinSegmentBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hardware reports whether segments are encoded on a GPU.
func (e *SegmentEncoder) Hardware() bool {
	return e.profile.Hardware()
}

// Validate checks that path exists, is large enough to be media and carries a
// video stream. Failures are never worth retrying.
func (e *SegmentEncoder) Validate(ctx context.Context, path string) (*probe.MediaDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", mediaerr.ErrInputMissing, path)
	}
	if info.Size() < e.minBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, want at least %d", mediaerr.ErrInputMissing, path, info.Size(), e.minBytes)
	}

	d, err := e.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// TrimTarget returns the duration a segment is cut to before concatenation.
// Every segment but the last loses exactly one frame period, never going
// below 1ms; the last keeps its full length and gets 0 (no trim). A segment
// with an unknown frame rate is not trimmed either.
func TrimTarget(d *probe.MediaDescriptor, last bool) float64 {
	if last || d.FrameRate <= 0 || d.Duration <= 0 {
		return 0
	}
	return math.Max(minTrimSeconds, d.Duration-1/d.FrameRate)
}

// Encode re-encodes seg to dst, cut to trim seconds when trim > 0, and checks
// the result is large enough to be media.
func (e *SegmentEncoder) Encode(ctx context.Context, seg *probe.MediaDescriptor, dst string, trim float64) error {
	var out []string
	if trim > 0 {
		out = append(out, "-t", graph.Num(trim))
	}
	out = append(out, e.profile.Args(seg.FrameRate)...)

	e.logger.Debug("encoding segment",
		slog.String("src", seg.Path),
		slog.String("dst", dst),
		slog.Float64("duration", seg.Duration),
		slog.Float64("trim", trim),
	)

	if err := e.engine.Run(ctx, ffmpeg.Invocation{
		Inputs:     []ffmpeg.Input{ffmpeg.In(seg.Path)},
		OutputArgs: out,
		Output:     dst,
	}); err != nil {
		return fmt.Errorf("encode segment %s: %w", filepath.Base(seg.Path), err)
	}
	return ffmpeg.ValidateOutput(dst, e.minBytes)
}

// ReencodeToReference re-encodes input so its resolution, frame rate and codec
// family match reference. The picture is scaled to fit and padded with black;
// audio is kept only when both files have it.
func (e *SegmentEncoder) ReencodeToReference(ctx context.Context, input, reference, output string) error {
	if err := ffmpeg.CheckOutput(output, input, reference); err != nil {
		return err
	}

	src, err := e.prober.Probe(ctx, input)
	if err != nil {
		return fmt.Errorf("probe input: %w", err)
	}
	ref, err := e.prober.Probe(ctx, reference)
	if err != nil {
		return fmt.Errorf("probe reference: %w", err)
	}

	w, h := strconv.Itoa(ref.Width), strconv.Itoa(ref.Height)
	filters := []string{
		graph.F("scale").Set("w", w).Set("h", h).Set("force_original_aspect_ratio", "decrease").String(),
		graph.F("pad").Set("w", w).Set("h", h).Set("x", "(ow-iw)/2").Set("y", "(oh-ih)/2").Set("color", "black").String(),
		"setsar=1",
	}
	fpsMode := "vfr"
	if fps := int(math.Round(ref.FrameRate)); fps > 0 {
		filters = append(filters, graph.F("fps").Set("fps", strconv.Itoa(fps)).String())
		fpsMode = "cfr"
	}

	encoder := ffmpeg.EncoderForFamily(ref.CodecFamily, e.kind)
	args := referenceVideoArgs(encoder)
	maps := []string{"0:v:0"}
	if src.HasAudio && ref.HasAudio {
		maps = append(maps, "0:a:0")
		args = append(args, "-c:a", "aac", "-b:a", "160k", "-ar", "48000", "-ac", "2")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-sn", "-dn")
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mp4", ".mov":
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-fps_mode", fpsMode)

	e.logger.Info("re-encoding to reference",
		slog.String("input", input),
		slog.String("reference", reference),
		slog.String("encoder", encoder),
		slog.Int("width", ref.Width),
		slog.Int("height", ref.Height),
	)

	if err := e.engine.Run(ctx, ffmpeg.Invocation{
		Inputs:      []ffmpeg.Input{ffmpeg.In(input)},
		VideoFilter: strings.Join(filters, ","),
		Maps:        maps,
		OutputArgs:  args,
		Output:      output,
	}); err != nil {
		return fmt.Errorf("re-encode %s: %w", filepath.Base(input), err)
	}
	return ffmpeg.ValidateOutput(output, DefaultMinReencodedBytes)
}

func referenceVideoArgs(encoder string) []string {
	var args []string
	switch {
	case strings.HasSuffix(encoder, "_nvenc"):
		args = []string{"-c:v", encoder, "-preset", "p5", "-rc", "vbr", "-cq", "23"}
	case encoder == "libsvtav1":
		args = []string{"-c:v", encoder, "-preset", "8", "-crf", "35"}
	default:
		args = []string{"-c:v", encoder, "-preset", "fast", "-crf", "23"}
	}
	return append(args, "-pix_fmt", "yuv420p")
}
