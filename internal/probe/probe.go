// Package probe reads media metadata with ffprobe and turns it into immutable
// MediaDescriptor snapshots.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/maauso/mediacompose/internal/ffmpeg"
	"github.com/maauso/mediacompose/internal/mediaerr"
)

// ErrNoVideoStream is returned when a file has no video stream.
var ErrNoVideoStream = errors.New("no video stream")

// MediaDescriptor is a read-only snapshot of one media file.
type MediaDescriptor struct {
	Path   string `json:"path"`
	Size   int64  `json:"size_bytes"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// DisplayWidth is Width corrected by the sample aspect ratio.
	DisplayWidth      int     `json:"display_width"`
	FrameRate         float64 `json:"frame_rate"`
	Duration          float64 `json:"duration_seconds"`
	PixelFormat       string  `json:"pixel_format"`
	SampleAspectRatio string  `json:"sample_aspect_ratio,omitempty"`
	HasAlpha          bool    `json:"has_alpha"`
	HasAudio          bool    `json:"has_audio"`
	Codec             string  `json:"codec"`
	CodecFamily       string  `json:"codec_family"`
}

// SquarePixels reports whether the sample aspect ratio is 1:1 or unset.
func (d *MediaDescriptor) SquarePixels() bool {
	return squareSAR(d.SampleAspectRatio)
}

// Prober reads media metadata.
type Prober interface {
	// Probe describes a file with at least one video stream.
	Probe(ctx context.Context, path string) (*MediaDescriptor, error)
	// Duration returns the container duration of any media file, audio-only included.
	Duration(ctx context.Context, path string) (float64, error)
}

// Compile-time check that FFprobe implements Prober.
var _ Prober = (*FFprobe)(nil)

// FFprobe implements Prober using the ffprobe CLI.
type FFprobe struct {
	binary string
	runner ffmpeg.CommandRunner
	logger *slog.Logger
}

// NewFFprobe creates an FFprobe. If binary is empty, it defaults to "ffprobe".
// A nil runner uses ffmpeg.ExecRunner and a nil logger uses slog.Default().
func NewFFprobe(binary string, runner ffmpeg.CommandRunner, logger *slog.Logger) *FFprobe {
	if binary == "" {
		binary = "ffprobe"
	}
	if runner == nil {
		runner = ffmpeg.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFprobe{binary: binary, runner: runner, logger: logger}
}

// Probe runs a single ffprobe JSON query against path.
func (p *FFprobe) Probe(ctx context.Context, path string) (*MediaDescriptor, error) {
	out, err := p.query(ctx, path)
	if err != nil {
		return nil, err
	}

	d, err := ParseJSON(path, out)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("probed media",
		slog.String("path", path),
		slog.Int("width", d.Width),
		slog.Int("height", d.Height),
		slog.Float64("fps", d.FrameRate),
		slog.Float64("duration", d.Duration),
		slog.String("pix_fmt", d.PixelFormat),
		slog.Bool("alpha", d.HasAlpha),
		slog.Bool("audio", d.HasAudio),
	)
	return d, nil
}

// Duration returns the container duration of path.
func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.query(ctx, path)
	if err != nil {
		return 0, err
	}

	var raw ffprobeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return 0, fmt.Errorf("%w: parse ffprobe JSON for %s: %v", mediaerr.ErrUnprobeableMedia, path, err)
	}

	d := parseFloat(raw.Format.Duration)
	if d <= 0 {
		for _, s := range raw.Streams {
			if v := parseFloat(s.Duration); v > d {
				d = v
			}
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s has no duration", mediaerr.ErrUnprobeableMedia, path)
	}
	return d, nil
}

func (p *FFprobe) query(ctx context.Context, path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w: %s", mediaerr.ErrUnprobeableMedia, mediaerr.ErrInputMissing, path)
	}

	out, err := p.runner.Output(ctx, p.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: ffprobe %s: %v", mediaerr.ErrUnprobeableMedia, path, err)
	}
	return out, nil
}

// ParseJSON converts raw ffprobe JSON output for path into a MediaDescriptor.
// Exported for testing without a real ffprobe binary.
func ParseJSON(path string, data []byte) (*MediaDescriptor, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe JSON for %s: %v", mediaerr.ErrUnprobeableMedia, path, err)
	}

	var video, audio *ffprobeStream
	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil && s.Disposition["attached_pic"] == 0 {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}
	if video == nil {
		return nil, fmt.Errorf("%w: %w: %s", mediaerr.ErrUnprobeableMedia, ErrNoVideoStream, path)
	}

	fps := ParseFrameRate(video.RFrameRate)
	if fps == 0 {
		fps = ParseFrameRate(video.AvgFrameRate)
	}

	duration := parseFloat(video.Duration)
	if duration <= 0 {
		duration = parseFloat(raw.Format.Duration)
	}

	d := &MediaDescriptor{
		Path:              path,
		Size:              int64(parseFloat(raw.Format.Size)),
		Width:             video.Width,
		Height:            video.Height,
		DisplayWidth:      DisplayWidth(video.Width, video.SampleAspectRatio),
		FrameRate:         fps,
		Duration:          duration,
		PixelFormat:       video.PixFmt,
		SampleAspectRatio: video.SampleAspectRatio,
		HasAlpha:          HasAlpha(video.PixFmt),
		HasAudio:          audio != nil,
		Codec:             video.CodecName,
		CodecFamily:       CodecFamily(video.CodecName),
	}
	return d, nil
}

// ParseFrameRate parses "num/den" or a plain number. A zero denominator or an
// unparsable value yields 0.
func ParseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	dv, err := strconv.ParseFloat(den, 64)
	if err != nil || dv == 0 {
		return 0
	}
	return n / dv
}

// HasAlpha reports whether a pixel format name embeds an alpha plane.
func HasAlpha(pixFmt string) bool {
	f := strings.ToLower(pixFmt)
	for _, marker := range []string{"yuva", "rgba", "argb", "bgra", "abgr", "gbra"} {
		if strings.Contains(f, marker) {
			return true
		}
	}
	return strings.HasPrefix(f, "ya")
}

// DisplayWidth returns the width a frame is shown at once the sample aspect
// ratio is applied.
func DisplayWidth(width int, sar string) int {
	if squareSAR(sar) {
		return width
	}
	num, den, _ := strings.Cut(sar, ":")
	n, err1 := strconv.Atoi(num)
	d, err2 := strconv.Atoi(den)
	if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
		return width
	}
	return int(math.Round(float64(width) * float64(n) / float64(d)))
}

// CodecFamily groups codec names into h264, hevc, av1, vp9 or other.
func CodecFamily(codec string) string {
	c := strings.ToLower(codec)
	switch {
	case strings.Contains(c, "264") || c == "avc":
		return "h264"
	case strings.Contains(c, "265") || c == "hevc":
		return "hevc"
	case strings.Contains(c, "av1"):
		return "av1"
	case strings.Contains(c, "vp9"):
		return "vp9"
	default:
		return "other"
	}
}

func squareSAR(sar string) bool {
	switch sar {
	case "", "1:1", "0:1", "N/A":
		return true
	}
	return false
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type ffprobeStream struct {
	Index             int            `json:"index"`
	CodecName         string         `json:"codec_name"`
	CodecType         string         `json:"codec_type"`
	PixFmt            string         `json:"pix_fmt"`
	Width             int            `json:"width"`
	Height            int            `json:"height"`
	SampleAspectRatio string         `json:"sample_aspect_ratio"`
	RFrameRate        string         `json:"r_frame_rate"`
	AvgFrameRate      string         `json:"avg_frame_rate"`
	Duration          string         `json:"duration"`
	Disposition       map[string]int `json:"disposition"`
}
