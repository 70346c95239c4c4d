// Package audio mixes background music under a video's primary audio and
// assembles audio clips with silence.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/maauso/mediacompose/internal/ffmpeg"
	"github.com/maauso/mediacompose/internal/graph"
	"github.com/maauso/mediacompose/internal/mediaerr"
	"github.com/maauso/mediacompose/internal/probe"
)

const (
	// DefaultFadeSeconds is the longest fade applied to a music track.
	DefaultFadeSeconds = 3.0
	// DefaultMinOutputBytes is the smallest mixed video accepted as valid.
	DefaultMinOutputBytes = 1000
	// SampleRate is the rate music is resampled to before looping.
	SampleRate = 48000
)

// Static errors for audio operations.
var (
	// ErrNoChunks is returned when no chunks are provided for concatenation.
	ErrNoChunks = errors.New("no audio chunks provided")
	// ErrNegativeSilence is returned for a negative silence duration.
	ErrNegativeSilence = errors.New("silence duration must not be negative")
)

// Track is one background music cue.
type Track struct {
	// Asset is the music file. An empty asset marks a cue without music.
	Asset string `json:"asset" yaml:"asset" toml:"asset"`
	// Start is the offset in the video at which the cue begins, in seconds.
	Start float64 `json:"start_seconds" yaml:"start_seconds" toml:"start_seconds"`
	// Duration is how long the cue plays; shorter assets are looped.
	Duration float64 `json:"duration_seconds" yaml:"duration_seconds" toml:"duration_seconds"`
	Volume   float64 `json:"volume" yaml:"volume" toml:"volume"`
}

// MixOptions controls how music is mixed with the primary audio.
type MixOptions struct {
	MainGain    float64 `json:"main_gain" yaml:"main_gain" toml:"main_gain"`
	FadeSeconds float64 `json:"fade_seconds" yaml:"fade_seconds" toml:"fade_seconds"`
}

// DefaultMixOptions keeps the primary audio level and fades tracks over 3s.
func DefaultMixOptions() MixOptions {
	return MixOptions{MainGain: 1.0, FadeSeconds: DefaultFadeSeconds}
}

// MixResult describes a finished mix.
type MixResult struct {
	Output string `json:"output"`
	// Tracks is the number of music tracks mixed in.
	Tracks int `json:"tracks"`
	// Skipped lists the assets that were left out.
	Skipped []string `json:"skipped,omitempty"`
	// Copied is set when no track was usable and the video was copied unchanged.
	Copied bool `json:"copied"`
}

// Mixer combines audio tracks using ffmpeg.
type Mixer struct {
	engine   ffmpeg.Executor
	prober   probe.Prober
	minBytes int64
	logger   *slog.Logger
}

// Option configures a Mixer.
type Option func(*Mixer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mixer) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMinOutputBytes sets the minimum accepted size of a mixed video.
func WithMinOutputBytes(n int64) Option {
	return func(m *Mixer) {
		if n > 0 {
			m.minBytes = n
		}
	}
}

// NewMixer creates a Mixer.
func NewMixer(engine ffmpeg.Executor, prober probe.Prober, opts ...Option) *Mixer {
	m := &Mixer{
		engine:   engine,
		prober:   prober,
		minBytes: DefaultMinOutputBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// music is a track whose asset exists and has a known length.
type music struct {
	Track
	length float64
}

// AddBackgroundMusic mixes tracks under the primary audio of videoPath and
// writes the result to output. The video stream is copied and the primary
// audio length is authoritative.
//
// Tracks without an asset, with a missing or unreadable asset, or without a
// positive duration are skipped with a warning. When no track remains the
// video is copied unchanged. Engine failures are not retried.
func (m *Mixer) AddBackgroundMusic(ctx context.Context, videoPath string, tracks []Track, output string, opts MixOptions) (*MixResult, error) {
	sources := []string{videoPath}
	for _, t := range tracks {
		if t.Asset != "" {
			sources = append(sources, t.Asset)
		}
	}
	if err := ffmpeg.CheckOutput(output, sources...); err != nil {
		return nil, err
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("%w: %s", mediaerr.ErrInputMissing, videoPath)
	}
	if opts.FadeSeconds < 0 {
		opts.FadeSeconds = 0
	}

	res := &MixResult{Output: output}
	usable := m.usableTracks(ctx, tracks, res)
	if len(usable) == 0 {
		m.logger.Info("no usable background music, copying video", slog.String("video", videoPath))
		if err := copyFile(videoPath, output); err != nil {
			return nil, err
		}
		res.Copied = true
		return res, nil
	}

	video, err := m.prober.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}

	inputs := []ffmpeg.Input{ffmpeg.In(videoPath)}
	for _, t := range usable {
		inputs = append(inputs, ffmpeg.In(t.Asset))
	}

	m.logger.Info("adding background music",
		slog.String("video", videoPath),
		slog.Int("tracks", len(usable)),
		slog.Float64("main_gain", opts.MainGain),
		slog.Float64("fade_seconds", opts.FadeSeconds),
	)

	start := time.Now()
	if err := m.engine.Run(ctx, ffmpeg.Invocation{
		Inputs: inputs,
		Graph:  MusicGraph(video, tracksOf(usable), lengths(usable), opts),
		OutputArgs: []string{
			"-c:v", "copy",
			"-c:a", "aac",
			"-b:a", "192k",
			"-ar", strconv.Itoa(SampleRate),
			"-ac", "2",
		},
		Output: output,
	}); err != nil {
		return nil, fmt.Errorf("add background music: %w", err)
	}
	if err := ffmpeg.ValidateOutput(output, m.minBytes); err != nil {
		return nil, err
	}

	m.logger.Info("background music added",
		slog.String("output", output),
		slog.Duration("elapsed", time.Since(start)),
	)
	res.Tracks = len(usable)
	return res, nil
}

func (m *Mixer) usableTracks(ctx context.Context, tracks []Track, res *MixResult) []music {
	var out []music
	for i, t := range tracks {
		if t.Asset == "" {
			m.logger.Debug("skipping cue without music", slog.Int("track", i))
			continue
		}
		skip := func(reason string) {
			m.logger.Warn("skipping background music", slog.Int("track", i), slog.String("asset", t.Asset), slog.String("reason", reason))
			res.Skipped = append(res.Skipped, t.Asset)
		}
		if _, err := os.Stat(t.Asset); err != nil {
			skip("file not found")
			continue
		}
		if t.Duration <= 0 {
			skip("duration is not positive")
			continue
		}
		length, err := m.prober.Duration(ctx, t.Asset)
		if err != nil || length <= 0 {
			skip("cannot read duration")
			continue
		}
		out = append(out, music{Track: t, length: length})
	}
	return out
}

func tracksOf(ms []music) []Track {
	out := make([]Track, len(ms))
	for i, m := range ms {
		out[i] = m.Track
	}
	return out
}

func lengths(ms []music) []float64 {
	out := make([]float64, len(ms))
	for i, m := range ms {
		out[i] = m.length
	}
	return out
}

// MusicGraph builds the mix of tracks, whose assets are inputs 1..N with the
// given lengths, under the primary audio of video (input 0).
func MusicGraph(video *probe.MediaDescriptor, tracks []Track, lengths []float64, opts MixOptions) *graph.Graph {
	g := graph.New()
	n := len(tracks)

	mixed := make([]graph.Pad, n)
	for i, t := range tracks {
		fs := []graph.Filter{graph.F("aresample", strconv.Itoa(SampleRate))}
		if lengths[i] < t.Duration {
			loops := int(t.Duration/lengths[i]) + 1
			fs = append(fs, graph.F("aloop").
				Set("loop", strconv.Itoa(loops)).
				Set("size", strconv.Itoa(int(lengths[i]*SampleRate))))
		}
		fs = append(fs,
			graph.F("atrim", "0", graph.Num(t.Duration)),
			graph.F("asetpts", "PTS-STARTPTS"),
		)
		fs = append(fs, fades(t.Duration, opts.FadeSeconds, i == 0, i == n-1)...)

		ms := strconv.FormatInt(int64(math.Round(t.Start*1000)), 10)
		fs = append(fs,
			graph.F("adelay").Set("delays", ms).Set("all", "1"),
			graph.F("volume", graph.Num(t.Volume)),
		)
		mixed[i] = g.Chain(fmt.Sprintf("music_%d", i), []graph.Pad{g.Input(i+1, graph.Audio)}, fs...)
	}

	var bgm graph.Pad
	if n == 1 {
		bgm = g.Chain("bgm_mixed", mixed, graph.F("anull"))
	} else {
		bgm = g.Chain("bgm_mixed", mixed, graph.F("amix").
			Set("inputs", strconv.Itoa(n)).
			Set("duration", "longest").
			Set("dropout_transition", "2"))
	}

	var final graph.Pad
	if video.HasAudio {
		main := g.Input(0, graph.Audio)
		if opts.MainGain != 1 {
			main = g.Chain("main_audio", []graph.Pad{main}, graph.F("volume", graph.Num(opts.MainGain)))
		}
		final = g.Chain("final_audio", []graph.Pad{main, bgm}, graph.F("amix").
			Set("inputs", "2").
			Set("duration", "first").
			Set("dropout_transition", "2"))
	} else {
		// Without primary audio the video length bounds the music.
		d := graph.Num(video.Duration)
		final = g.Chain("final_audio", []graph.Pad{bgm},
			graph.F("apad").Set("whole_dur", d),
			graph.F("atrim", "0", d),
		)
	}

	g.SetVideoOutput(g.Input(0, graph.Video))
	g.SetAudioOutput(final)
	return g
}

// fades returns the envelope of a track lasting d seconds. The first track
// only fades out, the last only fades in, others (and a lone track) both.
func fades(d, fade float64, first, last bool) []graph.Filter {
	length := math.Min(fade, d/2)
	if length <= 0 {
		return nil
	}
	fadeIn := graph.F("afade").Set("t", "in").Set("st", "0").Set("d", graph.Num(length))
	fadeOut := graph.F("afade").Set("t", "out").Set("st", graph.Num(math.Max(0, d-length))).Set("d", graph.Num(length))

	switch {
	case first && !last:
		return []graph.Filter{fadeOut}
	case last && !first:
		return []graph.Filter{fadeIn}
	default:
		return []graph.Filter{fadeIn, fadeOut}
	}
}

// copyFile copies src to dst, creating dst's directory. A failed copy leaves
// no file at dst.
func copyFile(src, dst string) (err error) {
	if err := ffmpeg.CheckOutput(dst, src); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %s", mediaerr.ErrInputMissing, src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", dst, cerr)
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
