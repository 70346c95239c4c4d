package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/maauso/mediacompose/internal/ffmpeg"
	"github.com/maauso/mediacompose/internal/graph"
	"github.com/maauso/mediacompose/internal/mediaerr"
)

// minAudioBytes only asserts that an audio output was written.
const minAudioBytes = 1

var mp3Args = []string{
	"-c:a", "libmp3lame",
	"-b:a", "192k",
	"-ar", strconv.Itoa(SampleRate),
	"-ac", "2",
	"-f", "mp3",
}

// ExtendWithSilence writes input to output with front seconds of silence
// before it and back seconds after it. With no padding the file is copied.
func (m *Mixer) ExtendWithSilence(ctx context.Context, input, output string, front, back float64) error {
	if front < 0 || back < 0 {
		return fmt.Errorf("%w: front=%g back=%g", ErrNegativeSilence, front, back)
	}
	if err := ffmpeg.CheckOutput(output, input); err != nil {
		return err
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("%w: %s", mediaerr.ErrInputMissing, input)
	}
	if front == 0 && back == 0 {
		return copyFile(input, output)
	}

	length, err := m.prober.Duration(ctx, input)
	if err != nil {
		return fmt.Errorf("probe audio: %w", err)
	}

	g := graph.NewAudio()
	g.SetAudioOutput(g.Chain("outa", []graph.Pad{g.Input(0, graph.Audio)}, SilenceFilters(front, back)...))

	total := length + front + back
	m.logger.Debug("extending audio with silence",
		slog.String("input", input),
		slog.Float64("front", front),
		slog.Float64("back", back),
		slog.Float64("total", total),
	)

	args := append([]string{"-t", graph.Num(total)}, mp3Args...)
	if err := m.engine.Run(ctx, ffmpeg.Invocation{
		Inputs:     []ffmpeg.Input{ffmpeg.In(input)},
		Graph:      g,
		OutputArgs: args,
		Output:     output,
	}); err != nil {
		return fmt.Errorf("extend audio: %w", err)
	}
	return ffmpeg.ValidateOutput(output, minAudioBytes)
}

// SilenceFilters delays the audio by front seconds and pads its end so a
// -t limit can cut it back seconds after the original end.
func SilenceFilters(front, back float64) []graph.Filter {
	var fs []graph.Filter
	if front > 0 {
		ms := strconv.FormatInt(int64(math.Round(front*1000)), 10)
		fs = append(fs, graph.F("adelay").Set("delays", ms).Set("all", "1"))
	}
	if back > 0 {
		fs = append(fs, graph.F("apad"))
	}
	if len(fs) == 0 {
		fs = append(fs, graph.F("anull"))
	}
	return fs
}

// ConcatWithSilence joins chunks in order with gap seconds of silence between
// consecutive chunks. A single chunk is copied.
func (m *Mixer) ConcatWithSilence(ctx context.Context, chunks []string, output string, gap float64) error {
	if len(chunks) == 0 {
		return ErrNoChunks
	}
	if gap < 0 {
		return fmt.Errorf("%w: gap=%g", ErrNegativeSilence, gap)
	}
	if err := ffmpeg.CheckOutput(output, chunks...); err != nil {
		return err
	}
	for i, c := range chunks {
		if _, err := os.Stat(c); err != nil {
			return fmt.Errorf("%w: chunk %d: %s", mediaerr.ErrInputMissing, i, c)
		}
	}
	if len(chunks) == 1 {
		return copyFile(chunks[0], output)
	}

	inputs := make([]ffmpeg.Input, len(chunks))
	for i, c := range chunks {
		inputs[i] = ffmpeg.In(c)
	}

	m.logger.Debug("concatenating audio chunks",
		slog.Int("chunks", len(chunks)),
		slog.Float64("gap", gap),
		slog.String("output", output),
	)

	if err := m.engine.Run(ctx, ffmpeg.Invocation{
		Inputs:     inputs,
		Graph:      GapGraph(len(chunks), gap),
		OutputArgs: mp3Args,
		Output:     output,
	}); err != nil {
		return fmt.Errorf("concatenate audio: %w", err)
	}
	return ffmpeg.ValidateOutput(output, minAudioBytes)
}

// GapGraph concatenates n audio inputs, padding every one but the last with
// gap seconds of silence.
func GapGraph(n int, gap float64) *graph.Graph {
	g := graph.NewAudio()
	pads := make([]graph.Pad, n)
	for i := range n {
		f := graph.F("anull")
		if i < n-1 {
			f = graph.F("apad").Set("pad_dur", graph.Num(gap))
		}
		pads[i] = g.Chain(fmt.Sprintf("a%d", i), []graph.Pad{g.Input(i, graph.Audio)}, f)
	}
	g.SetAudioOutput(g.Chain("outa", pads, graph.F("concat").
		Set("n", strconv.Itoa(n)).
		Set("v", "0").
		Set("a", "1")))
	return g
}
