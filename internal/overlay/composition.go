package overlay

import (
	"fmt"
	"math"
	"strconv"

	"github.com/maauso/mediacompose/internal/graph"
	"github.com/maauso/mediacompose/internal/probe"
)

// fpsTolerance is the frame rate difference below which the overlay is not resampled.
const fpsTolerance = 0.01

// AudioMode describes how the output audio stream is produced.
type AudioMode int

const (
	// AudioNone produces no audio stream.
	AudioNone AudioMode = iota
	// AudioCopy maps the base audio unchanged.
	AudioCopy
	// AudioEncode maps a filtered audio pad that must be encoded.
	AudioEncode
)

// Composition is the filter graph for one overlay run.
type Composition struct {
	Graph *graph.Graph
	Audio AudioMode
	// Duration is the expected output duration in seconds.
	Duration float64
	// OverlayAudioDropped is set when the overlay carries audio the base cannot mix with.
	OverlayAudioDropped bool
}

// Build creates the filter graph compositing ov onto base for each placement.
// Input 0 is the base video and input 1 the overlay.
func Build(base, ov *probe.MediaDescriptor, placements []Placement, req Request) *Composition {
	g := graph.New()
	n := len(placements)

	end := base.Duration
	for _, p := range placements {
		end = max(end, p.End())
	}
	extend := req.AllowExtendDuration && end > base.Duration
	if !extend {
		end = base.Duration
	}

	ovBase := g.Chain("overlay_base", []graph.Pad{g.Input(1, graph.Video)}, overlayFilters(base, ov, req)...)
	copies := g.Split("ib", ovBase, n)
	shifted := make([]graph.Pad, n)
	for i, p := range placements {
		shifted[i] = g.Chain(fmt.Sprintf("iv%d", i), []graph.Pad{copies[i]},
			graph.F("setpts", "PTS+"+graph.Num(p.Start)+"/TB"))
	}

	baseFilters := []graph.Filter{graph.F("format", "yuv420p")}
	if extend {
		baseFilters = append(baseFilters, graph.F("tpad").
			Set("stop_mode", "clone").
			Set("stop_duration", graph.Num(end-base.Duration)))
	}
	cur := g.Chain("base", []graph.Pad{g.Input(0, graph.Video)}, baseFilters...)

	x, y := req.Position.Anchor()
	for i := range placements {
		label := fmt.Sprintf("v%d", i+1)
		if i == n-1 {
			label = "outv"
		}
		// eof_action=pass hides the overlay once its copy ends.
		f := graph.F("overlay", x, y).Set("format", "yuv420").Set("eof_action", "pass")
		cur = g.Chain(label, []graph.Pad{cur, shifted[i]}, f)
	}
	g.SetVideoOutput(cur)

	c := &Composition{Graph: g, Duration: end}
	switch {
	case base.HasAudio && ov.HasAudio:
		c.Audio = AudioEncode
		buildMixedAudio(g, ov, placements, req, extend)
	case base.HasAudio:
		c.Audio = buildBaseAudio(g, req, extend, end)
	case ov.HasAudio:
		c.OverlayAudioDropped = true
	}
	return c
}

// overlayFilters normalizes the overlay stream: frame rate, pixel aspect,
// transparency, size and timestamp origin.
func overlayFilters(base, ov *probe.MediaDescriptor, req Request) []graph.Filter {
	var fs []graph.Filter
	if req.MatchFPS && base.FrameRate > 0 && math.Abs(ov.FrameRate-base.FrameRate) > fpsTolerance {
		fs = append(fs, graph.F("fps", graph.Num(base.FrameRate)))
	}
	if !ov.SquarePixels() {
		fs = append(fs, graph.F("setsar", "1"))
	}
	if !ov.HasAlpha {
		fs = append(fs, graph.F("chromakey", req.ChromaColor, graph.Num(req.Similarity), graph.Num(req.Blend)))
	}
	fs = append(fs, graph.F("format", "yuva420p"))

	w, h := ScaledSize(ov, req.ScalePercent)
	fs = append(fs, graph.F("scale", strconv.Itoa(w), strconv.Itoa(h)).Set("flags", "bicubic"))

	if ov.Duration > 0 {
		fs = append(fs, graph.F("trim", "0", graph.Num(ov.Duration)))
	}
	return append(fs, graph.F("setpts", "PTS-STARTPTS"))
}

// ScaledSize returns the overlay size after scaling its display resolution by
// pct. Both sides are rounded down to an even number of at least 2.
func ScaledSize(ov *probe.MediaDescriptor, pct float64) (w, h int) {
	width := ov.DisplayWidth
	if width <= 0 {
		width = ov.Width
	}
	return evenFloor(float64(width) * pct), evenFloor(float64(ov.Height) * pct)
}

func evenFloor(v float64) int {
	n := int(math.Floor(v))
	n -= n % 2
	if n < 2 {
		return 2
	}
	return n
}

func buildMixedAudio(g *graph.Graph, ov *probe.MediaDescriptor, placements []Placement, req Request, extend bool) {
	var fs []graph.Filter
	if ov.Duration > 0 {
		fs = append(fs, graph.F("atrim", "0", graph.Num(ov.Duration)))
	}
	fs = append(fs,
		graph.F("asetpts", "PTS-STARTPTS"),
		graph.F("volume", graph.Num(req.OverlayGain)),
	)
	iaBase := g.Chain("ia_base", []graph.Pad{g.Input(1, graph.Audio)}, fs...)
	copies := g.Split("iab", iaBase, len(placements))

	mainPad := g.Input(0, graph.Audio)
	if req.MainGain != 1 {
		mainPad = g.Chain("ma", []graph.Pad{mainPad}, graph.F("volume", graph.Num(req.MainGain)))
	}

	inputs := []graph.Pad{mainPad}
	for i, p := range placements {
		ms := strconv.FormatInt(int64(math.Round(p.Start*1000)), 10)
		inputs = append(inputs, g.Chain(fmt.Sprintf("ia%d", i), []graph.Pad{copies[i]},
			graph.F("adelay").Set("delays", ms).Set("all", "1")))
	}

	duration := "first"
	if extend {
		duration = "longest"
	}
	out := g.Chain("outa", inputs, graph.F("amix").
		Set("inputs", strconv.Itoa(len(inputs))).
		Set("duration", duration).
		Set("dropout_transition", "2"))
	g.SetAudioOutput(out)
}

func buildBaseAudio(g *graph.Graph, req Request, extend bool, end float64) AudioMode {
	var fs []graph.Filter
	if req.MainGain != 1 {
		fs = append(fs, graph.F("volume", graph.Num(req.MainGain)))
	}
	if extend {
		fs = append(fs, graph.F("apad").Set("whole_dur", graph.Num(end)))
	}
	if len(fs) == 0 {
		g.SetAudioOutput(g.Input(0, graph.Audio))
		return AudioCopy
	}
	g.SetAudioOutput(g.Chain("outa", []graph.Pad{g.Input(0, graph.Audio)}, fs...))
	return AudioEncode
}
