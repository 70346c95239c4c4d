// Package graph builds ffmpeg filter graphs as typed stages and edges.
//
// A Graph is assembled from input stream references and labelled stages; each
// stage consumes pads and produces new ones. Construction errors are sticky:
// the first invalid edge is remembered and reported by Validate and Compile,
// so call sites can chain stages without checking every step. The textual
// -filter_complex form only exists after Compile.
package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Static errors for graph construction.
var (
	// ErrUnknownPad is returned when a stage consumes a label nobody produced.
	ErrUnknownPad = errors.New("graph: unknown pad")
	// ErrPadReused is returned when a produced label is consumed twice.
	ErrPadReused = errors.New("graph: pad consumed more than once")
	// ErrDuplicateLabel is returned when two stages produce the same label.
	ErrDuplicateLabel = errors.New("graph: duplicate label")
	// ErrNoVideoOutput is returned when no video output pad was designated.
	ErrNoVideoOutput = errors.New("graph: no video output")
	// ErrNoAudioOutput is returned when an audio-only graph has no audio output.
	ErrNoAudioOutput = errors.New("graph: no audio output")
	// ErrDanglingPad is returned when a produced label is neither consumed nor an output.
	ErrDanglingPad = errors.New("graph: dangling pad")
	// ErrKindMismatch is returned when a pad is used where the other media kind is expected.
	ErrKindMismatch = errors.New("graph: media kind mismatch")
	// ErrInvalidSplit is returned when a split is requested with fewer than one branch.
	ErrInvalidSplit = errors.New("graph: split needs at least one branch")
)

// Kind is the media type carried by a pad.
type Kind int

const (
	// Video pads carry frames.
	Video Kind = iota
	// Audio pads carry samples.
	Audio
)

func (k Kind) String() string {
	if k == Audio {
		return "audio"
	}
	return "video"
}

// Pad is one end of an edge: either an input stream reference such as 0:v or
// a label produced by a stage.
type Pad struct {
	label  string
	kind   Kind
	stream bool
}

// Label returns the pad name without brackets.
func (p Pad) Label() string { return p.label }

// Kind returns the media kind of the pad.
func (p Pad) Kind() Kind { return p.kind }

// IsStream reports whether the pad references an input stream directly.
func (p Pad) IsStream() bool { return p.stream }

// String returns the bracketed form used inside a filter graph.
func (p Pad) String() string { return "[" + p.label + "]" }

// MapArg returns the value passed to -map for this pad.
func (p Pad) MapArg() string {
	if p.stream {
		return p.label
	}
	return "[" + p.label + "]"
}

// Param is a single filter option. An empty Key makes it positional.
type Param struct {
	Key   string
	Value string
}

// Filter is one ffmpeg filter with its options.
type Filter struct {
	Name   string
	Params []Param
}

// F creates a filter with positional options.
func F(name string, positional ...string) Filter {
	f := Filter{Name: name}
	for _, v := range positional {
		f.Params = append(f.Params, Param{Value: v})
	}
	return f
}

// Set returns a copy of the filter with a key=value option appended.
func (f Filter) Set(key, value string) Filter {
	params := make([]Param, len(f.Params), len(f.Params)+1)
	copy(params, f.Params)
	f.Params = append(params, Param{Key: key, Value: value})
	return f
}

func (f Filter) String() string {
	if len(f.Params) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		if p.Key == "" {
			parts[i] = p.Value
		} else {
			parts[i] = p.Key + "=" + p.Value
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Num formats a number as the shortest decimal that round-trips, never in
// exponent notation.
func Num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type stage struct {
	inputs  []Pad
	filters []Filter
	outputs []Pad
}

func (s stage) String() string {
	var b strings.Builder
	for _, in := range s.inputs {
		b.WriteString(in.String())
	}
	for i, f := range s.filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range s.outputs {
		b.WriteString(out.String())
	}
	return b.String()
}

// Graph is a composition graph under construction.
type Graph struct {
	stages   []stage
	produced map[string]Kind
	consumed map[string]bool
	order    []string
	video    *Pad
	audio    *Pad
	err      error

	// audioOnly graphs produce a single audio output and no video.
	audioOnly bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		produced: make(map[string]Kind),
		consumed: make(map[string]bool),
	}
}

// NewAudio returns an empty graph for audio-only outputs. It must designate
// an audio output and may not designate a video one.
func NewAudio() *Graph {
	g := New()
	g.audioOnly = true
	return g
}

// Input references stream kind of input file index, e.g. Input(1, Audio) is 1:a.
// Stream references may be consumed any number of times.
func (g *Graph) Input(index int, kind Kind) Pad {
	suffix := "v"
	if kind == Audio {
		suffix = "a"
	}
	return Pad{label: fmt.Sprintf("%d:%s", index, suffix), kind: kind, stream: true}
}

// Chain declares a stage that runs filters over inputs and produces label. The
// output kind is the kind of the first input; all inputs must share it.
func (g *Graph) Chain(label string, inputs []Pad, filters ...Filter) Pad {
	kind := Video
	if len(inputs) > 0 {
		kind = inputs[0].kind
	}
	for _, in := range inputs {
		if in.kind != kind {
			g.fail(fmt.Errorf("%w: %s into %s stage %q", ErrKindMismatch, in.kind, kind, label))
		}
	}
	out := Pad{label: label, kind: kind}
	g.add(stage{inputs: inputs, filters: filters, outputs: []Pad{out}})
	return out
}

// Source declares a stage without inputs, such as anullsrc.
func (g *Graph) Source(label string, kind Kind, filters ...Filter) Pad {
	out := Pad{label: label, kind: kind}
	g.add(stage{filters: filters, outputs: []Pad{out}})
	return out
}

// Split fans in out into n labelled copies named prefix0..prefixN-1. A single
// branch uses null/anull so the stage shape stays the same.
func (g *Graph) Split(prefix string, in Pad, n int) []Pad {
	if n < 1 {
		g.fail(fmt.Errorf("%w: %q asked for %d", ErrInvalidSplit, prefix, n))
		return nil
	}

	var f Filter
	switch {
	case n == 1 && in.kind == Audio:
		f = F("anull")
	case n == 1:
		f = F("null")
	case in.kind == Audio:
		f = F("asplit", strconv.Itoa(n))
	default:
		f = F("split", strconv.Itoa(n))
	}

	outs := make([]Pad, n)
	for i := range outs {
		outs[i] = Pad{label: fmt.Sprintf("%s%d", prefix, i), kind: in.kind}
	}
	g.add(stage{inputs: []Pad{in}, filters: []Filter{f}, outputs: outs})
	return outs
}

// SetVideoOutput designates the pad mapped as the output video stream.
func (g *Graph) SetVideoOutput(p Pad) {
	if p.kind != Video {
		g.fail(fmt.Errorf("%w: video output %q is %s", ErrKindMismatch, p.label, p.kind))
		return
	}
	g.video = &p
}

// SetAudioOutput designates the pad mapped as the output audio stream.
func (g *Graph) SetAudioOutput(p Pad) {
	if p.kind != Audio {
		g.fail(fmt.Errorf("%w: audio output %q is %s", ErrKindMismatch, p.label, p.kind))
		return
	}
	g.audio = &p
}

// VideoOutput returns the designated video pad.
func (g *Graph) VideoOutput() (Pad, bool) {
	if g.video == nil {
		return Pad{}, false
	}
	return *g.video, true
}

// AudioOutput returns the designated audio pad, if any.
func (g *Graph) AudioOutput() (Pad, bool) {
	if g.audio == nil {
		return Pad{}, false
	}
	return *g.audio, true
}

// Maps returns the -map values for the designated outputs, video first.
func (g *Graph) Maps() []string {
	var maps []string
	if g.video != nil {
		maps = append(maps, g.video.MapArg())
	}
	if g.audio != nil {
		maps = append(maps, g.audio.MapArg())
	}
	return maps
}

// Len returns the number of declared stages.
func (g *Graph) Len() int { return len(g.stages) }

// Validate checks the structural invariants of the graph.
func (g *Graph) Validate() error {
	if g.err != nil {
		return g.err
	}
	switch {
	case g.audioOnly && g.video != nil:
		return fmt.Errorf("%w: audio-only graph designates video output %q", ErrKindMismatch, g.video.label)
	case g.audioOnly && g.audio == nil:
		return ErrNoAudioOutput
	case !g.audioOnly && g.video == nil:
		return ErrNoVideoOutput
	}

	outputs := make(map[string]bool, 2)
	for _, p := range []*Pad{g.video, g.audio} {
		if p == nil || p.stream {
			continue
		}
		if _, ok := g.produced[p.label]; !ok {
			return fmt.Errorf("%w: output %q", ErrUnknownPad, p.label)
		}
		if g.consumed[p.label] {
			return fmt.Errorf("%w: output %q is also consumed", ErrPadReused, p.label)
		}
		outputs[p.label] = true
	}

	for _, label := range g.order {
		if !g.consumed[label] && !outputs[label] {
			return fmt.Errorf("%w: %q", ErrDanglingPad, label)
		}
	}
	return nil
}

// Compile validates the graph and returns its -filter_complex text. A graph
// whose outputs are plain stream references compiles to an empty string.
func (g *Graph) Compile() (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	parts := make([]string, len(g.stages))
	for i, s := range g.stages {
		parts[i] = s.String()
	}
	return strings.Join(parts, ";"), nil
}

func (g *Graph) add(s stage) {
	for _, in := range s.inputs {
		if in.stream {
			continue
		}
		if _, ok := g.produced[in.label]; !ok {
			g.fail(fmt.Errorf("%w: %q", ErrUnknownPad, in.label))
			continue
		}
		if g.consumed[in.label] {
			g.fail(fmt.Errorf("%w: %q", ErrPadReused, in.label))
			continue
		}
		g.consumed[in.label] = true
	}
	for _, out := range s.outputs {
		if _, ok := g.produced[out.label]; ok {
			g.fail(fmt.Errorf("%w: %q", ErrDuplicateLabel, out.label))
			continue
		}
		g.produced[out.label] = out.kind
		g.order = append(g.order, out.label)
	}
	g.stages = append(g.stages, s)
}

func (g *Graph) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}
