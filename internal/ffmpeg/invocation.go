package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/maauso/mediacompose/internal/graph"
)

// Static errors for invocation building.
var (
	// ErrNoInputs is returned when an invocation has no input files.
	ErrNoInputs = errors.New("invocation has no inputs")
	// ErrNoOutput is returned when an invocation has no output path.
	ErrNoOutput = errors.New("invocation has no output path")
)

// Input is one -i source with the options that must precede it.
type Input struct {
	Path    string
	Options []string
}

// In creates an Input with optional pre-input options such as "-f", "concat".
func In(path string, options ...string) Input {
	return Input{Path: path, Options: options}
}

// Invocation describes one complete ffmpeg command.
type Invocation struct {
	Inputs []Input
	// Graph is compiled into -filter_complex. Its outputs are mapped unless
	// Maps is set.
	Graph *graph.Graph
	// VideoFilter is a simple -vf chain for single-input commands.
	VideoFilter string
	Maps        []string
	OutputArgs  []string
	Output      string
}

// Args serializes the invocation into an argument vector, section by section:
// global flags, inputs, filter graph, maps, output options, output path.
func (inv Invocation) Args() ([]string, error) {
	if len(inv.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	if inv.Output == "" {
		return nil, ErrNoOutput
	}

	args := []string{"-hide_banner", "-nostdin", "-y"}

	for _, in := range inv.Inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}

	maps := inv.Maps
	if inv.Graph != nil {
		fc, err := inv.Graph.Compile()
		if err != nil {
			return nil, fmt.Errorf("compile filter graph: %w", err)
		}
		if fc != "" {
			args = append(args, "-filter_complex", fc)
		}
		if len(maps) == 0 {
			maps = inv.Graph.Maps()
		}
	}

	if inv.VideoFilter != "" {
		args = append(args, "-vf", inv.VideoFilter)
	}

	for _, m := range maps {
		args = append(args, "-map", m)
	}

	args = append(args, inv.OutputArgs...)
	args = append(args, inv.Output)
	return args, nil
}
