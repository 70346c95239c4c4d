// Package overlay composites a possibly repeating overlay clip onto a base
// video at fixed anchor positions.
package overlay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Position is the anchor of the overlay on the base frame.
type Position string

// Supported positions.
const (
	Center      Position = "center"
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
)

// Margin is the distance in pixels between a corner anchored overlay and the
// frame edges.
const Margin = 20

// ErrInvalidRequest is returned for a request with out-of-range options.
var ErrInvalidRequest = errors.New("invalid overlay request")

// Positions lists every supported position.
func Positions() []Position {
	return []Position{Center, TopLeft, TopRight, BottomLeft, BottomRight}
}

// ParsePosition parses a position name, case-insensitively. Underscores are
// accepted in place of dashes.
func ParsePosition(s string) (Position, error) {
	p := Position(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown position %q", ErrInvalidRequest, s)
	}
	return p, nil
}

// Valid reports whether p is a supported position.
func (p Position) Valid() bool {
	for _, known := range Positions() {
		if p == known {
			return true
		}
	}
	return false
}

// Anchor returns the x and y expressions of the overlay filter for p.
func (p Position) Anchor() (x, y string) {
	near := strconv.Itoa(Margin)
	farX := "W-w-" + near
	farY := "H-h-" + near

	switch p {
	case Center:
		return "(W-w)/2", "(H-h)/2"
	case TopLeft:
		return near, near
	case TopRight:
		return farX, near
	case BottomLeft:
		return near, farY
	default:
		return farX, farY
	}
}

// Request holds the composition options.
type Request struct {
	// StartTime is when the first placement begins, in seconds.
	StartTime float64 `json:"start_time_seconds" yaml:"start_time_seconds" toml:"start_time_seconds"`
	// RepeatEvery is the interval between placements. Negative disables repetition.
	RepeatEvery  float64  `json:"repeat_every_seconds" yaml:"repeat_every_seconds" toml:"repeat_every_seconds"`
	Position     Position `json:"position" yaml:"position" toml:"position"`
	ChromaColor  string   `json:"chroma_color" yaml:"chroma_color" toml:"chroma_color"`
	Similarity   float64  `json:"similarity" yaml:"similarity" toml:"similarity"`
	Blend        float64  `json:"blend" yaml:"blend" toml:"blend"`
	ScalePercent float64  `json:"scale_percent" yaml:"scale_percent" toml:"scale_percent"`
	// MaxRepeats caps the number of candidate windows; 0 means unlimited.
	MaxRepeats int  `json:"max_repeats" yaml:"max_repeats" toml:"max_repeats"`
	MatchFPS   bool `json:"match_fps" yaml:"match_fps" toml:"match_fps"`
	// OverlayGain is applied to the overlay's audio.
	OverlayGain         float64 `json:"outro_gain" yaml:"outro_gain" toml:"outro_gain"`
	MainGain            float64 `json:"main_gain" yaml:"main_gain" toml:"main_gain"`
	AllowExtendDuration bool    `json:"allow_extend_duration" yaml:"allow_extend_duration" toml:"allow_extend_duration"`
}

// DefaultRequest returns a request placing a green-screen overlay in the top
// right corner at 10s and every 60s after that.
func DefaultRequest() Request {
	return Request{
		StartTime:    10,
		RepeatEvery:  60,
		Position:     TopRight,
		ChromaColor:  "0x00FF00",
		Similarity:   0.25,
		Blend:        0.05,
		ScalePercent: 0.30,
		MatchFPS:     true,
		OverlayGain:  1.0,
		MainGain:     1.0,
	}
}

// Validate checks option ranges.
func (r Request) Validate() error {
	switch {
	case !r.Position.Valid():
		return fmt.Errorf("%w: unknown position %q", ErrInvalidRequest, r.Position)
	case r.StartTime < 0:
		return fmt.Errorf("%w: start time %g is negative", ErrInvalidRequest, r.StartTime)
	case r.ScalePercent <= 0:
		return fmt.Errorf("%w: scale percent must be positive, got %g", ErrInvalidRequest, r.ScalePercent)
	case r.Similarity < 0 || r.Similarity > 1:
		return fmt.Errorf("%w: similarity %g outside [0,1]", ErrInvalidRequest, r.Similarity)
	case r.Blend < 0 || r.Blend > 1:
		return fmt.Errorf("%w: blend %g outside [0,1]", ErrInvalidRequest, r.Blend)
	case r.MaxRepeats < 0:
		return fmt.Errorf("%w: max repeats %d is negative", ErrInvalidRequest, r.MaxRepeats)
	case r.OverlayGain < 0 || r.MainGain < 0:
		return fmt.Errorf("%w: gains must not be negative", ErrInvalidRequest)
	case r.ChromaColor == "":
		return fmt.Errorf("%w: chroma color is empty", ErrInvalidRequest)
	}
	return nil
}
