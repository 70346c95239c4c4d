package overlay

import (
	"fmt"

	"github.com/maauso/mediacompose/internal/mediaerr"
)

// DefaultExtendCeiling stops placement generation once a start time passes
// this multiple of the base duration.
const DefaultExtendCeiling = 2.0

// maxCandidates bounds the number of windows considered for one request.
const maxCandidates = 100000

// Placement is one window in which the overlay is shown.
type Placement struct {
	Start    float64  `json:"start_seconds"`
	Duration float64  `json:"duration_seconds"`
	Position Position `json:"position"`
}

// End returns the time the overlay disappears.
func (p Placement) End() float64 {
	return p.Start + p.Duration
}

// Schedule is the outcome of expanding a request into placements.
type Schedule struct {
	// Placements are ordered by start time.
	Placements []Placement
	// Skipped holds candidate start times dropped because the window would run
	// past the end of the base video.
	Skipped []float64
	// Capped is set when generation stopped at the extension ceiling.
	Capped bool
}

// End returns the furthest placement end, or 0 for an empty schedule.
func (s Schedule) End() float64 {
	var end float64
	for _, p := range s.Placements {
		end = max(end, p.End())
	}
	return end
}

// Plan expands req into placements of an overlay lasting overlayDur seconds
// over a base lasting baseDur seconds. ceiling is the multiple of baseDur
// after which no further windows start; values <= 0 use DefaultExtendCeiling.
//
// An empty schedule is returned together with an error matching
// mediaerr.ErrInvalidPlacement that explains why nothing was placed.
func Plan(baseDur, overlayDur float64, req Request, ceiling float64) (Schedule, error) {
	var s Schedule
	place := func(start float64) Placement {
		return Placement{Start: start, Duration: overlayDur, Position: req.Position}
	}

	if req.RepeatEvery < 0 {
		switch {
		case req.StartTime >= baseDur:
			return s, fmt.Errorf("%w: start %gs is not before the end of the base video (%gs)",
				mediaerr.ErrInvalidPlacement, req.StartTime, baseDur)
		case !req.AllowExtendDuration && req.StartTime+overlayDur > baseDur:
			s.Skipped = append(s.Skipped, req.StartTime)
			return s, fmt.Errorf("%w: overlay would end at %gs, after the base video (%gs), and extension is disabled",
				mediaerr.ErrInvalidPlacement, req.StartTime+overlayDur, baseDur)
		}
		s.Placements = []Placement{place(req.StartTime)}
		return s, nil
	}

	if ceiling <= 0 {
		ceiling = DefaultExtendCeiling
	}
	limit := req.MaxRepeats
	if req.RepeatEvery == 0 && limit == 0 {
		// Every candidate would start at the same time.
		limit = 1
	}

	for k := 0; k < maxCandidates; k++ {
		start := req.StartTime + float64(k)*req.RepeatEvery
		if !req.AllowExtendDuration && start >= baseDur {
			break
		}
		if limit > 0 && k >= limit {
			break
		}
		if start > baseDur*ceiling {
			s.Capped = true
			break
		}
		if !req.AllowExtendDuration && start+overlayDur > baseDur {
			s.Skipped = append(s.Skipped, start)
			continue
		}
		s.Placements = append(s.Placements, place(start))
	}

	if len(s.Placements) == 0 {
		return s, fmt.Errorf("%w: no window starting at %gs every %gs fits in %gs",
			mediaerr.ErrInvalidPlacement, req.StartTime, req.RepeatEvery, baseDur)
	}
	return s, nil
}
