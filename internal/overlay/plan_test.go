package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediacompose/internal/mediaerr"
)

func starts(s Schedule) []float64 {
	out := make([]float64, len(s.Placements))
	for i, p := range s.Placements {
		out[i] = p.Start
	}
	return out
}

func TestPlan_SinglePlacement(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 2
	req.RepeatEvery = -1

	s, err := Plan(10, 3, req, 0)
	require.NoError(t, err)
	require.Len(t, s.Placements, 1)
	assert.Equal(t, Placement{Start: 2, Duration: 3, Position: TopRight}, s.Placements[0])
	assert.Equal(t, 5.0, s.End())
}

func TestPlan_SinglePlacementRejected(t *testing.T) {
	tests := []struct {
		name   string
		start  float64
		extend bool
	}{
		{"start at base end", 10, false},
		{"start past base end even when extending", 12, true},
		{"runs past the end without extension", 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DefaultRequest()
			req.StartTime = tt.start
			req.RepeatEvery = -1
			req.AllowExtendDuration = tt.extend

			s, err := Plan(10, 3, req, 0)
			assert.ErrorIs(t, err, mediaerr.ErrInvalidPlacement)
			assert.Empty(t, s.Placements)
		})
	}
}

func TestPlan_SinglePlacementExtends(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 8
	req.RepeatEvery = -1
	req.AllowExtendDuration = true

	s, err := Plan(10, 3, req, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{8}, starts(s))
	assert.Equal(t, 11.0, s.End())
}

func TestPlan_Repeating(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 1
	req.RepeatEvery = 2

	s, err := Plan(6, 1, req, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 5}, starts(s))
	assert.LessOrEqual(t, s.End(), 6.0)
}

func TestPlan_MaxRepeats(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 0
	req.RepeatEvery = 1
	req.MaxRepeats = 3

	s, err := Plan(6, 1, req, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, starts(s))
}

func TestPlan_SkipsWindowsPastTheEnd(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 0
	req.RepeatEvery = 4

	// Windows at 0 and 4 fit; the one at 8 would end at 11.
	s, err := Plan(10, 3, req, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 4}, starts(s))
	assert.Equal(t, []float64{8}, s.Skipped)
}

func TestPlan_MaxRepeatsCountsSkippedWindows(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 0
	req.RepeatEvery = 1
	req.MaxRepeats = 3

	// Only the window at 0 fits a 2.5s overlay in a 3s base.
	s, err := Plan(3, 2.5, req, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, starts(s))
	assert.Equal(t, []float64{1, 2}, s.Skipped)
}

func TestPlan_StartPastEndIsPassthrough(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 6

	s, err := Plan(6, 1, req, 0)
	assert.ErrorIs(t, err, mediaerr.ErrInvalidPlacement)
	assert.Empty(t, s.Placements)
}

func TestPlan_ExtendingStopsAtCeiling(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 0
	req.RepeatEvery = 5
	req.AllowExtendDuration = true

	s, err := Plan(10, 3, req, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5, 10, 15, 20}, starts(s))
	assert.True(t, s.Capped)
	assert.Equal(t, 23.0, s.End())

	s, err = Plan(10, 3, req, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5, 10}, starts(s))
}

func TestPlan_ExtendingHonoursMaxRepeats(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 0
	req.RepeatEvery = 5
	req.MaxRepeats = 2
	req.AllowExtendDuration = true

	s, err := Plan(10, 3, req, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5}, starts(s))
	assert.False(t, s.Capped)
}

func TestPlan_ZeroIntervalPlacesOnce(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 1
	req.RepeatEvery = 0

	s, err := Plan(10, 2, req, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, starts(s))
}

func TestPlan_NonDecreasing(t *testing.T) {
	req := DefaultRequest()
	req.StartTime = 0.5
	req.RepeatEvery = 0.75
	req.AllowExtendDuration = true

	s, err := Plan(7, 1.2, req, 0)
	require.NoError(t, err)
	for i := 1; i < len(s.Placements); i++ {
		assert.GreaterOrEqual(t, s.Placements[i].Start, s.Placements[i-1].Start)
	}
}

func TestRequest_Validate(t *testing.T) {
	assert.NoError(t, DefaultRequest().Validate())

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"unknown position", func(r *Request) { r.Position = "middle" }},
		{"negative start", func(r *Request) { r.StartTime = -1 }},
		{"zero scale", func(r *Request) { r.ScalePercent = 0 }},
		{"similarity above one", func(r *Request) { r.Similarity = 1.5 }},
		{"negative blend", func(r *Request) { r.Blend = -0.1 }},
		{"negative max repeats", func(r *Request) { r.MaxRepeats = -2 }},
		{"negative gain", func(r *Request) { r.MainGain = -1 }},
		{"empty chroma color", func(r *Request) { r.ChromaColor = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRequest()
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRequest)
		})
	}
}

func TestParsePosition(t *testing.T) {
	p, err := ParsePosition("Bottom_Left")
	require.NoError(t, err)
	assert.Equal(t, BottomLeft, p)

	_, err = ParsePosition("nowhere")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPosition_Anchor(t *testing.T) {
	tests := map[Position][2]string{
		Center:      {"(W-w)/2", "(H-h)/2"},
		TopLeft:     {"20", "20"},
		TopRight:    {"W-w-20", "20"},
		BottomLeft:  {"20", "H-h-20"},
		BottomRight: {"W-w-20", "H-h-20"},
	}
	for pos, want := range tests {
		x, y := pos.Anchor()
		assert.Equal(t, want, [2]string{x, y}, string(pos))
	}
}
