// Package server provides the HTTP API for mediacompose: synchronous media
// probing plus asynchronous overlay, concatenation and music mix jobs.
package server

import (
	"time"

	"github.com/maauso/mediacompose/internal/audio"
	"github.com/maauso/mediacompose/internal/job"
	"github.com/maauso/mediacompose/internal/overlay"
)

// ProbeRequest is the request body for POST /probe.
type ProbeRequest struct {
	Path string `json:"path" validate:"required"`
}

// OverlayRequest is the request body for POST /overlays.
// Unset optional fields take the composition defaults.
type OverlayRequest struct {
	BasePath    string `json:"base_path" validate:"required"`
	OverlayPath string `json:"overlay_path" validate:"required,nefield=BasePath"`
	OutputPath  string `json:"output_path,omitempty"`

	StartTime           *float64 `json:"start_time_seconds,omitempty" validate:"omitempty,gte=0"`
	RepeatEvery         *float64 `json:"repeat_every_seconds,omitempty"`
	Position            string   `json:"position,omitempty" validate:"omitempty,oneof=center top-left top-right bottom-left bottom-right"`
	ChromaColor         string   `json:"chroma_color,omitempty"`
	Similarity          *float64 `json:"similarity,omitempty" validate:"omitempty,gte=0,lte=1"`
	Blend               *float64 `json:"blend,omitempty" validate:"omitempty,gte=0,lte=1"`
	ScalePercent        *float64 `json:"scale_percent,omitempty" validate:"omitempty,gt=0"`
	MaxRepeats          *int     `json:"max_repeats,omitempty" validate:"omitempty,gte=0"`
	MatchFPS            *bool    `json:"match_fps,omitempty"`
	OverlayGain         *float64 `json:"outro_gain,omitempty" validate:"omitempty,gte=0"`
	MainGain            *float64 `json:"main_gain,omitempty" validate:"omitempty,gte=0"`
	AllowExtendDuration bool     `json:"allow_extend_duration,omitempty"`

	PushToS3 bool `json:"push_to_s3,omitempty"`
}

// ToRequest applies the set fields over overlay.DefaultRequest.
func (r OverlayRequest) ToRequest() overlay.Request {
	req := overlay.DefaultRequest()
	setIf(&req.StartTime, r.StartTime)
	setIf(&req.RepeatEvery, r.RepeatEvery)
	setIf(&req.Similarity, r.Similarity)
	setIf(&req.Blend, r.Blend)
	setIf(&req.ScalePercent, r.ScalePercent)
	setIf(&req.MaxRepeats, r.MaxRepeats)
	setIf(&req.MatchFPS, r.MatchFPS)
	setIf(&req.OverlayGain, r.OverlayGain)
	setIf(&req.MainGain, r.MainGain)
	if r.Position != "" {
		req.Position = overlay.Position(r.Position)
	}
	if r.ChromaColor != "" {
		req.ChromaColor = r.ChromaColor
	}
	req.AllowExtendDuration = r.AllowExtendDuration
	return req
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// ConcatRequest is the request body for POST /concatenations.
type ConcatRequest struct {
	Segments   []string `json:"segments" validate:"required,min=1,dive,required"`
	OutputPath string   `json:"output_path,omitempty"`
	PushToS3   bool     `json:"push_to_s3,omitempty"`
}

// TrackRequest is one music cue in a MixRequest. An empty asset marks a
// stretch without music.
type TrackRequest struct {
	Asset    string  `json:"asset"`
	Start    float64 `json:"start_seconds" validate:"gte=0"`
	Duration float64 `json:"duration_seconds" validate:"gte=0"`
	Volume   float64 `json:"volume" validate:"gte=0"`
}

// MixRequest is the request body for POST /mixes.
type MixRequest struct {
	VideoPath   string         `json:"video_path" validate:"required"`
	Tracks      []TrackRequest `json:"tracks" validate:"required,min=1,dive"`
	MainGain    *float64       `json:"main_gain,omitempty" validate:"omitempty,gte=0"`
	FadeSeconds *float64       `json:"fade_seconds,omitempty" validate:"omitempty,gte=0"`
	OutputPath  string         `json:"output_path,omitempty"`
	PushToS3    bool           `json:"push_to_s3,omitempty"`
}

// ToTracks converts the request cues to mixer tracks.
func (r MixRequest) ToTracks() []audio.Track {
	tracks := make([]audio.Track, len(r.Tracks))
	for i, t := range r.Tracks {
		tracks[i] = audio.Track{Asset: t.Asset, Start: t.Start, Duration: t.Duration, Volume: t.Volume}
	}
	return tracks
}

// ToOptions applies the set fields over audio.DefaultMixOptions.
func (r MixRequest) ToOptions() audio.MixOptions {
	opts := audio.DefaultMixOptions()
	setIf(&opts.MainGain, r.MainGain)
	setIf(&opts.FadeSeconds, r.FadeSeconds)
	return opts
}

// SubmitResponse is the response body for accepted jobs.
type SubmitResponse struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	OutputPath string `json:"output_path"`
}

// JobResponse is the response body for GET /jobs/{id}.
type JobResponse struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
	OutputPath  string     `json:"output_path,omitempty"`
	OutputURL   string     `json:"output_url,omitempty"`
	Result      any        `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:         j.ID,
		Kind:       string(j.Kind),
		Status:     string(j.Status),
		Error:      j.Error,
		ErrorCode:  j.ErrorCode,
		OutputPath: j.OutputPath,
		OutputURL:  j.OutputURL,
		Result:     j.Result,
		CreatedAt:  j.CreatedAt,
	}
	if !j.StartedAt.IsZero() {
		resp.StartedAt = &j.StartedAt
	}
	if !j.CompletedAt.IsZero() {
		resp.CompletedAt = &j.CompletedAt
	}
	return resp
}

// ListJobsResponse is the response body for GET /jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
