package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediacompose/internal/audio"
	"github.com/maauso/mediacompose/internal/job"
	"github.com/maauso/mediacompose/internal/mediaerr"
	"github.com/maauso/mediacompose/internal/overlay"
	"github.com/maauso/mediacompose/internal/probe"
)

// Compositor places overlay clips onto base videos.
type Compositor interface {
	Compose(ctx context.Context, basePath, overlayPath, output string, req overlay.Request) (*overlay.Result, error)
}

// Concatenator joins video segments.
type Concatenator interface {
	Concatenate(ctx context.Context, segments []string, output string) error
}

// Mixer lays background music under a video.
type Mixer interface {
	AddBackgroundMusic(ctx context.Context, videoPath string, tracks []audio.Track, output string, opts audio.MixOptions) (*audio.MixResult, error)
}

// Pipelines groups the media operations exposed over HTTP.
type Pipelines struct {
	Prober       probe.Prober
	Compositor   Compositor
	Concatenator Concatenator
	Mixer        Mixer
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	jobs      *job.Service
	pipes     Pipelines
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(jobs *job.Service, pipes Pipelines, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		jobs:      jobs,
		pipes:     pipes,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Probe handles POST /probe requests. It runs synchronously.
func (h *Handlers) Probe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if !h.decode(w, r, &req) {
		return
	}

	desc, err := h.pipes.Prober.Probe(r.Context(), req.Path)
	if err != nil {
		h.logger.Warn("probe failed",
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), err.Error(), mediaerr.Code(err))
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// CreateOverlay handles POST /overlays requests.
func (h *Handlers) CreateOverlay(w http.ResponseWriter, r *http.Request) {
	var req OverlayRequest
	if !h.decode(w, r, &req) {
		return
	}

	oreq := req.ToRequest()
	if err := oreq.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	h.submit(w, r, job.Spec{
		Kind:     job.KindOverlay,
		Output:   req.OutputPath,
		PushToS3: req.PushToS3,
		Run: func(ctx context.Context, output string) (job.Outcome, error) {
			res, err := h.pipes.Compositor.Compose(ctx, req.BasePath, req.OverlayPath, output, oreq)
			if err != nil {
				return job.Outcome{}, err
			}
			return job.Outcome{Output: res.Output, Result: res}, nil
		},
	})
}

// CreateConcatenation handles POST /concatenations requests.
func (h *Handlers) CreateConcatenation(w http.ResponseWriter, r *http.Request) {
	var req ConcatRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.submit(w, r, job.Spec{
		Kind:     job.KindConcat,
		Output:   req.OutputPath,
		PushToS3: req.PushToS3,
		Run: func(ctx context.Context, output string) (job.Outcome, error) {
			if err := h.pipes.Concatenator.Concatenate(ctx, req.Segments, output); err != nil {
				return job.Outcome{}, err
			}
			return job.Outcome{Output: output}, nil
		},
	})
}

// CreateMix handles POST /mixes requests.
func (h *Handlers) CreateMix(w http.ResponseWriter, r *http.Request) {
	var req MixRequest
	if !h.decode(w, r, &req) {
		return
	}

	tracks, opts := req.ToTracks(), req.ToOptions()
	h.submit(w, r, job.Spec{
		Kind:     job.KindMix,
		Output:   req.OutputPath,
		PushToS3: req.PushToS3,
		Run: func(ctx context.Context, output string) (job.Outcome, error) {
			res, err := h.pipes.Mixer.AddBackgroundMusic(ctx, req.VideoPath, tracks, output, opts)
			if err != nil {
				return job.Outcome{}, err
			}
			return job.Outcome{Output: res.Output, Result: res}, nil
		},
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		h.jobError(w, jobID, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(found))
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelJob handles DELETE /jobs/{id} requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := h.jobs.Cancel(r.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "job already finished", "JOB_FINISHED")
			return
		}
		h.jobError(w, jobID, err)
		return
	}

	h.logger.Info("job cancellation requested", slog.String("job_id", jobID))
	w.WriteHeader(http.StatusAccepted)
}

// decode reads and validates a JSON body into dst. It writes the error
// response and returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, spec job.Spec) {
	created, err := h.jobs.Submit(r.Context(), spec)
	if err != nil {
		if errors.Is(err, job.ErrShuttingDown) {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down", "SHUTTING_DOWN")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("kind", string(spec.Kind)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		ID:         created.ID,
		Kind:       string(created.Kind),
		Status:     string(created.Status),
		OutputPath: created.OutputPath,
	})
}

func (h *Handlers) jobError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error("failed to get job",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
}

// statusFor maps a pipeline error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mediaerr.ErrInputMissing):
		return http.StatusNotFound
	case errors.Is(err, mediaerr.ErrUnprobeableMedia):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
