// Package job runs composition work asynchronously. A Job tracks one
// overlay, concatenation or mix through a small state machine; the Service
// runs jobs with bounded concurrency and keeps them in a Repository.
package job

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maauso/mediacompose/internal/job/id"
	"github.com/maauso/mediacompose/internal/mediaerr"
)

// Kind is the type of composition a job performs.
type Kind string

const (
	// KindOverlay composites an overlay clip onto a base video.
	KindOverlay Kind = "overlay"
	// KindConcat concatenates segments.
	KindConcat Kind = "concat"
	// KindMix mixes background music under a video.
	KindMix Kind = "mix"
)

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindOverlay || k == KindConcat || k == KindMix
}

// Status is where a job is in its lifecycle. A job moves from IN_QUEUE to
// RUNNING and ends in exactly one of the terminal states. A queued job may
// also be cancelled before it starts. TIMED_OUT marks a job stopped by the
// service's per-job deadline.
type Status string

const (
	StatusInQueue   Status = "IN_QUEUE"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when a job cannot move to the requested
// status from its current one, for example cancelling a finished job.
var ErrInvalidTransition = errors.New("invalid state transition")

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

func (s Status) allows(to Status) bool {
	switch s {
	case StatusInQueue:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to.Terminal()
	}
	return false
}

// Job is one asynchronous composition.
type Job struct {
	mu sync.RWMutex

	ID     string
	Kind   Kind
	Status Status
	// Error is the failure message; ErrorCode its stable classification.
	Error     string
	ErrorCode string
	// OutputPath is where the result is written.
	OutputPath string
	// PushToS3 indicates whether to publish the result.
	PushToS3 bool
	// OutputURL is the published URL if PushToS3 was true.
	OutputURL string
	// Result is the pipeline specific outcome, such as overlay placements.
	Result any

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a new Job of the given kind with a generated ID and initial
// IN_QUEUE status.
func New(kind Kind) *Job {
	return NewWithID(id.Generate(), kind)
}

// NewWithID creates a queued job with a caller-chosen ID.
func NewWithID(jobID string, kind Kind) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Kind:      kind,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the job to status, stamping StartedAt or CompletedAt.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !j.Status.allows(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
	}

	now := time.Now()
	j.Status, j.UpdatedAt = status, now
	if status == StatusRunning {
		j.StartedAt = now
	} else {
		j.CompletedAt = now
	}
	return nil
}

func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED with its result.
func (j *Job) Complete(outputURL string, result any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.OutputURL = outputURL
	j.Result = result
	return nil
}

// Fail transitions the job to FAILED with an error message and code.
func (j *Job) Fail(errMsg, code string) error {
	return j.stop(StatusFailed, errMsg, code)
}

func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT with an error message.
func (j *Job) Timeout(errMsg string) error {
	return j.stop(StatusTimedOut, errMsg, mediaerr.CodeCancelled)
}

func (j *Job) stop(status Status, errMsg, code string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(status); err != nil {
		return err
	}
	j.Error = errMsg
	j.ErrorCode = code
	return nil
}

// GetStatus returns the current status.
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal reports whether the job has finished in any way.
func (j *Job) IsTerminal() bool {
	return j.GetStatus().Terminal()
}

// Clone creates a copy of the job for safe reads. Result is shared and must
// not be mutated after Complete.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		Kind:        j.Kind,
		Status:      j.Status,
		Error:       j.Error,
		ErrorCode:   j.ErrorCode,
		OutputPath:  j.OutputPath,
		PushToS3:    j.PushToS3,
		OutputURL:   j.OutputURL,
		Result:      j.Result,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
