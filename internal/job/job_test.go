package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediacompose/internal/job/id"
	"github.com/maauso/mediacompose/internal/mediaerr"
)

func TestNew(t *testing.T) {
	job := New(KindOverlay)

	assert.True(t, id.Valid(job.ID), job.ID)
	assert.Equal(t, KindOverlay, job.Kind)
	assert.Equal(t, StatusInQueue, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)
	assert.False(t, job.IsTerminal())
}

func TestKind_IsValid(t *testing.T) {
	for _, k := range []Kind{KindOverlay, KindConcat, KindMix} {
		assert.True(t, k.IsValid(), k)
	}
	assert.False(t, Kind("render").IsValid())
	assert.False(t, Kind("").IsValid())
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []Status
	}{
		{"complete", []Status{StatusRunning, StatusCompleted}},
		{"fail", []Status{StatusRunning, StatusFailed}},
		{"cancel while queued", []Status{StatusCancelled}},
		{"cancel while running", []Status{StatusRunning, StatusCancelled}},
		{"time out", []Status{StatusRunning, StatusTimedOut}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("job-1", KindConcat)
			for _, s := range tt.path {
				require.NoError(t, job.TransitionTo(s))
			}
			assert.True(t, job.IsTerminal())
			assert.False(t, job.CompletedAt.IsZero())
		})
	}
}

func TestJob_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from []Status
		to   Status
	}{
		{"queued to completed", nil, StatusCompleted},
		{"queued to timed out", nil, StatusTimedOut},
		{"completed to running", []Status{StatusRunning, StatusCompleted}, StatusRunning},
		{"failed to completed", []Status{StatusRunning, StatusFailed}, StatusCompleted},
		{"cancelled to running", []Status{StatusCancelled}, StatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("job-1", KindMix)
			for _, s := range tt.from {
				require.NoError(t, job.TransitionTo(s))
			}
			assert.ErrorIs(t, job.TransitionTo(tt.to), ErrInvalidTransition)
		})
	}
}

func TestJob_StartSetsStartedAt(t *testing.T) {
	job := New(KindOverlay)
	require.NoError(t, job.Start())
	assert.Equal(t, StatusRunning, job.GetStatus())
	assert.False(t, job.StartedAt.IsZero())
	assert.True(t, job.CompletedAt.IsZero())
}

func TestJob_Complete(t *testing.T) {
	job := New(KindOverlay)
	require.NoError(t, job.Start())
	require.NoError(t, job.Complete("https://bucket/out.mp4", []float64{1, 2}))

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "https://bucket/out.mp4", job.OutputURL)
	assert.Equal(t, []float64{1, 2}, job.Result)
}

func TestJob_FailRecordsCode(t *testing.T) {
	job := New(KindConcat)
	require.NoError(t, job.Start())
	require.NoError(t, job.Fail("encode failure: exit 1", mediaerr.CodeEncodeFailure))

	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "encode failure: exit 1", job.Error)
	assert.Equal(t, mediaerr.CodeEncodeFailure, job.ErrorCode)

	assert.ErrorIs(t, job.Fail("again", mediaerr.CodeInternal), ErrInvalidTransition)
	assert.Equal(t, "encode failure: exit 1", job.Error, "a rejected transition keeps the first error")
}

func TestJob_Timeout(t *testing.T) {
	job := New(KindMix)
	require.NoError(t, job.Start())
	require.NoError(t, job.Timeout("context deadline exceeded"))
	assert.Equal(t, StatusTimedOut, job.Status)
	assert.Equal(t, mediaerr.CodeCancelled, job.ErrorCode)
}

func TestJob_Clone(t *testing.T) {
	job := New(KindOverlay)
	job.OutputPath = "/out/a.mp4"
	job.PushToS3 = true

	clone := job.Clone()
	assert.Equal(t, job.ID, clone.ID)
	assert.Equal(t, job.OutputPath, clone.OutputPath)
	assert.True(t, clone.PushToS3)

	require.NoError(t, clone.Start())
	assert.Equal(t, StatusInQueue, job.GetStatus())
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, StatusInQueue.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestJob_RejectedTransitionNamesBothStates(t *testing.T) {
	job := NewWithID("job-1", KindConcat)
	require.NoError(t, job.Start())

	err := job.TransitionTo(StatusInQueue)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorContains(t, err, "RUNNING -> IN_QUEUE")
}
