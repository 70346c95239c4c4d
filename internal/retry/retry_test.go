package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	waits []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestLinear(t *testing.T) {
	p := Linear(3, 2*time.Second)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	sleeps := &recordedSleeps{}
	r := New(Default(), WithSleep(sleeps.sleep))

	var attempts []int
	err := r.Do(context.Background(), func(_ context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return errors.New("nvenc hung")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.waits)
}

func TestDo_Exhausted(t *testing.T) {
	sleeps := &recordedSleeps{}
	boom := errors.New("boom")
	var hooked []int
	r := New(Default(), WithSleep(sleeps.sleep), OnFailure(func(attempt int, err error) {
		hooked = append(hooked, attempt)
	}))

	err := r.Do(context.Background(), func(context.Context, int) error { return boom })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2, 3}, hooked)
	assert.Len(t, sleeps.waits, 2)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("missing input")
	calls := 0
	r := New(Default(), WithSleep((&recordedSleeps{}).sleep))

	err := r.Do(context.Background(), func(context.Context, int) error {
		calls++
		return Permanent(sentinel)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(Linear(3, time.Hour), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	err := r.Do(ctx, func(context.Context, int) error { return errors.New("fail") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_ClampsAttempts(t *testing.T) {
	calls := 0
	r := New(Policy{MaxAttempts: 0})
	_ = r.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errors.New("fail")
	})
	assert.Equal(t, 1, calls)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
