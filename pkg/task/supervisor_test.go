package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSpawnTracksUntilCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup := NewSupervisor(nil)
	release := make(chan struct{})

	h, err := sup.Spawn(func(ctx context.Context) (any, error) {
		<-release
		return "done", nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, h.ID())
	require.Equal(t, 1, sup.Len())

	_, err = h.Result()
	require.ErrorIs(t, err, ErrRunning)

	close(release)
	value, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, "done", value)
	require.Equal(t, 0, sup.Len())
}

func TestTaskErrorsAndPanicsAreReported(t *testing.T) {
	defer goleak.VerifyNone(t)

	recorder := &errorRecorder{}
	sup := NewSupervisor(recorder.record)

	failed, err := sup.Spawn(func(context.Context) (any, error) {
		return nil, errors.New("broken")
	})
	require.NoError(t, err)
	panicked, err := sup.Spawn(func(context.Context) (any, error) {
		panic("kaboom")
	})
	require.NoError(t, err)

	_, err = failed.Wait(waitCtx(t))
	require.EqualError(t, err, "broken")
	_, err = panicked.Wait(waitCtx(t))
	require.ErrorContains(t, err, "panic: kaboom")

	errs := recorder.all()
	require.Len(t, errs, 2)
	for _, err := range errs {
		if !strings.HasPrefix(err.Error(), "task ") {
			t.Fatalf("reported error %q should name the task", err)
		}
	}
}

func TestCancelAllStopsTasksWithoutWaiting(t *testing.T) {
	defer goleak.VerifyNone(t)

	recorder := &errorRecorder{}
	sup := NewSupervisor(recorder.record)
	started := make(chan struct{}, 3)
	unblock := make(chan struct{})

	for range 3 {
		_, err := sup.Spawn(func(ctx context.Context) (any, error) {
			started <- struct{}{}
			<-ctx.Done()
			<-unblock
			return nil, ctx.Err()
		})
		require.NoError(t, err)
	}
	for range 3 {
		<-started
	}

	returned := make(chan struct{})
	go func() {
		sup.CancelAll()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("CancelAll must not wait for tasks")
	}

	close(unblock)
	require.NoError(t, sup.Wait(waitCtx(t)))
	require.Equal(t, 0, sup.Len())
	require.Empty(t, recorder.all(), "cancellation is not an error")

	_, err := sup.Spawn(func(context.Context) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrClosed)
	require.True(t, sup.Closed())
}

func TestSpawnAfterDelaysStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup := NewSupervisor(nil)
	start := time.Now()

	h, err := sup.SpawnAfter(30*time.Millisecond, func(context.Context) (any, error) {
		return time.Since(start), nil
	})
	require.NoError(t, err)

	value, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	require.GreaterOrEqual(t, value.(time.Duration), 30*time.Millisecond)
}

func TestSpawnAfterCancelledNeverRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup := NewSupervisor(nil)
	var ran atomic.Bool

	h, err := sup.SpawnAfter(time.Hour, func(context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	require.NoError(t, err)

	h.Cancel()
	_, err = h.Wait(waitCtx(t))
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ran.Load())
}

func TestSpawnWithTimeoutSubstitutesValue(t *testing.T) {
	defer goleak.VerifyNone(t)

	recorder := &errorRecorder{}
	sup := NewSupervisor(recorder.record)
	cancelled := make(chan struct{})

	h, err := sup.SpawnWithTimeout(20*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}, "too slow")
	require.NoError(t, err)

	value, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, "too slow", value)
	<-cancelled
	require.Empty(t, recorder.all())
}

func TestSpawnWithTimeoutReturnsFastResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup := NewSupervisor(nil)
	h, err := sup.SpawnWithTimeout(time.Second, func(context.Context) (any, error) {
		return 42, nil
	}, 0)
	require.NoError(t, err)

	value, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, 42, value)
}
