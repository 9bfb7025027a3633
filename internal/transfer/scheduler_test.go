package transfer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tasksOf(n int) []PartTask {
	ranges, _ := Plan(int64(n), 1)

	return TasksFor(ranges)
}

func TestScheduler_SequentialOrder(t *testing.T) {
	var order []int

	s := Scheduler{Concurrency: 1, Retry: NewRetryPolicy(0)}

	err := s.Run(context.Background(), tasksOf(5), func(_ context.Context, task PartTask) error {
		order = append(order, task.PartNumber)

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func TestScheduler_SequentialNeverOverlaps(t *testing.T) {
	var (
		mu       sync.Mutex
		order    []int
		inFlight atomic.Int32
		peak     atomic.Int32
	)

	s := Scheduler{Concurrency: 1, Retry: NewRetryPolicy(0)}

	err := s.Run(context.Background(), tasksOf(4), func(_ context.Context, task PartTask) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		order = append(order, task.PartNumber)
		mu.Unlock()

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load(), "part i+1 must not start while part i is in flight")
	assert.Equal(t, []int{1, 2, 3, 4}, order)
}

func TestScheduler_SequentialStopsAtFirstFailure(t *testing.T) {
	var order []int

	s := Scheduler{Concurrency: 1, Retry: NewRetryPolicy(1)}

	err := s.Run(context.Background(), tasksOf(5), func(_ context.Context, task PartTask) error {
		order = append(order, task.PartNumber)
		if task.PartNumber == 3 {
			return errors.New("HTTP 500")
		}

		return nil
	})

	var exhausted *ChunkTransferExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Index)
	assert.Equal(t, []int{1, 2, 3, 3}, order, "part 3 retried once, parts 4 and 5 never started")
}

func TestScheduler_RespectsConcurrencyLimit(t *testing.T) {
	for _, window := range []Window{WindowSliding, WindowBatched} {
		var inFlight, peak atomic.Int32

		s := Scheduler{Concurrency: 3, Window: window, Retry: NewRetryPolicy(0)}

		err := s.Run(context.Background(), tasksOf(12), func(context.Context, PartTask) error {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)

			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			time.Sleep(2 * time.Millisecond)

			return nil
		})

		require.NoError(t, err)
		assert.LessOrEqual(t, peak.Load(), int32(3))
		assert.Positive(t, peak.Load())
	}
}

func TestScheduler_PassesAttemptNumber(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts = map[int][]int{}
	)

	s := Scheduler{Concurrency: 2, Retry: NewRetryPolicy(2)}

	err := s.Run(context.Background(), tasksOf(2), func(_ context.Context, task PartTask) error {
		mu.Lock()
		attempts[task.PartNumber] = append(attempts[task.PartNumber], task.Attempt)
		mu.Unlock()

		if task.PartNumber == 2 && task.Attempt < 2 {
			return errors.New("transient")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0}, attempts[1])
	assert.Equal(t, []int{0, 1, 2}, attempts[2])
}

func TestScheduler_NoNewAdmissionsAfterFailure(t *testing.T) {
	var started atomic.Int32

	s := Scheduler{Concurrency: 2, Retry: NewRetryPolicy(0)}

	err := s.Run(context.Background(), tasksOf(10), func(_ context.Context, task PartTask) error {
		started.Add(1)

		if task.PartNumber == 1 {
			return errors.New("boom")
		}

		// keep the sibling in flight until the failure is observed
		time.Sleep(50 * time.Millisecond)

		return nil
	})

	require.Error(t, err)
	assert.Equal(t, int32(2), started.Load())
}

func TestScheduler_InFlightSiblingsFinish(t *testing.T) {
	var finished atomic.Bool

	s := Scheduler{Concurrency: 2, Retry: NewRetryPolicy(0)}

	err := s.Run(context.Background(), tasksOf(2), func(ctx context.Context, task PartTask) error {
		if task.PartNumber == 1 {
			return errors.New("boom")
		}

		time.Sleep(20 * time.Millisecond)

		if ctx.Err() == nil {
			finished.Store(true)
		}

		return nil
	})

	require.Error(t, err)
	assert.True(t, finished.Load(), "sibling must not be cancelled")
}

func TestScheduler_BatchedWaitsForWave(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)

	s := Scheduler{Concurrency: 2, Window: WindowBatched, Retry: NewRetryPolicy(0)}

	err := s.Run(context.Background(), tasksOf(4), func(_ context.Context, task PartTask) error {
		if task.PartNumber == 1 {
			time.Sleep(20 * time.Millisecond)
		}

		mu.Lock()
		order = append(order, task.PartNumber)
		mu.Unlock()

		return nil
	})

	require.NoError(t, err)
	require.Len(t, order, 4)
	assert.ElementsMatch(t, []int{1, 2}, order[:2], "part 3 may not start before part 1 resolved")
}

func TestScheduler_BatchedStopsAfterFailedWave(t *testing.T) {
	var started atomic.Int32

	s := Scheduler{Concurrency: 2, Window: WindowBatched, Retry: NewRetryPolicy(0)}

	err := s.Run(context.Background(), tasksOf(6), func(_ context.Context, task PartTask) error {
		started.Add(1)

		if task.PartNumber == 2 {
			return errors.New("boom")
		}

		return nil
	})

	require.Error(t, err)
	assert.Equal(t, int32(2), started.Load())
}

func TestScheduler_InvalidConcurrency(t *testing.T) {
	err := Scheduler{}.Run(context.Background(), tasksOf(1), func(context.Context, PartTask) error { return nil })

	var cfgErr *InvalidConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestScheduler_Empty(t *testing.T) {
	called := false

	err := Scheduler{Concurrency: 2}.Run(context.Background(), nil, func(context.Context, PartTask) error {
		called = true

		return nil
	})

	require.NoError(t, err)
	assert.False(t, called)
}

func TestScheduler_RecoversPanickingAttempt(t *testing.T) {
	calls := 0

	s := Scheduler{Concurrency: 1, Retry: NewRetryPolicy(1)}

	err := s.Run(context.Background(), tasksOf(1), func(_ context.Context, task PartTask) error {
		calls++
		if task.Attempt == 0 {
			panic("nil body")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
