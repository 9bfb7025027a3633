package transfer

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/italolelis/chunk_transfer/internal/logctx"
	"golang.org/x/sync/errgroup"
)

// Window selects how bounded-parallel runs admit new tasks.
type Window int

const (
	// WindowSliding admits the next task as soon as any in-flight task resolves.
	WindowSliding Window = iota
	// WindowBatched admits tasks in waves of Concurrency and waits for a whole
	// wave before starting the next one.
	WindowBatched
)

// PartTask is a single part operation. It is passed by value to every attempt.
type PartTask struct {
	Range      ChunkRange
	PartNumber int
	Attempt    int
}

// TasksFor builds one task per range.
func TasksFor(ranges []ChunkRange) []PartTask {
	tasks := make([]PartTask, 0, len(ranges))
	for _, r := range ranges {
		tasks = append(tasks, PartTask{Range: r, PartNumber: r.PartNumber()})
	}

	return tasks
}

// PartFunc uploads a single part attempt.
type PartFunc func(ctx context.Context, task PartTask) error

// Scheduler drives part operations under a concurrency limit. A Concurrency of
// 1 processes tasks strictly in index order.
type Scheduler struct {
	Concurrency int
	Window      Window
	Retry       RetryPolicy
}

// Run executes every task through the retry policy. The first exhausted part
// stops admission of new tasks; tasks already in flight run to completion and
// are never cancelled because of a sibling failure.
func (s Scheduler) Run(ctx context.Context, tasks []PartTask, fn PartFunc) error {
	if s.Concurrency <= 0 {
		return &InvalidConfigurationError{Field: "concurrency", Reason: "must be positive"}
	}

	if len(tasks) == 0 {
		return nil
	}

	if s.Window == WindowBatched && s.Concurrency > 1 {
		return s.runBatched(ctx, tasks, fn)
	}

	return s.runSliding(ctx, tasks, fn)
}

func (s Scheduler) runSliding(ctx context.Context, tasks []PartTask, fn PartFunc) error {
	var (
		wg      errgroup.Group
		stopped atomic.Bool
	)

	sem := make(chan struct{}, s.Concurrency)

	for i := range tasks {
		task := tasks[i]

		sem <- struct{}{}

		// A slot is only released once the holder resolved, so a failure that
		// freed this slot is already visible here.
		if stopped.Load() {
			<-sem

			break
		}

		wg.Go(func() error {
			defer func() { <-sem }() // release the slot

			if err := s.attempt(ctx, task, fn); err != nil {
				stopped.Store(true)

				return err
			}

			return nil
		})
	}

	return wg.Wait()
}

func (s Scheduler) runBatched(ctx context.Context, tasks []PartTask, fn PartFunc) error {
	for start := 0; start < len(tasks); start += s.Concurrency {
		end := min(len(tasks), start+s.Concurrency)

		var wg errgroup.Group

		for _, task := range tasks[start:end] {
			wg.Go(func() error {
				return s.attempt(ctx, task, fn)
			})
		}

		if err := wg.Wait(); err != nil {
			return err
		}
	}

	return nil
}

// attempt runs task through the retry policy. A panicking attempt counts as a
// failed attempt instead of taking the process down.
func (s Scheduler) attempt(ctx context.Context, task PartTask, fn PartFunc) error {
	return s.Retry.Do(ctx, task.Range.Index, func(ctx context.Context, attempt int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logctx.LoggerFromContext(ctx).ErrorContext(ctx, "part operation panic",
					"part_number", task.PartNumber,
					"attempt", attempt,
					"panic", r,
					"stack", string(debug.Stack()))

				err = fmt.Errorf("part %d panicked: %v", task.PartNumber, r)
			}
		}()

		t := task
		t.Attempt = attempt

		return fn(ctx, t)
	})
}
