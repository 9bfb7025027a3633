package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/chunk_transfer/internal/logctx"
)

// UploadSession runs one chunked upload through
// Idle → Initiating → UploadingParts → Completing → Succeeded | Failed.
// A session is single-use: once it left Idle, further Upload calls are rejected.
type UploadSession struct {
	protocol   UploadProtocol
	opts       Options
	onProgress ProgressFunc

	mu     sync.Mutex
	status Status
}

// NewUploadSession validates opts and returns an idle session. onProgress may be nil.
func NewUploadSession(protocol UploadProtocol, opts Options, onProgress ProgressFunc) (*UploadSession, error) {
	if protocol == nil {
		return nil, &InvalidConfigurationError{Field: "protocol", Reason: "must not be nil"}
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &UploadSession{
		protocol:   protocol,
		opts:       opts,
		onProgress: onProgress,
		status:     Status{Direction: "upload", State: StateIdle},
	}, nil
}

// Status returns a snapshot of the session.
func (s *UploadSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Upload transfers src. Parts already stored server-side are not rolled back
// when a later step fails.
func (s *UploadSession) Upload(ctx context.Context, src Source) error {
	if src.Reader == nil && src.Size > 0 {
		return &InvalidConfigurationError{Field: "source", Reason: "reader must not be nil"}
	}

	if !s.begin(src) {
		return ErrSessionNotIdle
	}

	logger := logctx.LoggerFromContext(ctx).With("file_name", src.Name)

	ranges, err := Plan(src.Size, s.opts.ChunkSize)
	if err != nil {
		return s.fail(err)
	}

	logger.InfoContext(ctx, "initiating upload",
		"file_size", humanize.IBytes(uint64(src.Size)),
		"chunk_size", humanize.IBytes(uint64(s.opts.ChunkSize)),
		"total_chunks", len(ranges),
		"concurrency", s.opts.Concurrency,
	)

	sessionID, err := s.protocol.Initiate(ctx, src.Name, len(ranges))
	if err != nil {
		return s.fail(&TransferInitFailedError{Name: src.Name, Err: err})
	}

	ctx = logctx.WithSessionID(ctx, sessionID)

	s.update(func(st *Status) {
		st.SessionID = sessionID
		st.TotalParts = len(ranges)
	})

	agg := NewAggregator(len(ranges), s.opts.progressMode(), s.publish)

	if len(ranges) > 0 {
		s.transition(StateUploadingParts)

		if err := s.uploadParts(ctx, src, sessionID, ranges, agg); err != nil {
			logger.ErrorContext(ctx, "upload aborted", "err", err)

			return s.fail(err)
		}
	}

	s.transition(StateCompleting)

	if err := s.protocol.Complete(ctx, src.Name, sessionID, len(ranges)); err != nil {
		return s.fail(&CompletionFailedError{SessionID: sessionID, Err: err})
	}

	if _, err := agg.Finish(); err != nil {
		return s.fail(err)
	}

	s.transition(StateSucceeded)

	logger.InfoContext(ctx, "upload completed", "total_chunks", len(ranges))

	return nil
}

func (s *UploadSession) uploadParts(ctx context.Context, src Source, sessionID string, ranges []ChunkRange, agg *Aggregator) error {
	logger := logctx.LoggerFromContext(ctx)

	retry := NewRetryPolicy(s.opts.MaxRetries)
	retry.OnRetry = func(index, attempt int, err error) {
		logger.WarnContext(ctx, "part upload failed, retrying",
			"part_number", index+1, "attempt", attempt+1, "max_attempts", retry.MaxAttempts, "err", err)
	}

	scheduler := Scheduler{
		Concurrency: s.opts.Concurrency,
		Window:      s.opts.Window,
		Retry:       retry,
	}

	return scheduler.Run(ctx, TasksFor(ranges), func(ctx context.Context, task PartTask) error {
		index := task.Range.Index

		part := Part{
			SessionID:   sessionID,
			Name:        src.Name,
			Index:       index,
			Number:      task.PartNumber,
			TotalChunks: len(ranges),
			Attempt:     task.Attempt,
			Size:        task.Range.Size(),
			Body:        io.NewSectionReader(src.Reader, task.Range.Start, task.Range.Size()),
			OnProgress: func(sent, total int64) {
				agg.Report(index, sent, total)
			},
		}

		if err := s.protocol.UploadPart(ctx, part); err != nil {
			return fmt.Errorf("failed to upload part %d: %w", task.PartNumber, err)
		}

		agg.Complete(index)
		s.update(func(st *Status) { st.CompletedParts++ })

		logger.DebugContext(ctx, "part uploaded", "part_number", task.PartNumber, "part_size", humanize.IBytes(uint64(part.Size)))

		return nil
	})
}

func (s *UploadSession) begin(src Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State != StateIdle {
		return false
	}

	s.status.State = StateInitiating
	s.status.Name = src.Name
	s.status.Size = src.Size

	return true
}

func (s *UploadSession) transition(state State) {
	s.update(func(st *Status) { st.State = state })
}

func (s *UploadSession) update(fn func(st *Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.status)
}

func (s *UploadSession) fail(err error) error {
	s.update(func(st *Status) {
		st.State = StateFailed
		st.Reason = err.Error()
	})

	return err
}

// publish is the aggregator sink; it runs under the aggregator lock.
func (s *UploadSession) publish(percent float64) {
	s.update(func(st *Status) { st.Percent = percent })

	if s.onProgress != nil {
		s.onProgress(percent)
	}
}
