package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/chunk_transfer/internal/config"
	"github.com/italolelis/chunk_transfer/internal/fileapi"
	"github.com/italolelis/chunk_transfer/internal/http/rest"
	"github.com/italolelis/chunk_transfer/internal/logctx"
	"github.com/italolelis/chunk_transfer/internal/notifier"
	"github.com/italolelis/chunk_transfer/internal/storage"
	"github.com/italolelis/chunk_transfer/internal/telemetry"
	"github.com/italolelis/chunk_transfer/internal/transfer"
)

// indeterminateLogStep is how many bytes of an unknown-size download pass
// between two progress log lines.
const indeterminateLogStep = 64 * 1024 * 1024

type app struct {
	cfg      *config.Config
	client   *fileapi.Client
	tel      *telemetry.Telemetry
	journal  storage.TransferWriteRepository
	notifier notifier.Notifier
	tracker  *sessionTracker
}

// forEach runs fn for every argument in order. A failed transfer does not stop
// the following ones; all failures are returned together.
func (a *app) forEach(ctx context.Context, args []string, fn func(ctx context.Context, arg string) error) error {
	var errs []error

	for _, arg := range args {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())

			break
		}

		if err := fn(ctx, arg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *app) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	src, err := transfer.FileSource(f)
	if err != nil {
		return err
	}

	protocol, err := fileapi.NewProtocol(a.cfg.Protocol, a.client)
	if err != nil {
		return err
	}

	opts, err := a.cfg.TransferOptions()
	if err != nil {
		return err
	}

	session, err := transfer.NewUploadSession(
		transfer.NewInstrumentedProtocol(protocol, a.tel, a.cfg.Protocol),
		opts,
		percentLogger(ctx, "upload progress", src.Name),
	)
	if err != nil {
		return err
	}

	a.tracker.Track(session)

	started := time.Now()

	err = a.tel.InstrumentTransfer(ctx, "upload", func(ctx context.Context) error {
		return session.Upload(ctx, src)
	})

	a.finish(ctx, newRecord(session.Status(), a.cfg.Protocol, started), err)

	return err
}

func (a *app) uploadRegular(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	src, err := transfer.FileSource(f)
	if err != nil {
		return err
	}

	st := &staticStatus{status: transfer.Status{
		Direction:  "upload",
		State:      transfer.StateUploadingParts,
		Name:       src.Name,
		Size:       src.Size,
		TotalParts: 1,
	}}

	a.tracker.Track(st)

	started := time.Now()
	logPercent := percentLogger(ctx, "upload progress", src.Name)

	err = a.tel.InstrumentTransfer(ctx, "upload", func(ctx context.Context) error {
		uploader := transfer.NewInstrumentedUploader(a.client, a.tel)

		return transfer.RegularUpload(ctx, uploader, src, func(percent float64) {
			st.setPercent(percent)
			logPercent(percent)
		})
	})

	st.finish(err)

	a.finish(ctx, newRecord(st.Status(), "regular", started), err)

	return err
}

func (a *app) download(ctx context.Context, name string) error {
	logProgress := downloadLogger(ctx, name)

	session, err := transfer.NewDownloadSession(
		transfer.NewInstrumentedSource(a.client, a.tel),
		&transfer.FileMaterializer{Dir: a.cfg.TargetDir},
		logProgress,
	)
	if err != nil {
		return err
	}

	a.tracker.Track(session)

	started := time.Now()

	err = a.tel.InstrumentTransfer(ctx, "download", func(ctx context.Context) error {
		return session.Download(ctx, name)
	})

	a.finish(ctx, newRecord(session.Status(), "", started), err)

	return err
}

// finish journals the outcome and sends a notification. Neither can change
// the result of the transfer.
func (a *app) finish(ctx context.Context, rec storage.TransferRecord, err error) {
	logger := logctx.LoggerFromContext(ctx)

	if err != nil {
		logger.Error("transfer failed", "file_name", rec.Name, "direction", rec.Direction, "err", err)
	}

	// the journal must be written even when ctx was cancelled by a signal
	bg := context.WithoutCancel(ctx)

	if jErr := a.journal.TrackTransfer(bg, rec); jErr != nil {
		logger.Error("failed to record transfer", "file_name", rec.Name, "err", jErr)
		a.tel.RecordSystemError(bg, "journal", "write")
	}

	if nErr := a.notifier.Notify(bg, notifier.FormatRecord(rec)); nErr != nil {
		logger.Error("failed to send notification", "file_name", rec.Name, "err", nErr)
	}
}

func newRecord(st transfer.Status, protocol string, started time.Time) storage.TransferRecord {
	status := storage.StatusSucceeded
	if st.State != transfer.StateSucceeded {
		status = storage.StatusFailed
	}

	return storage.TransferRecord{
		SessionID:  st.SessionID,
		Name:       st.Name,
		Direction:  st.Direction,
		Protocol:   protocol,
		Status:     status,
		Reason:     st.Reason,
		Size:       max(st.Size, 0),
		Parts:      st.TotalParts,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
}

// percentLogger logs every 10% step. The aggregator serializes calls.
func percentLogger(ctx context.Context, msg, name string) transfer.ProgressFunc {
	logger := logctx.LoggerFromContext(ctx)
	next := 0.0

	return func(percent float64) {
		if percent < next {
			return
		}

		logger.InfoContext(ctx, msg, "file_name", name, "percent", math.Floor(percent))

		next = math.Floor(percent/10)*10 + 10
	}
}

func downloadLogger(ctx context.Context, name string) func(transfer.DownloadProgress) {
	logger := logctx.LoggerFromContext(ctx)
	logPercent := percentLogger(ctx, "download progress", name)

	var nextBytes int64

	return func(p transfer.DownloadProgress) {
		if percent, ok := p.Percent(); ok {
			logPercent(percent)

			return
		}

		if p.Loaded >= nextBytes {
			logger.InfoContext(ctx, "download progress", "file_name", name, "downloaded", humanize.IBytes(uint64(p.Loaded)), "total", "unknown")

			nextBytes = p.Loaded + indeterminateLogStep
		}
	}
}

func printHistory(ctx context.Context, repo storage.TransferReadRepository, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of transfers to show")

	if err := fs.Parse(args); err != nil {
		return err
	}

	records, err := repo.GetTransfers(ctx, *limit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tDIRECTION\tNAME\tSIZE\tSTATUS\tREASON")

	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(rec.FinishedAt), rec.Direction, rec.Name, humanize.IBytes(uint64(rec.Size)), rec.Status, rec.Reason)
	}

	return w.Flush()
}

// sessionTracker exposes whichever session is currently running to the status server.
type sessionTracker struct {
	mu      sync.RWMutex
	current rest.StatusProvider
}

func (t *sessionTracker) Track(p rest.StatusProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = p
}

func (t *sessionTracker) Status() transfer.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.current == nil {
		return transfer.Status{State: transfer.StateIdle}
	}

	return t.current.Status()
}

// staticStatus is the status of a transfer that has no session of its own.
type staticStatus struct {
	mu     sync.Mutex
	status transfer.Status
}

func (s *staticStatus) Status() transfer.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

func (s *staticStatus) setPercent(p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Percent = p
}

func (s *staticStatus) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.status.State = transfer.StateFailed
		s.status.Reason = err.Error()

		return
	}

	s.status.State = transfer.StateSucceeded
	s.status.CompletedParts = 1
}
