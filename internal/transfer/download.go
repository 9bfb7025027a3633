package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/chunk_transfer/internal/logctx"
	"github.com/italolelis/chunk_transfer/internal/progress"
)

// downloadReportInterval throttles download progress callbacks.
const downloadReportInterval = 256 * 1024

// DownloadProgress is a byte-level download progress notification.
//
// When the server does not declare the size, Total is the sentinel 1 and
// Indeterminate is true: Loaded is still exact, but Loaded/Total is not a
// percentage and must be rendered as "unknown".
type DownloadProgress struct {
	Loaded        int64
	Total         int64
	Indeterminate bool
}

// Percent returns the completion percentage. ok is false for indeterminate progress.
func (p DownloadProgress) Percent() (percent float64, ok bool) {
	if p.Indeterminate || p.Total <= 0 {
		return 0, false
	}

	return 100 * fraction(p.Loaded, p.Total), true
}

// DownloadSession streams one file from a DownloadSource into a Materializer.
// There is no chunking of the request and no retry.
type DownloadSession struct {
	source     DownloadSource
	sink       Materializer
	onProgress func(DownloadProgress)

	mu     sync.Mutex
	status Status
}

// NewDownloadSession returns an idle session. onProgress may be nil.
func NewDownloadSession(source DownloadSource, sink Materializer, onProgress func(DownloadProgress)) (*DownloadSession, error) {
	if source == nil {
		return nil, &InvalidConfigurationError{Field: "source", Reason: "must not be nil"}
	}

	if sink == nil {
		return nil, &InvalidConfigurationError{Field: "materializer", Reason: "must not be nil"}
	}

	return &DownloadSession{
		source:     source,
		sink:       sink,
		onProgress: onProgress,
		status:     Status{Direction: "download", State: StateIdle},
	}, nil
}

// Status returns a snapshot of the session.
func (d *DownloadSession) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.status
}

// Download fetches name and hands the byte stream to the materializer.
func (d *DownloadSession) Download(ctx context.Context, name string) error {
	if !d.begin(name) {
		return ErrSessionNotIdle
	}

	logger := logctx.LoggerFromContext(ctx).With("file_name", name)

	body, size, err := d.source.Download(ctx, name)
	if err != nil {
		return d.fail(&DownloadFailedError{Name: name, Err: err})
	}
	defer body.Close()

	indeterminate := size < 0

	d.mu.Lock()
	d.status.Size = size
	d.status.Indeterminate = indeterminate
	d.mu.Unlock()

	if indeterminate {
		logger.InfoContext(ctx, "downloading file of unknown size")
	} else {
		logger.InfoContext(ctx, "downloading file", "file_size", humanize.IBytes(uint64(size)))
	}

	pr := progress.NewReader(&sizedReader{r: body, declared: size}, size, downloadReportInterval, func(read, total int64) {
		d.report(read, total, indeterminate)
	})

	if err := d.sink.Materialize(ctx, name, pr); err != nil {
		return d.fail(&DownloadFailedError{Name: name, Err: err})
	}

	d.mu.Lock()
	d.status.State = StateSucceeded
	d.status.Percent = 100
	d.mu.Unlock()

	logger.InfoContext(ctx, "download completed", "downloaded", humanize.IBytes(uint64(pr.BytesRead())))

	return nil
}

func (d *DownloadSession) report(read, total int64, indeterminate bool) {
	p := DownloadProgress{Loaded: read, Total: total, Indeterminate: indeterminate}
	if indeterminate {
		p.Total = 1
	}

	d.mu.Lock()
	if percent, ok := p.Percent(); ok && percent >= d.status.Percent {
		d.status.Percent = percent
	}
	d.mu.Unlock()

	if d.onProgress != nil {
		d.onProgress(p)
	}
}

func (d *DownloadSession) begin(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status.State != StateIdle {
		return false
	}

	d.status.State = StateDownloading
	d.status.Name = name

	return true
}

func (d *DownloadSession) fail(err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.status.State = StateFailed
	d.status.Reason = err.Error()

	return err
}

// sizedReader turns a stream that ends before its declared size into an
// io.ErrUnexpectedEOF so the materializer discards it.
type sizedReader struct {
	r        io.Reader
	declared int64
	read     int64
}

func (s *sizedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.read += int64(n)

	if err == io.EOF && s.declared > 0 && s.read < s.declared {
		return n, fmt.Errorf("%w: %w", io.ErrUnexpectedEOF, errShortBody(s.read, s.declared))
	}

	return n, err
}
