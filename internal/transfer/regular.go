package transfer

import (
	"bytes"
	"context"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/chunk_transfer/internal/logctx"
)

// RegularUpload sends src as a single request. It reports progress with the
// same contract as a chunked upload of one part and makes no retry.
func RegularUpload(ctx context.Context, uploader WholeFileUploader, src Source, sink ProgressFunc) error {
	if uploader == nil {
		return &InvalidConfigurationError{Field: "uploader", Reason: "must not be nil"}
	}

	if src.Reader == nil && src.Size > 0 {
		return &InvalidConfigurationError{Field: "source", Reason: "reader must not be nil"}
	}

	logger := logctx.LoggerFromContext(ctx).With("file_name", src.Name)
	logger.InfoContext(ctx, "uploading whole file", "file_size", humanize.IBytes(uint64(src.Size)))

	agg := NewAggregator(1, ProgressSequential, sink)

	var body io.Reader = bytes.NewReader(nil)
	if src.Reader != nil {
		body = io.NewSectionReader(src.Reader, 0, src.Size)
	}

	err := uploader.UploadFile(ctx, src.Name, body, src.Size, func(sent, total int64) {
		agg.Report(0, sent, total)
	})
	if err != nil {
		return &TransferError{Op: "regular_upload", Name: src.Name, Err: err}
	}

	agg.Complete(0)

	if _, err := agg.Finish(); err != nil {
		return err
	}

	logger.InfoContext(ctx, "regular upload completed")

	return nil
}
