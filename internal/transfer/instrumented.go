package transfer

import (
	"context"
	"io"

	"github.com/italolelis/chunk_transfer/internal/telemetry"
)

// InstrumentedProtocol wraps UploadProtocol with telemetry.
type InstrumentedProtocol struct {
	protocol  UploadProtocol
	telemetry *telemetry.Telemetry
	name      string
}

// NewInstrumentedProtocol creates a new instrumented upload protocol.
func NewInstrumentedProtocol(protocol UploadProtocol, tel *telemetry.Telemetry, name string) *InstrumentedProtocol {
	return &InstrumentedProtocol{
		protocol:  protocol,
		telemetry: tel,
		name:      name,
	}
}

// Initiate opens the remote session with telemetry.
func (p *InstrumentedProtocol) Initiate(ctx context.Context, name string, totalChunks int) (string, error) {
	var sessionID string

	err := p.telemetry.InstrumentProtocolOperation(ctx, p.name, "initiate", func(ctx context.Context) error {
		var err error

		sessionID, err = p.protocol.Initiate(ctx, name, totalChunks)

		return err
	})
	if err != nil {
		return "", err
	}

	return sessionID, nil
}

// UploadPart uploads one part attempt with telemetry.
func (p *InstrumentedProtocol) UploadPart(ctx context.Context, part Part) error {
	err := p.telemetry.InstrumentProtocolOperation(ctx, p.name, "upload_part", func(ctx context.Context) error {
		return p.protocol.UploadPart(ctx, part)
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	p.telemetry.RecordPartAttempt(ctx, p.name, status, part.Attempt, part.Size)

	return err
}

// Complete finalizes the remote session with telemetry.
func (p *InstrumentedProtocol) Complete(ctx context.Context, name, sessionID string, totalChunks int) error {
	return p.telemetry.InstrumentProtocolOperation(ctx, p.name, "complete", func(ctx context.Context) error {
		return p.protocol.Complete(ctx, name, sessionID, totalChunks)
	})
}

// InstrumentedUploader wraps WholeFileUploader with telemetry.
type InstrumentedUploader struct {
	uploader  WholeFileUploader
	telemetry *telemetry.Telemetry
}

// NewInstrumentedUploader creates a new instrumented whole-file uploader.
func NewInstrumentedUploader(uploader WholeFileUploader, tel *telemetry.Telemetry) *InstrumentedUploader {
	return &InstrumentedUploader{uploader: uploader, telemetry: tel}
}

// UploadFile uploads the whole file with telemetry.
func (u *InstrumentedUploader) UploadFile(ctx context.Context, name string, body io.Reader, size int64, onProgress func(sent, total int64)) error {
	return u.telemetry.InstrumentProtocolOperation(ctx, "regular", "upload_file", func(ctx context.Context) error {
		return u.uploader.UploadFile(ctx, name, body, size, onProgress)
	})
}

// InstrumentedSource wraps DownloadSource with telemetry. Only opening the
// stream is measured; reading the body happens in the materializer.
type InstrumentedSource struct {
	source    DownloadSource
	telemetry *telemetry.Telemetry
}

// NewInstrumentedSource creates a new instrumented download source.
func NewInstrumentedSource(source DownloadSource, tel *telemetry.Telemetry) *InstrumentedSource {
	return &InstrumentedSource{source: source, telemetry: tel}
}

// Download opens the remote stream with telemetry.
func (s *InstrumentedSource) Download(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	var (
		body io.ReadCloser
		size int64
	)

	err := s.telemetry.InstrumentProtocolOperation(ctx, "download", "download", func(ctx context.Context) error {
		var err error

		body, size, err = s.source.Download(ctx, name)

		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return body, size, nil
}
