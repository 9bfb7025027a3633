package transfer

import (
	"context"
	"io"
)

// State is the lifecycle state of a session.
type State string

const (
	StateIdle           State = "idle"
	StateInitiating     State = "initiating"
	StateUploadingParts State = "uploading_parts"
	StateCompleting     State = "completing"
	StateDownloading    State = "downloading"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Status is a snapshot of a session.
type Status struct {
	Direction      string  `json:"direction"`
	State          State   `json:"state"`
	SessionID      string  `json:"session_id,omitempty"`
	Name           string  `json:"name,omitempty"`
	Size           int64   `json:"size"`
	TotalParts     int     `json:"total_parts"`
	CompletedParts int     `json:"completed_parts"`
	Percent        float64 `json:"percent"`
	Indeterminate  bool    `json:"indeterminate,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// Part is a single part request handed to an UploadProtocol.
type Part struct {
	SessionID   string
	Name        string
	Index       int
	Number      int
	TotalChunks int
	Attempt     int
	Size        int64
	Body        io.Reader

	// OnProgress receives bytes sent for this attempt out of the request total.
	OnProgress func(sent, total int64)
}

// UploadProtocol is the server contract for a chunked upload. Implementations
// decide who owns the session identifier: the server (returned by Initiate)
// or the client (generated inside Initiate without a request).
type UploadProtocol interface {
	Initiate(ctx context.Context, name string, totalChunks int) (string, error)
	UploadPart(ctx context.Context, part Part) error
	Complete(ctx context.Context, name, sessionID string, totalChunks int) error
}

// WholeFileUploader uploads a file in a single request.
type WholeFileUploader interface {
	UploadFile(ctx context.Context, name string, body io.Reader, size int64, onProgress func(sent, total int64)) error
}

// DownloadSource opens a streamed download. size is -1 when the server does
// not declare it.
type DownloadSource interface {
	Download(ctx context.Context, name string) (body io.ReadCloser, size int64, err error)
}

// Materializer persists a downloaded byte stream.
type Materializer interface {
	Materialize(ctx context.Context, name string, r io.Reader) error
}
