package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotIdle is returned when Upload or Download is called on a session
	// that already started. A failed session is never reused; start a new one.
	ErrSessionNotIdle = errors.New("session is not idle")

	// ErrProgressIncomplete is returned by Aggregator.Finish when some parts were
	// never marked complete.
	ErrProgressIncomplete = errors.New("progress finished with incomplete parts")
)

// InvalidConfigurationError represents options that would make a transfer
// meaningless, such as a zero chunk size or a zero concurrency limit.
type InvalidConfigurationError struct {
	Field  string // Name of the offending option
	Reason string // Human-readable explanation
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

// TransferInitFailedError is returned when the initiate step fails. No part was
// attempted, so the whole session can be retried safely.
type TransferInitFailedError struct {
	Name string // Logical file name of the transfer
	Err  error  // Underlying error, if any
}

func (e *TransferInitFailedError) Error() string {
	return fmt.Sprintf("failed to initiate transfer of %s: %v", e.Name, e.Err)
}

func (e *TransferInitFailedError) Unwrap() error {
	return e.Err
}

// ChunkTransferExhaustedError reports the part that permanently failed after
// every attempt allowed by the RetryPolicy was consumed.
type ChunkTransferExhaustedError struct {
	Index    int   // 0-based index of the failing part
	Attempts int   // Number of attempts made
	Err      error // Error returned by the last attempt
}

func (e *ChunkTransferExhaustedError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

func (e *ChunkTransferExhaustedError) Unwrap() error {
	return e.Err
}

// CompletionFailedError is returned when every part was uploaded but the
// finalize call failed. The server keeps the uploaded parts; only the
// completion needs to be retried.
type CompletionFailedError struct {
	SessionID string // Session token the completion was issued for
	Err       error  // Underlying error, if any
}

func (e *CompletionFailedError) Error() string {
	return fmt.Sprintf("failed to complete transfer session %s: %v", e.SessionID, e.Err)
}

func (e *CompletionFailedError) Unwrap() error {
	return e.Err
}

// DownloadFailedError is returned when the streamed download failed or was
// interrupted. No partial file is left behind.
type DownloadFailedError struct {
	Name string // Logical file name requested
	Err  error  // Underlying error, if any
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.Name, e.Err)
}

func (e *DownloadFailedError) Unwrap() error {
	return e.Err
}

// TransferError is a generic failure of a single-request operation.
type TransferError struct {
	Op   string
	Name string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", e.Op, e.Name, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
