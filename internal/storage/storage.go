package storage

import (
	"context"
	"time"
)

// Outcome values stored in TransferRecord.Status.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// TransferRecord is the journal entry of one finished transfer session.
// Records are written once, after the session reached a terminal state.
type TransferRecord struct {
	ID         string
	SessionID  string
	Name       string
	Direction  string
	Protocol   string
	Status     string
	Reason     string
	Size       int64
	Parts      int
	InstanceID string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the session ran.
func (r TransferRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// TransferReadRepository lists journal entries.
type TransferReadRepository interface {
	GetTransfers(ctx context.Context, limit int) ([]TransferRecord, error) // newest first
}

type TransferWriteRepository interface {
	TrackTransfer(ctx context.Context, rec TransferRecord) error
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// TransferRepository is the full journal.
type TransferRepository interface {
	TransferReadRepository
	TransferWriteRepository
}
