package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/chunk_transfer/internal/storage"
	"github.com/italolelis/chunk_transfer/internal/telemetry"
)

// InstrumentedTransferRepository wraps the journal repositories with telemetry.
type InstrumentedTransferRepository struct {
	read      *TransferReadRepository
	write     *TransferWriteRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedTransferRepository creates a new instrumented journal repository.
func NewInstrumentedTransferRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedTransferRepository {
	return &InstrumentedTransferRepository{
		read:      NewTransferReadRepository(dbConn),
		write:     NewTransferWriteRepository(dbConn),
		telemetry: tel,
	}
}

// GetTransfers lists journal records with telemetry.
func (r *InstrumentedTransferRepository) GetTransfers(ctx context.Context, limit int) ([]storage.TransferRecord, error) {
	var result []storage.TransferRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_transfers", func(ctx context.Context) error {
		var err error

		result, err = r.read.GetTransfers(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// TrackTransfer appends a journal record with telemetry.
func (r *InstrumentedTransferRepository) TrackTransfer(ctx context.Context, rec storage.TransferRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "track_transfer", func(ctx context.Context) error {
		return r.write.TrackTransfer(ctx, rec)
	})
}

// DeleteFinishedBefore prunes old journal records with telemetry.
func (r *InstrumentedTransferRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64

	err := r.telemetry.InstrumentDBOperation(ctx, "delete_finished_before", func(ctx context.Context) error {
		var err error

		deleted, err = r.write.DeleteFinishedBefore(ctx, before)

		return err
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}
