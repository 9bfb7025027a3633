package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/chunk_transfer/internal/storage"
)

// TransferWriteRepository implements storage.TransferWriteRepository
// and stores journal records in SQLite.
type TransferWriteRepository struct {
	db *sql.DB
}

func NewTransferWriteRepository(db *sql.DB) *TransferWriteRepository {
	return &TransferWriteRepository{db: db}
}

// TrackTransfer appends rec. An empty ID or InstanceID is filled in.
func (r *TransferWriteRepository) TrackTransfer(ctx context.Context, rec storage.TransferRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if rec.InstanceID == "" {
		rec.InstanceID = storage.InstanceID()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transfers (
			id, session_id, name, direction, protocol, status, reason, size, parts, instance_id, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Name, rec.Direction, rec.Protocol, rec.Status, rec.Reason,
		rec.Size, rec.Parts, rec.InstanceID,
		rec.StartedAt.UTC().Format(timeLayout), rec.FinishedAt.UTC().Format(timeLayout),
	)

	return err
}

// DeleteFinishedBefore removes records that finished before the given time.
func (r *TransferWriteRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transfers WHERE finished_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
