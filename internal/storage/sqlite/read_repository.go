package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/chunk_transfer/internal/storage"
)

type TransferReadRepository struct {
	db *sql.DB
}

func NewTransferReadRepository(dbConn *sql.DB) *TransferReadRepository {
	return &TransferReadRepository{db: dbConn}
}

// GetTransfers returns up to limit records, most recently finished first.
// A non-positive limit returns every record.
func (r *TransferReadRepository) GetTransfers(ctx context.Context, limit int) ([]storage.TransferRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT
			id,
			session_id,
			name,
			direction,
			protocol,
			status,
			reason,
			size,
			parts,
			instance_id,
			started_at,
			finished_at
		FROM transfers
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []storage.TransferRecord

	for rows.Next() {
		var (
			record                storage.TransferRecord
			sessionID, protocol   sql.NullString
			reason, instanceID    sql.NullString
			startedAt, finishedAt string
		)

		if err := rows.Scan(
			&record.ID, &sessionID, &record.Name, &record.Direction, &protocol, &record.Status, &reason,
			&record.Size, &record.Parts, &instanceID, &startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}

		record.SessionID = sessionID.String
		record.Protocol = protocol.String
		record.Reason = reason.String
		record.InstanceID = instanceID.String

		if record.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}

		if record.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, err
		}

		transfers = append(transfers, record)
	}

	return transfers, rows.Err()
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", v, err)
	}

	return t, nil
}
