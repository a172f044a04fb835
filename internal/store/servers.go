package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/medsync/internal/ir"
)

// SetServerRecordState stores server's verdict on the outbound record
// recordGUID, replacing any earlier verdict from the same server.
// Returns ErrNotFound if the record was never staged here.
func (s *Store) SetServerRecordState(ctx context.Context, recordGUID, server string, state ir.RecordState, at time.Time) error {
	if server == "" {
		return fmt.Errorf("set server record state: server is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM sync_records WHERE guid = ?`, recordGUID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sync record %s: %w", recordGUID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("set server record state: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO server_records (record_guid, server, state, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(record_guid, server) DO UPDATE SET
				state = excluded.state,
				updated_at = excluded.updated_at
		`, recordGUID, server, string(state), toUnixNano(at))
		if err != nil {
			return fmt.Errorf("set server record state: %w", err)
		}
		return nil
	})
}

// ListServerRecords returns every per-server verdict on recordGUID, ordered
// by server name. A record with none yields an empty slice.
func (s *Store) ListServerRecords(ctx context.Context, recordGUID string) ([]ir.ServerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_guid, server, state, updated_at
		FROM server_records
		WHERE record_guid = ?
		ORDER BY server
	`, recordGUID)
	if err != nil {
		return nil, fmt.Errorf("list server records: %w", err)
	}
	defer rows.Close()

	recs := []ir.ServerRecord{}
	for rows.Next() {
		var (
			rec       ir.ServerRecord
			state     string
			updatedAt int64
		)
		if err := rows.Scan(&rec.RecordGUID, &rec.Server, &state, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan server record: %w", err)
		}
		rec.State = ir.RecordState(state)
		rec.UpdatedAt = fromUnixNano(updatedAt)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list server records: %w", err)
	}
	return recs, nil
}
