package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/medsync/internal/ir"
)

const importRecordColumns = `guid, state, retry_count, updated_at`

func scanImportRecord(row scanner) (ir.ImportRecord, error) {
	var (
		rec       ir.ImportRecord
		state     string
		updatedAt int64
	)
	if err := row.Scan(&rec.GUID, &state, &rec.RetryCount, &updatedAt); err != nil {
		return ir.ImportRecord{}, err
	}
	rec.State = ir.RecordState(state)
	rec.Timestamp = fromUnixNano(updatedAt)
	return rec, nil
}

func (s *Store) loadImportItems(ctx context.Context, q querier, guid string) ([]ir.ImportItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_key, content, state, error_code, error_args
		FROM import_items
		WHERE record_guid = ?
		ORDER BY position ASC
	`, guid)
	if err != nil {
		return nil, fmt.Errorf("query import items: %w", err)
	}
	defer rows.Close()

	items := []ir.ImportItem{}
	for rows.Next() {
		var (
			item      ir.ImportItem
			state     string
			errorCode string
			errorArgs string
		)
		if err := rows.Scan(&item.Key, &item.Content, &state, &errorCode, &errorArgs); err != nil {
			return nil, fmt.Errorf("scan import item: %w", err)
		}
		item.State = ir.ItemState(state)
		item.ErrorCode = ir.ErrorCode(errorCode)
		if item.ErrorArgs, err = unmarshalStrings(errorArgs); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import items: %w", err)
	}
	return items, nil
}

// GetImportRecord returns this node's verdict on the record with guid.
// Returns ErrNotFound if the record was never processed here.
func (s *Store) GetImportRecord(ctx context.Context, guid string) (ir.ImportRecord, error) {
	rec, err := scanImportRecord(s.db.QueryRowContext(ctx, `
		SELECT `+importRecordColumns+` FROM import_records WHERE guid = ?
	`, guid))
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ImportRecord{}, fmt.Errorf("import record %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return ir.ImportRecord{}, fmt.Errorf("get import record: %w", err)
	}
	if rec.Items, err = s.loadImportItems(ctx, s.db, guid); err != nil {
		return ir.ImportRecord{}, fmt.Errorf("get import record: %w", err)
	}
	return rec, nil
}

// SaveImportRecord inserts the verdict, or replaces the stored one (items
// included) if the guid was processed before. The primary key on guid keeps
// a single verdict per record.
func (s *Store) SaveImportRecord(ctx context.Context, rec ir.ImportRecord) (inserted bool, err error) {
	if rec.GUID == "" {
		return false, fmt.Errorf("save import record: guid is required")
	}

	ts := toUnixNano(rec.Timestamp)
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM import_records WHERE guid = ?`, rec.GUID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check existing: %w", err)
		}
		inserted = exists == 0

		_, err = tx.ExecContext(ctx, `
			INSERT INTO import_records (guid, state, retry_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(guid) DO UPDATE SET
				state = excluded.state,
				retry_count = excluded.retry_count,
				updated_at = excluded.updated_at
		`, rec.GUID, string(rec.State), rec.RetryCount, ts, ts)
		if err != nil {
			return fmt.Errorf("upsert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM import_items WHERE record_guid = ?`, rec.GUID); err != nil {
			return fmt.Errorf("clear items: %w", err)
		}
		for i, item := range rec.Items {
			args, err := marshalStrings(item.ErrorArgs)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO import_items (record_guid, position, item_key, content, state, error_code, error_args)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, rec.GUID, i, item.Key, item.Content, string(item.State), string(item.ErrorCode), args)
			if err != nil {
				return fmt.Errorf("insert item %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("save import record: %w", err)
	}
	return inserted, nil
}

// ListImportRecords returns verdicts matching q, oldest first, items
// included. Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListImportRecords(ctx context.Context, q RecordQuery) ([]ir.ImportRecord, error) {
	where, args := q.where("state", "created_at")
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+importRecordColumns+` FROM import_records
		`+where+`
		ORDER BY created_at ASC, guid COLLATE BINARY ASC`+q.limit(), args...)
	if err != nil {
		return nil, fmt.Errorf("query import records: %w", err)
	}

	records := []ir.ImportRecord{}
	for rows.Next() {
		rec, err := scanImportRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan import record: %w", err)
		}
		records = append(records, rec)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate import records: %w", err)
	}

	for i := range records {
		if records[i].Items, err = s.loadImportItems(ctx, s.db, records[i].GUID); err != nil {
			return nil, err
		}
	}
	return records, nil
}
