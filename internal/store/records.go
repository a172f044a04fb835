package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/medsync/internal/ir"
)

// RecordQuery filters queue listings. Zero values mean "no filter".
type RecordQuery struct {
	States  []ir.RecordState
	Inverse bool      // match records NOT in States
	Since   time.Time // created strictly after
	Until   time.Time // created at or before
	Limit   int
}

// where renders the query as a WHERE clause over the given columns.
func (q RecordQuery) where(stateCol, timeCol string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(q.States) > 0 {
		op := "IN"
		if q.Inverse {
			op = "NOT IN"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s (?%s)", stateCol, op, strings.Repeat(", ?", len(q.States)-1)))
		for _, st := range q.States {
			args = append(args, string(st))
		}
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, timeCol+" > ?")
		args = append(args, toUnixNano(q.Since))
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, timeCol+" <= ?")
		args = append(args, toUnixNano(q.Until))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (q RecordQuery) limit() string {
	if q.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", q.Limit)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CreateSyncRecord inserts a record and its items.
// Uses ON CONFLICT(guid) DO NOTHING for idempotency: re-creating an existing
// guid returns inserted=false and leaves the stored record untouched.
func (s *Store) CreateSyncRecord(ctx context.Context, rec ir.SyncRecord) (inserted bool, err error) {
	if rec.GUID == "" {
		return false, fmt.Errorf("create sync record: guid is required")
	}
	state := rec.State
	if state == "" {
		state = ir.RecordNew
	}
	types, err := marshalStrings(rec.ContainedTypes)
	if err != nil {
		return false, fmt.Errorf("create sync record: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO sync_records (guid, state, retry_count, created_at, contained_types)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(guid) DO NOTHING
		`, rec.GUID, string(state), rec.RetryCount, toUnixNano(rec.Timestamp), types)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		inserted = true

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		for i, item := range rec.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sync_items (record_id, position, item_key, content)
				VALUES (?, ?, ?, ?)
			`, id, i, item.Key, item.Content)
			if err != nil {
				return fmt.Errorf("insert item %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("create sync record: %w", err)
	}
	return inserted, nil
}

const syncRecordColumns = `id, guid, state, retry_count, created_at, contained_types`

func scanSyncRecord(row scanner) (int64, ir.SyncRecord, error) {
	var (
		id        int64
		rec       ir.SyncRecord
		state     string
		createdAt int64
		types     string
	)
	if err := row.Scan(&id, &rec.GUID, &state, &rec.RetryCount, &createdAt, &types); err != nil {
		return 0, ir.SyncRecord{}, err
	}
	rec.State = ir.RecordState(state)
	rec.Timestamp = fromUnixNano(createdAt)
	contained, err := unmarshalStrings(types)
	if err != nil {
		return 0, ir.SyncRecord{}, err
	}
	rec.ContainedTypes = contained
	return id, rec, nil
}

func (s *Store) loadSyncItems(ctx context.Context, q querier, recordID int64) ([]ir.SyncItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_key, content FROM sync_items
		WHERE record_id = ?
		ORDER BY position ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query sync items: %w", err)
	}
	defer rows.Close()

	items := []ir.SyncItem{}
	for rows.Next() {
		var item ir.SyncItem
		if err := rows.Scan(&item.Key, &item.Content); err != nil {
			return nil, fmt.Errorf("scan sync item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync items: %w", err)
	}
	return items, nil
}

// GetSyncRecord returns the record with guid, items included.
// Returns ErrNotFound if absent.
func (s *Store) GetSyncRecord(ctx context.Context, guid string) (ir.SyncRecord, error) {
	id, rec, err := scanSyncRecord(s.db.QueryRowContext(ctx, `
		SELECT `+syncRecordColumns+` FROM sync_records WHERE guid = ?
	`, guid))
	if errors.Is(err, sql.ErrNoRows) {
		return ir.SyncRecord{}, fmt.Errorf("sync record %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return ir.SyncRecord{}, fmt.Errorf("get sync record: %w", err)
	}
	if rec.Items, err = s.loadSyncItems(ctx, s.db, id); err != nil {
		return ir.SyncRecord{}, fmt.Errorf("get sync record: %w", err)
	}
	return rec, nil
}

// SetSyncRecordState overwrites the state of the record with guid.
// Returns ErrNotFound if absent.
func (s *Store) SetSyncRecordState(ctx context.Context, guid string, state ir.RecordState) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sync_records SET state = ? WHERE guid = ?`, string(state), guid)
	if err != nil {
		return fmt.Errorf("set sync record state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set sync record state: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sync record %s: %w", guid, ErrNotFound)
	}
	return nil
}

// MarkSyncRecordSent moves the record to PENDING and counts one more send
// attempt. Returns ErrNotFound if absent.
func (s *Store) MarkSyncRecordSent(ctx context.Context, guid string) (ir.SyncRecord, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_records
		SET state = ?, retry_count = retry_count + 1
		WHERE guid = ?
	`, string(ir.RecordPending), guid)
	if err != nil {
		return ir.SyncRecord{}, fmt.Errorf("mark sync record sent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return ir.SyncRecord{}, fmt.Errorf("mark sync record sent: %w", err)
	}
	if n == 0 {
		return ir.SyncRecord{}, fmt.Errorf("sync record %s: %w", guid, ErrNotFound)
	}
	return s.GetSyncRecord(ctx, guid)
}

// ListSyncRecords returns records matching q, oldest first, items included.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListSyncRecords(ctx context.Context, q RecordQuery) ([]ir.SyncRecord, error) {
	where, args := q.where("state", "created_at")
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+syncRecordColumns+` FROM sync_records
		`+where+`
		ORDER BY created_at ASC, id ASC`+q.limit(), args...)
	if err != nil {
		return nil, fmt.Errorf("query sync records: %w", err)
	}

	var (
		ids     []int64
		records = []ir.SyncRecord{}
	)
	for rows.Next() {
		id, rec, err := scanSyncRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		ids = append(ids, id)
		records = append(records, rec)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate sync records: %w", err)
	}

	// Items are loaded after the cursor is closed: the pool has one connection.
	for i, id := range ids {
		if records[i].Items, err = s.loadSyncItems(ctx, s.db, id); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Queued returns up to limit records still waiting to be sent (NEW or
// PENDING), oldest first. A limit of 0 returns the whole queue; an empty
// queue is an empty slice.
func (s *Store) Queued(ctx context.Context, limit int) ([]ir.SyncRecord, error) {
	return s.ListSyncRecords(ctx, RecordQuery{
		States: []ir.RecordState{ir.RecordNew, ir.RecordPending},
		Limit:  limit,
	})
}
