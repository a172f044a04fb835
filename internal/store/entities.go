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

// NaturalKey is the value of a unique field. Scope is the type that declared
// the field, so a Person-declared key is shared with every subtype.
type NaturalKey struct {
	Scope string
	Field string
	Value string
}

type scanner interface {
	Scan(dest ...any) error
}

const entityColumns = `type, guid, fields, digest, last_record_guid, version, updated_at`

func scanEntity(row scanner) (ir.Entity, error) {
	var (
		ent       ir.Entity
		fields    string
		updatedAt int64
	)
	if err := row.Scan(&ent.Type, &ent.GUID, &fields, &ent.Digest, &ent.LastRecordGUID, &ent.Version, &updatedAt); err != nil {
		return ir.Entity{}, err
	}
	obj, err := unmarshalFields(fields)
	if err != nil {
		return ir.Entity{}, err
	}
	ent.Fields = obj
	ent.UpdatedAt = fromUnixNano(updatedAt)
	return ent, nil
}

// GetEntity returns the entity with the given type and guid.
// Returns ErrNotFound if absent.
func (s *Store) GetEntity(ctx context.Context, typeName, guid string) (ir.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE type = ? AND guid = ?
	`, typeName, guid)

	ent, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entity{}, fmt.Errorf("entity %s/%s: %w", typeName, guid, ErrNotFound)
	}
	if err != nil {
		return ir.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	return ent, nil
}

// EntityExists reports whether an entity with guid exists under any of the
// given types. With no types, any type matches.
func (s *Store) EntityExists(ctx context.Context, guid string, types ...string) (bool, error) {
	query := `SELECT 1 FROM entities WHERE guid = ?`
	args := []any{guid}
	if len(types) > 0 {
		query += ` AND type IN (?` + strings.Repeat(`, ?`, len(types)-1) + `)`
		for _, t := range types {
			args = append(args, t)
		}
	}
	query += ` LIMIT 1`

	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("entity exists: %w", err)
	}
	return true, nil
}

// FindByNaturalKey returns the entity holding value for a unique field.
// Returns ErrNotFound if no entity holds it.
func (s *Store) FindByNaturalKey(ctx context.Context, scope, field, value string) (ir.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT e.type, e.guid, e.fields, e.digest, e.last_record_guid, e.version, e.updated_at
		FROM entity_keys k
		JOIN entities e ON e.type = k.type AND e.guid = k.guid
		WHERE k.scope = ? AND k.field = ? AND k.value = ?
	`, scope, field, value)

	ent, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entity{}, fmt.Errorf("natural key %s.%s=%q: %w", scope, field, value, ErrNotFound)
	}
	if err != nil {
		return ir.Entity{}, fmt.Errorf("find by natural key: %w", err)
	}
	return ent, nil
}

// PutEntity inserts or replaces an entity and its natural keys in one
// transaction and returns the stored row.
//
// A natural key held by a different entity fails with ErrConstraint and
// nothing is written. Writing content identical to what is stored (same
// digest and origin marker) is a no-op: the version is not bumped.
func (s *Store) PutEntity(ctx context.Context, ent ir.Entity, keys []NaturalKey) (ir.Entity, error) {
	if ent.Type == "" || ent.GUID == "" {
		return ir.Entity{}, fmt.Errorf("put entity: type and guid are required")
	}

	fieldsJSON, err := marshalFields(ent.Fields)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("put entity: %w", err)
	}
	digest, err := ir.EntityDigest(ent.Type, ent.GUID, ent.Fields)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("put entity: %w", err)
	}
	updatedAt := ent.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	var stored ir.Entity
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanEntity(tx.QueryRowContext(ctx, `
			SELECT `+entityColumns+` FROM entities WHERE type = ? AND guid = ?
		`, ent.Type, ent.GUID))
		switch {
		case err == nil:
			if current.Digest == digest && current.LastRecordGUID == ent.LastRecordGUID {
				stored = current
				return nil
			}
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("read current: %w", err)
		}

		for _, k := range keys {
			var holderType, holderGUID string
			err := tx.QueryRowContext(ctx, `
				SELECT type, guid FROM entity_keys WHERE scope = ? AND field = ? AND value = ?
			`, k.Scope, k.Field, k.Value).Scan(&holderType, &holderGUID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("check natural key: %w", err)
			}
			if holderType != ent.Type || holderGUID != ent.GUID {
				return fmt.Errorf("%w: %s.%s=%q already held by %s/%s",
					ErrConstraint, k.Scope, k.Field, k.Value, holderType, holderGUID)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entities (type, guid, fields, digest, last_record_guid, version, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(type, guid) DO UPDATE SET
				fields = excluded.fields,
				digest = excluded.digest,
				last_record_guid = excluded.last_record_guid,
				version = entities.version + 1,
				updated_at = excluded.updated_at
		`, ent.Type, ent.GUID, fieldsJSON, digest, ent.LastRecordGUID, toUnixNano(updatedAt))
		if err != nil {
			return fmt.Errorf("upsert entity: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM entity_keys WHERE type = ? AND guid = ?`, ent.Type, ent.GUID); err != nil {
			return fmt.Errorf("clear natural keys: %w", err)
		}
		for _, k := range keys {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entity_keys (scope, field, value, type, guid) VALUES (?, ?, ?, ?, ?)
			`, k.Scope, k.Field, k.Value, ent.Type, ent.GUID)
			if err != nil {
				return fmt.Errorf("insert natural key: %w", err)
			}
		}

		stored, err = scanEntity(tx.QueryRowContext(ctx, `
			SELECT `+entityColumns+` FROM entities WHERE type = ? AND guid = ?
		`, ent.Type, ent.GUID))
		if err != nil {
			return fmt.Errorf("read back: %w", err)
		}
		return nil
	})
	if err != nil {
		return ir.Entity{}, fmt.Errorf("put entity %s/%s: %w", ent.Type, ent.GUID, err)
	}
	return stored, nil
}

// ListEntities returns every entity of typeName ordered by guid.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListEntities(ctx context.Context, typeName string) ([]ir.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE type = ?
		ORDER BY guid COLLATE BINARY ASC
	`, typeName)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	entities := []ir.Entity{}
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

// CountEntities returns the number of stored entities of all types.
func (s *Store) CountEntities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return n, nil
}
