package engine

import (
	"context"
	"time"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/store"
)

// ObjectStore is the entity persistence the item pipeline reads and writes.
// *store.Store implements it.
type ObjectStore interface {
	GetEntity(ctx context.Context, typeName, guid string) (ir.Entity, error)
	EntityExists(ctx context.Context, guid string, types ...string) (bool, error)
	PutEntity(ctx context.Context, ent ir.Entity, keys []store.NaturalKey) (ir.Entity, error)
}

// RecordStore is the record persistence the orchestrator reads and writes.
// *store.Store implements it.
type RecordStore interface {
	GetImportRecord(ctx context.Context, guid string) (ir.ImportRecord, error)
	SaveImportRecord(ctx context.Context, rec ir.ImportRecord) (bool, error)
	SetSyncRecordState(ctx context.Context, guid string, state ir.RecordState) error
	SetServerRecordState(ctx context.Context, recordGUID, server string, state ir.RecordState, at time.Time) error
	Lock(guid string) func()
}

// Store is everything ingestion needs from persistence.
type Store interface {
	ObjectStore
	RecordStore
}

var _ Store = (*store.Store)(nil)
