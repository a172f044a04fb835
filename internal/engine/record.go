package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/store"
)

// RecordProcessor applies a whole sync record exactly once.
type RecordProcessor struct {
	records RecordStore
	items   *ItemProcessor
	clock   Clock
}

// NewRecordProcessor creates a record processor.
func NewRecordProcessor(records RecordStore, items *ItemProcessor, clock Clock) *RecordProcessor {
	return &RecordProcessor{records: records, items: items, clock: clock}
}

// Process applies every item of rec in order and persists the verdict.
//
// A record whose guid already has a COMMITTED import record is not applied
// again: the stored verdict is returned as ALREADY_COMMITTED and nothing is
// written. A FAILED verdict is retried and replaced.
//
// Items commit independently; a failing item does not roll back earlier
// ones. The record is COMMITTED only when every item is SYNCHRONIZED.
//
// The returned error is a fault in the idempotency check or in persisting
// the verdict, never an item failure.
func (p *RecordProcessor) Process(ctx context.Context, rec ir.SyncRecord) (ir.ImportRecord, error) {
	unlock := p.records.Lock(rec.GUID)
	defer unlock()

	existing, err := p.records.GetImportRecord(ctx, rec.GUID)
	switch {
	case err == nil:
		if existing.State == ir.RecordCommitted {
			existing.State = ir.RecordAlreadyCommitted
			return existing, nil
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return ir.ImportRecord{}, fmt.Errorf("check import record %s: %w", rec.GUID, err)
	}

	result := ir.ImportRecord{
		GUID:       rec.GUID,
		RetryCount: rec.RetryCount,
		Items:      make([]ir.ImportItem, 0, len(rec.Items)),
	}
	for _, item := range rec.Items {
		result.Items = append(result.Items, p.items.Process(ctx, rec.GUID, item))
	}

	result.State = ir.RecordFailed
	if result.Synchronized() {
		result.State = ir.RecordCommitted
	}
	result.Timestamp = p.clock.Now()

	if _, err := p.records.SaveImportRecord(ctx, result); err != nil {
		return ir.ImportRecord{}, fmt.Errorf("save import record %s: %w", rec.GUID, err)
	}
	return result, nil
}
