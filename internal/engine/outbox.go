package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/payload"
)

// QueueStore is the outbound queue persistence. *store.Store implements it.
type QueueStore interface {
	CreateSyncRecord(ctx context.Context, rec ir.SyncRecord) (bool, error)
	Queued(ctx context.Context, limit int) ([]ir.SyncRecord, error)
	MarkSyncRecordSent(ctx context.Context, guid string) (ir.SyncRecord, error)
}

// Outbox stages local changes as sync records for other nodes.
type Outbox struct {
	queue  QueueStore
	guids  GUIDGenerator
	clock  Clock
	logger *slog.Logger
}

// NewOutbox creates an outbox over queue.
func NewOutbox(queue QueueStore, guids GUIDGenerator, clock Clock, logger *slog.Logger) *Outbox {
	return &Outbox{queue: queue, guids: guids, clock: clock, logger: logger}
}

// Stage encodes changes, in order, into one NEW sync record and queues it.
func (o *Outbox) Stage(ctx context.Context, changes ...ir.ChangeDescriptor) (ir.SyncRecord, error) {
	if len(changes) == 0 {
		return ir.SyncRecord{}, fmt.Errorf("stage: no changes")
	}

	rec := ir.SyncRecord{
		GUID:           o.guids.Generate(),
		State:          ir.RecordNew,
		Timestamp:      o.clock.Now(),
		Items:          make([]ir.SyncItem, 0, len(changes)),
		ContainedTypes: []string{},
	}
	seen := make(map[string]bool)
	for idx, change := range changes {
		content, err := payload.Encode(change)
		if err != nil {
			return ir.SyncRecord{}, fmt.Errorf("stage: change %d: %w", idx, err)
		}
		rec.Items = append(rec.Items, ir.SyncItem{
			Key:     ir.ItemKey(rec.GUID, idx, content),
			Content: content,
		})
		if !seen[change.Type] {
			seen[change.Type] = true
			rec.ContainedTypes = append(rec.ContainedTypes, change.Type)
		}
	}

	if _, err := o.queue.CreateSyncRecord(ctx, rec); err != nil {
		return ir.SyncRecord{}, fmt.Errorf("stage: %w", err)
	}
	o.logger.Info("record staged", "guid", rec.GUID, "items", len(rec.Items), "types", rec.ContainedTypes)
	return rec, nil
}

// Next returns up to limit records waiting to be sent, oldest first. A
// limit of 0 returns the whole queue. Records stay queued, PENDING, until an
// outcome report settles them.
func (o *Outbox) Next(ctx context.Context, limit int) ([]ir.SyncRecord, error) {
	recs, err := o.queue.Queued(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("next: %w", err)
	}
	return recs, nil
}

// AsSent returns rec as MarkSent leaves it, so a batch can be exported before
// the queue is touched.
func AsSent(rec ir.SyncRecord) ir.SyncRecord {
	rec.State = ir.RecordPending
	rec.RetryCount++
	return rec
}

// MarkSent records one send attempt: the record becomes PENDING and its
// retry count grows by one.
func (o *Outbox) MarkSent(ctx context.Context, guid string) (ir.SyncRecord, error) {
	rec, err := o.queue.MarkSyncRecordSent(ctx, guid)
	if err != nil {
		return ir.SyncRecord{}, fmt.Errorf("mark sent: %w", err)
	}
	o.logger.Debug("record sent", "guid", guid, "retry_count", rec.RetryCount)
	return rec, nil
}
