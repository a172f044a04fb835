package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/metrics"
	"github.com/roach88/medsync/internal/payload"
	"github.com/roach88/medsync/internal/schema"
	"github.com/roach88/medsync/internal/store"
)

// DefaultWorkers is the default number of records ProcessBatch applies
// concurrently.
const DefaultWorkers = 4

// Ingestor is the entry point for replication traffic on the receiving node
// and for outcome reports on the sending node.
//
// Thread-safety model:
//   - ProcessRecord / ProcessBatch: safe from any goroutine. Two calls for
//     the same record guid are serialized; different guids run in parallel.
//   - ProcessOutcome / ProcessOutcomeFrom / GetImportRecord: safe from any
//     goroutine.
type Ingestor struct {
	store    Store
	catalog  *schema.Catalog
	records  *RecordProcessor
	clock    Clock
	nodeGUID string
	parent   string
	accept   map[string]bool // nil: every catalog type is accepted
	workers  int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithClock sets the clock used for verdict timestamps and entity writes.
//
// Default: SystemClock
func WithClock(c Clock) Option {
	return func(i *Ingestor) {
		i.clock = c
	}
}

// WithNodeGUID sets this node's identity, recorded in the origin marker of
// every replicated write.
func WithNodeGUID(guid string) Option {
	return func(i *Ingestor) {
		i.nodeGUID = guid
	}
}

// WithParent names this node's parent server. Verdicts from the parent, or
// from an unnamed server, settle the outbound record itself; verdicts from
// any other server are kept per server.
func WithParent(name string) Option {
	return func(i *Ingestor) {
		i.parent = name
	}
}

// WithAcceptTypes restricts the entity types this node takes. A record
// containing any other type is answered NOT_SUPPOSED_TO_SYNC without being
// applied. An empty list accepts everything.
func WithAcceptTypes(types ...string) Option {
	return func(i *Ingestor) {
		if len(types) == 0 {
			i.accept = nil
			return
		}
		i.accept = make(map[string]bool, len(types))
		for _, t := range types {
			i.accept[t] = true
		}
	}
}

// WithWorkers sets how many records ProcessBatch applies concurrently.
//
// Default: 4 (DefaultWorkers)
func WithWorkers(n int) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.workers = n
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) {
		i.metrics = m
	}
}

// WithLogger sets the structured logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) {
		i.logger = l
	}
}

// New creates an Ingestor applying records to st according to catalog.
func New(st Store, catalog *schema.Catalog, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:   st,
		catalog: catalog,
		clock:   SystemClock{},
		workers: DefaultWorkers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}

	items := NewItemProcessor(catalog, st, i.nodeGUID, i.clock, i.metrics, i.logger)
	i.records = NewRecordProcessor(st, items, i.clock)
	return i
}

// ProcessRecord applies rec and returns this node's verdict.
//
// Item failures are reported inside the returned record, never as an error.
// A non-nil error means the record could not be processed at all (store
// fault, panic); the returned record is then FAILED with a single
// GENERIC_FAILURE item so the sender still receives an answer.
func (i *Ingestor) ProcessRecord(ctx context.Context, rec ir.SyncRecord) (result ir.ImportRecord, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process record %s: panic: %v", rec.GUID, r)
			result = i.faultRecord(rec, err)
			i.metrics.IncrementFault("panic")
			i.logger.Error("record processing panicked", "guid", rec.GUID, "error", err)
		}
		i.metrics.ObserveIngestLatency(time.Since(start))
		i.metrics.IncrementRecord(string(result.State))
	}()

	if rejected, ok := i.screen(rec); !ok {
		i.metrics.IncrementFault("not_accepted")
		i.logger.Info("record not accepted", "guid", rec.GUID, "types", rec.ContainedTypes)
		return rejected, nil
	}

	result, err = i.records.Process(ctx, rec)
	if err != nil {
		i.metrics.IncrementFault("store")
		i.logger.Error("record processing failed", "guid", rec.GUID, "error", err)
		return i.faultRecord(rec, err), err
	}

	for _, item := range result.Items {
		i.metrics.IncrementItem(string(item.State), string(item.ErrorCode))
	}
	i.logger.Info("record processed",
		"guid", rec.GUID, "state", result.State, "items", len(result.Items), "retry_count", rec.RetryCount)
	return result, nil
}

// ProcessBatch applies records concurrently, bounded by the worker count,
// and returns verdicts in input order. A hard fault on one record does not
// stop the others; every fault is joined into the returned error.
func (i *Ingestor) ProcessBatch(ctx context.Context, recs []ir.SyncRecord) ([]ir.ImportRecord, error) {
	results := make([]ir.ImportRecord, len(recs))
	errs := make([]error, len(recs))

	var g errgroup.Group
	g.SetLimit(i.workers)
	for idx, rec := range recs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[idx] = fmt.Errorf("process record %s: %w", rec.GUID, err)
				results[idx] = i.faultRecord(rec, err)
				return nil
			}
			results[idx], errs[idx] = i.ProcessRecord(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// ProcessOutcome applies a verdict from the parent server. See
// ProcessOutcomeFrom.
func (i *Ingestor) ProcessOutcome(ctx context.Context, report ir.ImportRecord) error {
	return i.ProcessOutcomeFrom(ctx, "", report)
}

// ProcessOutcomeFrom applies server's verdict to the outbound record with
// the same guid. ALREADY_COMMITTED is stored as COMMITTED and
// NOT_SUPPOSED_TO_SYNC as REJECTED; any other state is stored as reported.
//
// When server is empty or the parent, the record's own state changes.
// Otherwise only server's entry for the record does.
//
// Returns an error wrapping store.ErrNotFound if this node never staged the
// record.
func (i *Ingestor) ProcessOutcomeFrom(ctx context.Context, server string, report ir.ImportRecord) error {
	if report.GUID == "" {
		return fmt.Errorf("process outcome: guid is required")
	}
	if report.State == "" {
		return fmt.Errorf("process outcome %s: state is required", report.GUID)
	}
	if _, err := ir.ParseRecordState(string(report.State)); err != nil {
		return fmt.Errorf("process outcome %s: %w", report.GUID, err)
	}
	state := NormalizeOutcome(report.State)

	unlock := i.store.Lock(report.GUID)
	defer unlock()

	if server == "" || server == i.parent {
		if err := i.store.SetSyncRecordState(ctx, report.GUID, state); err != nil {
			return fmt.Errorf("process outcome %s: %w", report.GUID, err)
		}
	} else if err := i.store.SetServerRecordState(ctx, report.GUID, server, state, i.clock.Now()); err != nil {
		return fmt.Errorf("process outcome %s from %s: %w", report.GUID, server, err)
	}
	i.metrics.IncrementOutcomeReport(string(state))
	i.logger.Info("outcome applied", "guid", report.GUID, "server", server, "reported", report.State, "state", state)
	return nil
}

// NormalizeOutcome maps a reported verdict to the state stored on the
// sender's record.
func NormalizeOutcome(s ir.RecordState) ir.RecordState {
	switch s {
	case ir.RecordAlreadyCommitted:
		return ir.RecordCommitted
	case ir.RecordNotSupposedToSync:
		return ir.RecordRejected
	default:
		return s
	}
}

// GetImportRecord returns this node's stored verdict for guid. The boolean
// is false when the record was never processed here.
func (i *Ingestor) GetImportRecord(ctx context.Context, guid string) (ir.ImportRecord, bool, error) {
	rec, err := i.store.GetImportRecord(ctx, guid)
	if errors.Is(err, store.ErrNotFound) {
		return ir.ImportRecord{}, false, nil
	}
	if err != nil {
		return ir.ImportRecord{}, false, err
	}
	return rec, true, nil
}

// screen checks rec's entity types against the accepted set. When a type is
// refused it returns the NOT_SUPPOSED_TO_SYNC verdict; nothing is persisted.
func (i *Ingestor) screen(rec ir.SyncRecord) (ir.ImportRecord, bool) {
	if i.accept == nil {
		return ir.ImportRecord{}, true
	}
	for _, t := range containedTypes(rec) {
		if !i.accept[t] {
			items := make([]ir.ImportItem, 0, len(rec.Items))
			for _, item := range rec.Items {
				items = append(items, ir.ImportItem{Key: item.Key, Content: item.Content, State: ir.ItemUnknown})
			}
			return ir.ImportRecord{
				GUID:       rec.GUID,
				State:      ir.RecordNotSupposedToSync,
				RetryCount: rec.RetryCount,
				Timestamp:  i.clock.Now(),
				Items:      items,
			}, false
		}
	}
	return ir.ImportRecord{}, true
}

// containedTypes returns rec.ContainedTypes, or the types named by the
// decodable items when the sender did not list them.
func containedTypes(rec ir.SyncRecord) []string {
	if len(rec.ContainedTypes) > 0 {
		return rec.ContainedTypes
	}
	types := make([]string, 0, len(rec.Items))
	for _, item := range rec.Items {
		if desc, err := payload.Decode(item.Content); err == nil {
			types = append(types, desc.Type)
		}
	}
	return types
}

func (i *Ingestor) faultRecord(rec ir.SyncRecord, err error) ir.ImportRecord {
	return ir.ImportRecord{
		GUID:       rec.GUID,
		State:      ir.RecordFailed,
		RetryCount: rec.RetryCount,
		Timestamp:  i.clock.Now(),
		Items: []ir.ImportItem{{
			State:     ir.ItemError,
			ErrorCode: ir.ErrGenericFailure,
			ErrorArgs: []string{err.Error()},
		}},
	}
}
