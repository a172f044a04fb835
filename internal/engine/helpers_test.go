package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/schema"
	"github.com/roach88/medsync/internal/store"
	"github.com/roach88/medsync/internal/testutil"
)

const testNode = "node-a"

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func defaultCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.Default()
	require.NoError(t, err)
	return cat
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestIngestor wires an Ingestor over st with a frozen clock.
func newTestIngestor(t *testing.T, st Store, opts ...Option) *Ingestor {
	t.Helper()
	base := []Option{
		WithClock(testutil.NewDeterministicClock()),
		WithNodeGUID(testNode),
		WithLogger(discardLogger()),
	}
	return New(st, defaultCatalog(t), append(base, opts...)...)
}

func mustProcess(t *testing.T, ing *Ingestor, rec ir.SyncRecord) ir.ImportRecord {
	t.Helper()
	result, err := ing.ProcessRecord(context.Background(), rec)
	require.NoError(t, err)
	return result
}

func itemStates(rec ir.ImportRecord) []ir.ItemState {
	states := make([]ir.ItemState, len(rec.Items))
	for i, item := range rec.Items {
		states[i] = item.State
	}
	return states
}

func getEntity(t *testing.T, st *store.Store, typeName, guid string) ir.Entity {
	t.Helper()
	ent, err := st.GetEntity(context.Background(), typeName, guid)
	require.NoError(t, err)
	return ent
}

func countEntities(t *testing.T, st *store.Store) int {
	t.Helper()
	n, err := st.CountEntities(context.Background())
	require.NoError(t, err)
	return n
}

// faultyStore injects failures into selected store operations.
type faultyStore struct {
	*store.Store
	getImportErr  error
	saveImportErr error
	putPanic      bool
}

func (f *faultyStore) GetImportRecord(ctx context.Context, guid string) (ir.ImportRecord, error) {
	if f.getImportErr != nil {
		return ir.ImportRecord{}, f.getImportErr
	}
	return f.Store.GetImportRecord(ctx, guid)
}

func (f *faultyStore) SaveImportRecord(ctx context.Context, rec ir.ImportRecord) (bool, error) {
	if f.saveImportErr != nil {
		return false, f.saveImportErr
	}
	return f.Store.SaveImportRecord(ctx, rec)
}

func (f *faultyStore) PutEntity(ctx context.Context, ent ir.Entity, keys []store.NaturalKey) (ir.Entity, error) {
	if f.putPanic {
		panic("put entity exploded")
	}
	return f.Store.PutEntity(ctx, ent, keys)
}
