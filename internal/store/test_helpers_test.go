package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/medsync/internal/ir"
)

// createTestStore opens a fresh store in a temp dir, closed on cleanup.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// baseTime is the fixed creation time used by fixtures.
var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestSyncRecord builds a NEW record created minutes after baseTime.
func createTestSyncRecord(guid string, minutes int, contents ...string) ir.SyncRecord {
	items := make([]ir.SyncItem, len(contents))
	for i, c := range contents {
		items[i] = ir.SyncItem{Key: ir.ItemKey(guid, i, c), Content: c}
	}
	return ir.SyncRecord{
		GUID:      guid,
		Items:     items,
		Timestamp: baseTime.Add(time.Duration(minutes) * time.Minute),
		State:     ir.RecordNew,
	}
}

func guids(records []ir.SyncRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.GUID
	}
	return out
}
