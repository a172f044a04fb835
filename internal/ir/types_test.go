package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportRecordJSONFieldNaming(t *testing.T) {
	rec := ImportRecord{
		GUID:       "rec-1",
		State:      RecordFailed,
		RetryCount: 2,
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Items: []ImportItem{{
			Key:       "k1",
			Content:   "{}",
			State:     ItemConflict,
			ErrorCode: ErrUnsettableProperty,
			ErrorArgs: []string{"birthdate", "Person"},
		}},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "retry_count")
	assert.Equal(t, "FAILED", raw["state"])

	item := raw["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "UNSETTABLE_PROPERTY", item["error_code"])
	assert.Equal(t, []any{"birthdate", "Person"}, item["error_args"])
}

func TestImportItemOmitsEmptyError(t *testing.T) {
	data, err := json.Marshal(ImportItem{Key: "k", State: ItemSynchronized})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "error_code")
	assert.NotContains(t, string(data), "error_args")
}

func TestImportRecordSynchronized(t *testing.T) {
	ok := ImportRecord{Items: []ImportItem{{State: ItemSynchronized}, {State: ItemSynchronized}}}
	assert.True(t, ok.Synchronized())

	mixed := ImportRecord{Items: []ImportItem{{State: ItemSynchronized}, {State: ItemError}}}
	assert.False(t, mixed.Synchronized())

	assert.True(t, ImportRecord{}.Synchronized())
}

func TestParseRecordState(t *testing.T) {
	for _, st := range RecordStates {
		got, err := ParseRecordState(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseRecordState("SENT")
	assert.Error(t, err)
}

func TestRecordStateQueued(t *testing.T) {
	assert.True(t, RecordNew.Queued())
	assert.True(t, RecordPending.Queued())
	assert.False(t, RecordCommitted.Queued())
	assert.False(t, RecordRejected.Queued())
}
