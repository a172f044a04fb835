package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medsync/internal/ir"
)

func TestServerRecords_UpsertAndList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.CreateSyncRecord(ctx, createTestSyncRecord("rec-1", 0, "a"))
	require.NoError(t, err)

	empty, err := s.ListServerRecords(ctx, "rec-1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, s.SetServerRecordState(ctx, "rec-1", "kisumu", ir.RecordFailed, baseTime))
	require.NoError(t, s.SetServerRecordState(ctx, "rec-1", "eldoret", ir.RecordCommitted, baseTime))
	require.NoError(t, s.SetServerRecordState(ctx, "rec-1", "kisumu", ir.RecordCommitted, baseTime.Add(time.Hour)))

	recs, err := s.ListServerRecords(ctx, "rec-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "eldoret", recs[0].Server)
	assert.Equal(t, "kisumu", recs[1].Server)
	assert.Equal(t, ir.RecordCommitted, recs[1].State)
	assert.True(t, baseTime.Add(time.Hour).Equal(recs[1].UpdatedAt))

	// The record's own state belongs to the parent and is untouched.
	rec, err := s.GetSyncRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, ir.RecordNew, rec.State)
}

func TestServerRecords_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.SetServerRecordState(ctx, "missing", "kisumu", ir.RecordCommitted, baseTime)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateSyncRecord(ctx, createTestSyncRecord("rec-1", 0))
	require.NoError(t, err)
	err = s.SetServerRecordState(ctx, "rec-1", "", ir.RecordCommitted, baseTime)
	assert.Error(t, err)
}
