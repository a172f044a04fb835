package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/testutil"
)

// seedEntities ingests two concepts and a patient into a fresh node.
func seedEntities(t *testing.T, format string) *RootOptions {
	t.Helper()
	opts := newTestOptions(t, format)
	recs := []ir.SyncRecord{
		testutil.Record("rec-1",
			testutil.Change("Concept", "c-1", testutil.F("name", "WEIGHT (KG)"), testutil.F("retired", "false")),
			testutil.Change("Concept", "c-2", testutil.F("name", "CAUSE OF DEATH")),
			testutil.Change("Patient", "p-1", testutil.F("gender", "F"), testutil.F("causeOfDeath", "c-2")),
		),
	}
	_, err := ingest(&RootOptions{Format: "text", Database: opts.Database}, "--node-guid", "node-a", writeJSON(t, recs))
	require.NoError(t, err)
	return opts
}

func TestEntityShowOne(t *testing.T) {
	opts := seedEntities(t, "text")

	out, err := execute(NewEntityCommand(opts), "Concept", "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Concept c-1\n"+
		"  version=1  updated=2024-01-15T08:30:00Z  origin=rec-1|node-a\n"+
		"  name                 WEIGHT (KG)\n"+
		"  retired              false\n", out)
}

func TestEntityList(t *testing.T) {
	opts := seedEntities(t, "json")

	out, err := execute(NewEntityCommand(opts), "Concept")
	require.NoError(t, err)

	var resp struct {
		Data []ir.Entity `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "c-1", resp.Data[0].GUID)
	assert.Equal(t, "c-2", resp.Data[1].GUID)
}

func TestEntityByNaturalKey(t *testing.T) {
	opts := seedEntities(t, "text")

	out, err := execute(NewEntityCommand(opts), "Concept", "--key", "name=CAUSE OF DEATH")
	require.NoError(t, err)
	assert.Contains(t, out, "Concept c-2\n")
}

func TestEntityReferenceField(t *testing.T) {
	opts := seedEntities(t, "text")

	out, err := execute(NewEntityCommand(opts), "Patient", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "  gender               F\n")
	assert.Contains(t, out, "  causeOfDeath         c-2\n")
}

func TestEntityErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"unknown type", []string{"Widget"}, ExitCommandError, "invalid type"},
		{"guid and key", []string{"Concept", "c-1", "--key", "name=X"}, ExitCommandError, "not both"},
		{"bad key", []string{"Concept", "--key", "name"}, ExitCommandError, "want field=value"},
		{"non-unique key", []string{"Concept", "--key", "shortName=X"}, ExitCommandError, "not a unique field"},
		{"missing guid", []string{"Concept", "c-9"}, ExitFailure, "no Concept with guid c-9"},
		{"missing key", []string{"Concept", "--key", "name=HEIGHT"}, ExitFailure, "no Concept with name=HEIGHT"},
	}

	opts := seedEntities(t, "text")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewEntityCommand(opts), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
