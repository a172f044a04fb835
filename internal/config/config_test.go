package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "medsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
node_guid: clinic-7
parent: district-hq
database: /var/lib/medsync/node.db
schema_dir: ./schema
accept_types: [Patient, Encounter]
workers: 8
log_level: debug
metrics_file: /var/lib/node_exporter/medsync.prom
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "clinic-7", cfg.NodeGUID)
	assert.Equal(t, "district-hq", cfg.Parent)
	assert.Equal(t, "/var/lib/medsync/node.db", cfg.Database)
	assert.Equal(t, "./schema", cfg.SchemaDir)
	assert.Equal(t, []string{"Patient", "Encounter"}, cfg.AcceptTypes)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/lib/node_exporter/medsync.prom", cfg.MetricsFile)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "node_guid: n1\n"))
	require.NoError(t, err)
	assert.Equal(t, "n1", cfg.NodeGUID)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, "medsync.db", cfg.Database)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "nodeguid: x\n", "field nodeguid not found"},
		{"malformed", "workers: [\n", "parse config"},
		{"zero workers", "workers: 0\n", "workers must be at least 1"},
		{"bad level", "log_level: loud\n", `unknown level "loud"`},
		{"duplicate accept type", "accept_types: [Patient, Patient]\n", "listed twice"},
		{"blank accept type", "accept_types: [\"  \"]\n", "empty type name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
