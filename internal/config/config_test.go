package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/prover"
)

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_EmptyDocumentIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synchrony.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers: 4
timeout: 250ms
atomic: true
max_transactions: 50
oracle: smtlib
solver_path: /usr/bin/z3
solver_args: ["-in"]
backend: badger
db: /var/lib/synchrony
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Workers:         4,
		Timeout:         250 * time.Millisecond,
		Atomic:          true,
		MaxTransactions: 50,
		Oracle:          OracleSMTLib,
		SolverPath:      "/usr/bin/z3",
		SolverArgs:      []string{"-in"},
		Backend:         BackendBadger,
		DB:              "/var/lib/synchrony",
		LogLevel:        "debug",
	}, cfg)

	assert.Equal(t, prover.ExecOracle{Path: "/usr/bin/z3", Args: []string{"-in"}}, cfg.NewOracle())
	assert.Len(t, cfg.EngineOptions(slog.Default()), 6)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("workers: 2\n"))
	require.NoError(t, err)

	want := Default()
	want.Workers = 2
	assert.Equal(t, want, cfg)
	assert.Equal(t, prover.LinearOracle{}, cfg.NewOracle())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"zero workers", "workers: 0", "workers"},
		{"negative timeout", "timeout: -1s", "timeout"},
		{"zero timeout", "timeout: 0s", "timeout"},
		{"negative max", "max_transactions: -1", "max_transactions"},
		{"unknown oracle", "oracle: magic", "oracle"},
		{"smtlib without solver", "oracle: smtlib\nsolver_path: \"\"", "solver_path"},
		{"unknown backend", "backend: postgres", "backend"},
		{"unknown level", "log_level: loud", "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			require.True(t, IsError(err), "got %T: %v", err, err)

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("wrokers: 3\n"))
	require.Error(t, err)
	assert.False(t, IsError(err))
	assert.Contains(t, err.Error(), "wrokers")
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte("timeout: soon\n"))
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.yaml")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("")
	assert.Error(t, err)
}
