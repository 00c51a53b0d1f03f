package main

import (
	"bytes"
	"context"
	"flag"
	"github.com/pgvanniekerk/ezbalance/internal/config"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func parse(t *testing.T, args ...string) flags {
	t.Helper()
	fs := flag.NewFlagSet("ezbalance", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseFlags(fs, args)
}

func TestBuildSettings_Defaults(t *testing.T) {
	s, err := buildSettings(parse(t))
	require.NoError(t, err)
	require.Equal(t, config.DefaultSettings(), s)
}

func TestBuildSettings_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pool:
  workers: 4
  threshold: 8
load:
  tasks: 50
`), 0o644))

	s, err := buildSettings(parse(t, "-config", path, "-threshold", "0", "-delay", "2ms", "-addr", ":0", "-log-level", "debug"))
	require.NoError(t, err)

	require.Equal(t, 4, s.Workers)
	require.Equal(t, 0, s.Threshold)
	require.Equal(t, 50, s.Tasks)
	require.Equal(t, 2*time.Millisecond, s.Delay)
	require.True(t, s.MetricsEnabled)
	require.Equal(t, ":0", s.Addr)
	require.Equal(t, slog.LevelDebug, s.LogLevel)
}

func TestBuildSettings_Errors(t *testing.T) {
	_, err := buildSettings(parse(t, "-config", "/nonexistent.yaml"))
	require.Error(t, err)

	_, err = buildSettings(parse(t, "-log-level", "chatty"))
	require.ErrorContains(t, err, "-log-level")
}

func TestRun_CompletesLoad(t *testing.T) {
	s := config.DefaultSettings()
	s.Workers = 3
	s.Threshold = 2
	s.Tasks = 60
	s.Delay = time.Millisecond

	var out bytes.Buffer
	err := run(context.Background(), s, slog.New(slog.DiscardHandler), &out)
	require.NoError(t, err)

	summary := out.String()
	require.Contains(t, summary, "Submitted: 60, Succeeded: 60, Failed: 0")
	require.Contains(t, summary, "WORKER")
}

func TestRun_Interrupted(t *testing.T) {
	s := config.DefaultSettings()
	s.Workers = 1
	s.Tasks = 10
	s.Delay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, s, slog.New(slog.DiscardHandler), &out)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	s := config.DefaultSettings()
	s.LogFormat = "json"

	newLogger(&buf, s).Info("hello")
	require.Contains(t, buf.String(), `"msg":"hello"`)
}
