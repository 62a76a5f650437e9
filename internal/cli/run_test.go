package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wes-simulator/internal/config"
	"wes-simulator/internal/store/storetest"
)

func writeConfig(t *testing.T, dsn, journal string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "database:\n  driver: sqlite3\n  dsn: \"" + dsn + "\"\n" +
		"control:\n  listen: \"127.0.0.1:0\"\n" +
		"journal:\n  path: \"" + journal + "\"\n" +
		"picking:\n  station_rule: \"status == 'ONLINE'\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildWiresEverything(t *testing.T) {
	_, dsn := storetest.Open(t)
	cfg := writeConfig(t, dsn, filepath.Join(t.TempDir(), "commands.jsonl"))

	app, err := Build(cfg, discard())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Scheduler)
	assert.NotNil(t, app.Control)
	assert.Equal(t, config.Toggles{}, app.Toggles.Snapshot())
	assert.NotNil(t, app.journal)
}

func TestBuildWithoutJournal(t *testing.T) {
	_, dsn := storetest.Open(t)
	cfg := writeConfig(t, dsn, "")

	app, err := Build(cfg, discard())
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.journal)
}

func TestBuildRejectsBadStationRule(t *testing.T) {
	_, dsn := storetest.Open(t)
	cfg := writeConfig(t, dsn, "")
	cfg.Picking.StationRule = "status =="

	_, err := Build(cfg, discard())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	_, dsn := storetest.Open(t)
	cfg := writeConfig(t, dsn, "")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, discard()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
