package cli

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wes-simulator/internal/persistence"
	"wes-simulator/internal/types"
)

func writeJournal(t *testing.T, records ...types.CommandRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commands.jsonl")
	j, err := persistence.OpenJournal(path)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, j.Append(r))
	}
	require.NoError(t, j.Close())
	return path
}

func TestJournalCommand(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	path := writeJournal(t,
		types.CommandRecord{Time: now, Driver: "picking", Command: "INPUT", Target: "5", OK: true, Duration: 0.01},
		types.CommandRecord{Time: now, Driver: "container_arrived", Command: "CONTAINER_ARRIVE", OK: false, Error: "status 500", Duration: 0.2},
		types.CommandRecord{Time: now, Driver: "picking", Command: "TAP_PUT_WALL_SLOT", Target: "5", OK: true, Duration: 0.02},
	)

	out, err := runRoot(t, "journal", path)
	require.NoError(t, err)
	assert.Contains(t, out, "3 records, 1 failed")
	assert.Contains(t, out, "status 500")

	out, err = runRoot(t, "journal", "--failed", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 records, 1 failed")
	assert.NotContains(t, out, "TAP_PUT_WALL_SLOT")

	out, err = runRoot(t, "journal", "--tail", "1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "TAP_PUT_WALL_SLOT")
	assert.NotContains(t, out, "CONTAINER_ARRIVE")
}

func TestJournalCommandMissingFile(t *testing.T) {
	_, err := runRoot(t, "journal", filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFilterJournalByCommand(t *testing.T) {
	records := []types.CommandRecord{
		{Command: "INPUT", OK: true},
		{Command: "INBOUND_ACCEPT", OK: true},
		{Command: "INPUT", OK: false},
	}
	got := filterJournal(records, &journalOptions{command: "INPUT"})
	assert.Len(t, got, 2)
}
