package handlers

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wes-simulator/internal/event"
	"wes-simulator/internal/types"
	"wes-simulator/internal/web"
)

type memJournal struct {
	mu      sync.Mutex
	records []types.CommandRecord
}

func (m *memJournal) Append(rec types.CommandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memJournal) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestRegisterEventHandlers(t *testing.T) {
	bus := event.NewBus()
	activity := web.NewActivityTracker(nil, 10)
	journal := &memJournal{}
	RegisterEventHandlers(bus, activity, journal, slog.New(slog.NewTextHandler(io.Discard, nil)))

	bus.Publish(event.Event{Type: event.TickFailed, Job: "arrival", TraceID: "t1", Error: errors.New("db down")})
	bus.Publish(event.Event{Type: event.TickSkipped, Job: "picking"})
	rec := types.CommandRecord{Driver: "picking", Command: "INPUT", Target: "1", OK: false, Error: "rejected"}
	bus.Publish(event.Event{Type: event.CommandIssued, Job: "picking", Command: &rec})

	assert.Eventually(t, func() bool {
		snap := activity.Snapshot()
		return snap.Jobs["arrival"].Outcome == "error" &&
			snap.Jobs["picking"].Outcome == "disabled" &&
			len(snap.Commands) == 1 &&
			journal.len() == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "db down", activity.Snapshot().Jobs["arrival"].Error)
}

func TestRegisterEventHandlers_NilCollaborators(t *testing.T) {
	bus := event.NewBus()
	assert.NotPanics(t, func() {
		RegisterEventHandlers(bus, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
		bus.Publish(event.Event{Type: event.CommandIssued, Command: &types.CommandRecord{Command: "X"}})
		bus.Publish(event.Event{Type: event.TickFailed, Job: "x", Error: errors.New("e")})
	})
}
