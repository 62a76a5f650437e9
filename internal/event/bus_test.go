package event

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishToSubscribers(t *testing.T) {
	bus := NewBus()
	var started, completed atomic.Int32

	bus.Subscribe(TickStarted, func(e Event) { started.Add(1) })
	bus.Subscribe(TickStarted, func(e Event) { started.Add(1) })
	bus.Subscribe(TickCompleted, func(e Event) { completed.Add(1) })

	bus.Publish(Event{Type: TickStarted, Job: "picking"})

	assert.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), completed.Load())
}

func TestBus_NilIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(Event{Type: TickFailed}) })
}
