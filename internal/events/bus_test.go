package events

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()

	select {
	case got := <-ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_Subscribe(t *testing.T) {
	t.Run("delivers events of the subscribed type", func(t *testing.T) {
		bus := New()
		jobEvents := make(chan Event, 1)
		caseEvents := make(chan Event, 1)

		bus.Subscribe(EventTypeJobState, func(e Event) { jobEvents <- e })
		bus.Subscribe(EventTypeCaseSaved, func(e Event) { caseEvents <- e })

		bus.Publish(Event{Type: EventTypeJobState, CaseID: "case-1", JobID: "job-1", Payload: "running"})

		got := waitForEvent(t, jobEvents)
		assert.Equal(t, EventTypeJobState, got.Type)
		assert.Equal(t, "job-1", got.JobID)
		assert.Equal(t, "running", got.Payload)
		assert.False(t, got.Timestamp.IsZero())

		select {
		case unexpected := <-caseEvents:
			t.Fatalf("unexpected case event delivered: %#v", unexpected)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("ignores empty type and nil handler", func(t *testing.T) {
		bus := New()

		bus.Subscribe("", func(Event) {})
		bus.Subscribe(EventTypeCaseDirty, nil)

		bus.mu.RLock()
		defer bus.mu.RUnlock()
		assert.Empty(t, bus.typedSubs)
	})
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := New()
	all := make(chan Event, 2)

	bus.SubscribeAll(func(e Event) { all <- e })

	bus.Publish(Event{Type: EventTypeCaseOpened, CaseID: "case-1"})
	bus.Publish(Event{Type: EventTypeCaseDirty, CaseID: "case-1", Payload: true})

	first := waitForEvent(t, all)
	second := waitForEvent(t, all)

	types := []string{first.Type, second.Type}
	assert.Contains(t, types, EventTypeCaseOpened)
	assert.Contains(t, types, EventTypeCaseDirty)
}

func TestBus_SubscriberOrdering(t *testing.T) {
	// Events for one subscriber arrive in publish order.
	bus := New()
	got := make(chan Event, 16)

	bus.Subscribe(EventTypeJobState, func(e Event) { got <- e })

	states := []string{"pending", "running", "succeeded"}
	for _, s := range states {
		bus.Publish(Event{Type: EventTypeJobState, JobID: "job-1", Payload: s})
	}

	for _, want := range states {
		e := waitForEvent(t, got)
		assert.Equal(t, want, e.Payload)
	}
}

func TestBus_DropsWhenSubscriberStalls(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	bus := New(WithBufferSize(1), WithLogger(logger))

	block := make(chan struct{})
	received := make(chan Event, 8)
	bus.Subscribe(EventTypeCaseDirty, func(e Event) {
		<-block
		received <- e
	})

	// First event is consumed by the handler (blocked), second fills the
	// buffer, the rest drop.
	for range 5 {
		bus.Publish(Event{Type: EventTypeCaseDirty, CaseID: "case-1"})
	}
	close(block)

	count := 0
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case <-received:
			count++
		case <-timeout:
			done = true
		case <-time.After(150 * time.Millisecond):
			done = true
		}
	}
	require.LessOrEqual(t, count, 2)
	require.GreaterOrEqual(t, count, 1)
}

func TestBus_WithBufferSize(t *testing.T) {
	bus := New(WithBufferSize(7))
	assert.Equal(t, 7, bus.bufferSize)

	ignored := New(WithBufferSize(0))
	assert.Equal(t, DefaultBufferSize, ignored.bufferSize)
}
