package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagedash/internal/domain"
)

func TestBusBroadcasts(t *testing.T) {
	bus := NewBus(nil)
	a, unsubA := bus.Subscribe()
	defer unsubA()
	b, unsubB := bus.Subscribe()
	defer unsubB()

	bus.Publish(StatusEvent("job-1", domain.JobStatusProcessing))

	for _, ch := range []<-chan Event{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, TypeStatus, got.Type)
			assert.Equal(t, "job-1", got.JobID)
			assert.Equal(t, domain.JobStatusProcessing, got.Status)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	ch, unsub := bus.Subscribe()
	require.Equal(t, 1, bus.Subscribers())

	unsub()
	unsub()
	bus.Publish(StatusEvent("job-2", domain.JobStatusFailed))

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Zero(t, bus.Subscribers())
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus(nil)
	bus.buffer = 1
	ch, unsub := bus.Subscribe()
	defer unsub()

	bus.Publish(StatusEvent("a", domain.JobStatusQueued))
	bus.Publish(StatusEvent("a", domain.JobStatusProcessing))

	got := <-ch
	assert.Equal(t, domain.JobStatusQueued, got.Status)
	select {
	case extra := <-ch:
		t.Fatalf("expected second event to be dropped, got %+v", extra)
	default:
	}
}
