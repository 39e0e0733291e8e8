package events

import (
	"sync"
	"time"

	"imagedash/internal/domain"
	"imagedash/internal/infra"
)

// Type names the kind of update carried by an Event.
type Type string

const (
	TypeStatus  Type = "status"
	TypeJobs    Type = "jobs"
	TypeSession Type = "session"
)

// Event is one update fanned out to browser streams.
type Event struct {
	Type      Type             `json:"type"`
	JobID     string           `json:"id,omitempty"`
	Status    domain.JobStatus `json:"status,omitempty"`
	Timestamp int64            `json:"ts"`
}

// StatusEvent builds a status update for jobID.
func StatusEvent(jobID string, status domain.JobStatus) Event {
	return Event{Type: TypeStatus, JobID: jobID, Status: status, Timestamp: time.Now().Unix()}
}

// Bus broadcasts events to every subscriber. Slow subscribers lose events
// rather than block the publisher.
type Bus struct {
	logger infra.Logger
	buffer int

	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus(logger *infra.Logger) *Bus {
	return &Bus{
		logger: infra.LoggerOrNop(logger),
		buffer: 64,
		subs:   make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel of events and a function that unsubscribes and
// closes it. The function is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish delivers e to all current subscribers without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn().Str("type", string(e.Type)).Str("job_id", e.JobID).Msg("events: subscriber full, dropping event")
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
