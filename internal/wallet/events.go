package wallet

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventKind classifies wallet events.
type EventKind string

// Event kinds.
const (
	EventRecoveryStarted  EventKind = "recovery_started"
	EventRecoveryFinished EventKind = "recovery_finished"
	EventRecoveryFailed   EventKind = "recovery_failed"
	EventTxStatus         EventKind = "tx_status"
	EventAddressDerived   EventKind = "address_derived"
	EventReset            EventKind = "reset"
)

// Event is a notification published by the wallet core.
type Event struct {
	ID   uuid.UUID
	Kind EventKind
	Time time.Time

	// Set for EventTxStatus.
	TxID   uuid.UUID
	TxKind TxKind
	Status TxStatus

	// Set for EventRecoveryFinished.
	Recovery *RecoveryResult

	// Set for EventAddressDerived.
	Address string

	// Set for failure events.
	Err error
}

// DefaultEventBuffer is the channel capacity used when Subscribe gets a
// non-positive buffer size.
const DefaultEventBuffer = 32

// Events fans wallet events out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Events struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	next   uint64
	logger zerolog.Logger
}

// NewEvents creates an empty event hub.
func NewEvents(logger zerolog.Logger) *Events {
	return &Events{subs: make(map[uint64]chan Event), logger: logger}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel; calling it more than once is safe.
func (e *Events) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	ch := make(chan Event, buffer)

	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			close(ch)
			e.mu.Unlock()
		})
	}
}

// Publish stamps ev with an ID and time and delivers it to every subscriber.
func (e *Events) Publish(ev Event) {
	ev.ID = uuid.New()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.logger.Debug().Uint64("subscriber", id).Str("kind", string(ev.Kind)).Msg("Event dropped, subscriber full")
		}
	}
}
