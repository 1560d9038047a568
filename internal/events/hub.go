package events

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"elicit/internal/logging"
)

// ErrObserverClosed is returned by observers whose connection has ended.
var ErrObserverClosed = errors.New("observer closed")

// ErrObserverBacklogged is returned when an observer cannot accept more events.
var ErrObserverBacklogged = errors.New("observer send buffer full")

// Observer receives published events. Deliver must not block; an observer
// that cannot take the event returns an error and is detached. Deliver may
// call Detach on its own hub.
type Observer interface {
	Deliver(Event) error
}

type member struct {
	observer Observer

	// mu serializes deliveries to one observer so it sees publish order.
	mu       sync.Mutex
	detached atomic.Bool
}

// Hub is the set of attached observers. The zero value is not usable; use NewHub.
type Hub struct {
	mu      sync.RWMutex
	members map[Observer]*member
	logger  *slog.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		members: make(map[Observer]*member),
		logger:  logging.NewComponentLogger(logger, "events"),
	}
}

// Attach adds an observer. Attaching a member again is a no-op and reports false.
func (h *Hub) Attach(o Observer) bool {
	if h == nil || o == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[o]; ok {
		return false
	}
	h.members[o] = &member{observer: o}
	return true
}

// Detach removes an observer. Detaching a non-member is a no-op. No delivery
// to o starts after Detach returns; one already inside o.Deliver is left to
// finish. Detach never waits on a delivery, so it is safe to call from Deliver.
func (h *Hub) Detach(o Observer) {
	if h == nil || o == nil {
		return
	}
	h.mu.Lock()
	m, ok := h.members[o]
	if ok {
		delete(h.members, o)
	}
	h.mu.Unlock()
	if ok {
		m.detached.Store(true)
	}
}

// Count returns the number of attached observers.
func (h *Hub) Count() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Publish delivers evt to every attached observer. It never blocks on an
// observer and reports nothing to the caller; failing observers are detached.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	snapshot := make([]*member, 0, len(h.members))
	for _, m := range h.members {
		snapshot = append(snapshot, m)
	}
	h.mu.RUnlock()

	for _, m := range snapshot {
		if err := m.deliver(evt); err != nil {
			h.Detach(m.observer)
			h.logger.Debug("observer detached after failed delivery",
				logging.Int64(logging.FieldJobID, evt.JobID),
				logging.String("status", evt.Status),
				logging.Error(err),
			)
		}
	}
}

func (m *member) deliver(evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detached.Load() {
		return nil
	}
	return m.observer.Deliver(evt)
}
