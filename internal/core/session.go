package core

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultSessionBuffer is the event queue size used when none is configured.
const DefaultSessionBuffer = 64

// Session is one live channel between a client and the server.
// The transport drains Events; Done closes when the session is kicked.
type Session struct {
	ID     string
	UserID string

	events   chan *Event
	done     chan struct{}
	kickOnce sync.Once
}

// NewSession constructs a session with an event buffer of the given size.
func NewSession(userID string, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSessionBuffer
	}
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events is the queue the transport writes to the wire.
func (s *Session) Events() <-chan *Event {
	return s.events
}

// Done is closed once the session has been kicked.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Deliver enqueues ev without blocking. A full queue kicks the session and
// the client reconnects to refetch.
func (s *Session) Deliver(ev *Event) error {
	select {
	case <-s.done:
		return ErrSessionOverflow
	default:
	}

	select {
	case s.events <- ev:
		return nil
	default:
		s.Kick()
		return ErrSessionOverflow
	}
}

// Kick signals the transport to tear the session down.
func (s *Session) Kick() {
	s.kickOnce.Do(func() { close(s.done) })
}
