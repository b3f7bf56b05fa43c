package core

import "github.com/ParwinderBaidwan/PeepPost/internal/store"

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventOnlineSetChanged carries the full set of online user ids.
	EventOnlineSetChanged EventKind = iota
	// EventNewMessage carries a persisted message and its updated conversation.
	EventNewMessage
)

func (k EventKind) String() string {
	switch k {
	case EventOnlineSetChanged:
		return "online_set_changed"
	case EventNewMessage:
		return "new_message"
	default:
		return "unknown"
	}
}

// Event is sent to sessions to describe what happened in the system.
// Events are shared between sessions and must not be mutated.
type Event struct {
	Kind         EventKind
	Online       []string            // EventOnlineSetChanged
	Conversation *store.Conversation // EventNewMessage
	Message      *store.Message      // EventNewMessage
}

// OnlineSetChanged builds an online-set event.
func OnlineSetChanged(online []string) *Event {
	return &Event{Kind: EventOnlineSetChanged, Online: online}
}

// NewMessage builds a new-message event.
func NewMessage(conv *store.Conversation, msg *store.Message) *Event {
	return &Event{Kind: EventNewMessage, Conversation: conv, Message: msg}
}
