package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSend = "send"
	InboundTypePing = "ping"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
	OutboundTypeSent  = "sent"
	OutboundTypePong  = "pong"

	EventOnlineUsers = "online_users"
	EventNewMessage  = "new_message"
)

// SendData is a chat message from the client. Exactly one of ConversationID
// and RecipientID addresses it; a provisional conversation id also works.
type SendData struct {
	ClientID       string `json:"client_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Text           string `json:"text"`
	Img            string `json:"img,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// OnlineUsers carries the complete online set.
type OnlineUsers struct {
	Users []string `json:"users"`
}

// NewMessage is pushed to every online participant of a conversation.
type NewMessage struct {
	Conversation Conversation `json:"conversation"`
	Message      Message      `json:"message"`
}

// Sent acknowledges a send to the sending connection.
type Sent struct {
	ClientID     string       `json:"client_id,omitempty"`
	Conversation Conversation `json:"conversation"`
	Message      Message      `json:"message"`
}

// User is the public profile of a user.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name,omitempty"`
	ProfilePic string `json:"profile_pic,omitempty"`
	Bio        string `json:"bio,omitempty"`
}

// LastMessage summarises the newest message of a conversation.
type LastMessage struct {
	Seq    int64  `json:"seq"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
	Seen   bool   `json:"seen"`
	TS     int64  `json:"ts"`
}

// Conversation is a direct conversation as seen by clients.
type Conversation struct {
	ID           string       `json:"id"`
	Participants []User       `json:"participants"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	Provisional  bool         `json:"provisional,omitempty"`
	Online       bool         `json:"online,omitempty"`
	CreatedAt    int64        `json:"created_at"`
	UpdatedAt    int64        `json:"updated_at"`
}

// Message is a persisted chat message.
type Message struct {
	ID             string `json:"id"`
	Seq            int64  `json:"seq"`
	ConversationID string `json:"conversation_id"`
	Sender         string `json:"sender"`
	Text           string `json:"text,omitempty"`
	Img            string `json:"img,omitempty"`
	Seen           bool   `json:"seen"`
	TS             int64  `json:"ts"`
}

// Resolution is the answer to a conversation search.
type Resolution struct {
	Kind         string       `json:"kind"` // "existing" or "provisional"
	Conversation Conversation `json:"conversation"`
}

const (
	ResolutionExisting    = "existing"
	ResolutionProvisional = "provisional"
)

// Error describes a protocol-level error response.
type Error struct {
	Code     string `json:"code"`
	Msg      string `json:"msg"`
	ClientID string `json:"client_id,omitempty"` // echoes the failed send
}
