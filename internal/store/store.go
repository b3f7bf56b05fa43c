package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = fmt.Errorf("record not found: %w", sql.ErrNoRows)
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// User represents a registered account.
type User struct {
	ID           string
	Username     string
	Name         string
	Email        string
	PasswordHash string
	Bio          string
	ProfilePic   string
	CreatedAt    time.Time
}

// Profile is the public view of a user, safe to hand to other users.
type Profile struct {
	ID         string
	Username   string
	Name       string
	ProfilePic string
	Bio        string
}

// Profile strips private fields from the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Username:   u.Username,
		Name:       u.Name,
		ProfilePic: u.ProfilePic,
		Bio:        u.Bio,
	}
}

// LastMessage summarises the most recent message of a conversation. Seq is
// the summarised message's sequence number.
type LastMessage struct {
	Seq      int64
	Text     string
	SenderID string
	Seen     bool
	SentAt   time.Time
}

// Conversation is a persisted direct conversation between exactly two users.
// Participants are ordered by id.
type Conversation struct {
	ID           string
	Participants [2]Profile
	LastMessage  *LastMessage // nil until the first message is appended
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participants[0].ID == userID || c.Participants[1].ID == userID
}

// Counterpart returns the participant that is not userID.
func (c *Conversation) Counterpart(userID string) Profile {
	if c.Participants[0].ID == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// ParticipantIDs returns both participant ids.
func (c *Conversation) ParticipantIDs() []string {
	return []string{c.Participants[0].ID, c.Participants[1].ID}
}

// Message is an immutable chat message. Seq defines persistence order.
type Message struct {
	ID             string
	Seq            int64
	ConversationID string
	SenderID       string
	Text           string
	Image          string
	Seen           bool
	CreatedAt      time.Time
}

// ImageMarker replaces the summary text of messages that carry only an image.
const ImageMarker = "[image]"

// SummaryText is the text stored in the conversation's last-message summary.
func (m *Message) SummaryText() string {
	if m.Text == "" && m.Image != "" {
		return ImageMarker
	}
	return m.Text
}

// PairKey builds the order-independent uniqueness key for two participants:
// "{minID}:{maxID}".
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UserStore is the user directory.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, user *User) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// FindByUsernameOrID matches query against ids when it parses as one,
	// otherwise against usernames.
	FindByUsernameOrID(ctx context.Context, query string) (*User, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateOrGetConversation atomically returns the conversation for the
	// pair, creating it if absent. Concurrent callers get the same record.
	CreateOrGetConversation(ctx context.Context, userA, userB string) (*Conversation, error)

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// FindConversationBetween returns the conversation for the unordered pair.
	FindConversationBetween(ctx context.Context, userA, userB string) (*Conversation, error)

	// ListConversations lists a user's conversations, most recently active first.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists msg and updates the owning conversation's
	// last-message summary in one transaction. It fills msg.ID, msg.Seq and
	// msg.CreatedAt when empty and returns the updated conversation.
	AppendMessage(ctx context.Context, msg *Message) (*Conversation, error)

	// ListMessages returns up to limit messages of a conversation in
	// persistence order. If beforeID is set only older messages are returned.
	ListMessages(ctx context.Context, conversationID string, limit int, beforeID string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
