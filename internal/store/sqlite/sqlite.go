package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/ParwinderBaidwan/PeepPost/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
// Use ":memory:" for an ephemeral database.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps a
	// :memory: database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables and indexes. It is idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// mapConstraint translates unique-constraint violations into store.ErrDuplicate.
func mapConstraint(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

// ==== UserStore implementation ====

const userColumns = `id, username, name, email, password_hash, bio, profile_pic, created_at`

func scanUser(row scanner) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Bio,
		&user.ProfilePic,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user. ID and CreatedAt are assigned when empty.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) (*store.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, username, name, email, password_hash, bio, profile_pic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Name, user.Email,
		user.PasswordHash, user.Bio, user.ProfilePic, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", mapConstraint(err))
	}

	return s.GetUserByID(ctx, user.ID)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

// FindByUsernameOrID looks the query up as an id when it parses as a UUID,
// then as a username.
func (s *SQLiteStore) FindByUsernameOrID(ctx context.Context, query string) (*store.User, error) {
	if _, err := uuid.Parse(query); err == nil {
		user, err := s.GetUserByID(ctx, query)
		if !store.IsNotFound(err) {
			return user, err
		}
	}
	return s.GetUserByUsername(ctx, query)
}

// ==== ConversationStore implementation ====

const conversationSelect = `
	SELECT c.id, c.created_at, c.updated_at,
	       c.last_message_text, c.last_message_sender_id, c.last_message_seen, c.last_message_at,
	       c.last_message_seq,
	       ua.id, ua.username, ua.name, ua.profile_pic, ua.bio,
	       ub.id, ub.username, ub.name, ub.profile_pic, ub.bio
	FROM conversations c
	JOIN users ua ON ua.id = c.participant_a
	JOIN users ub ON ub.id = c.participant_b
`

func scanConversation(row scanner) (*store.Conversation, error) {
	var (
		conv       store.Conversation
		lastText   sql.NullString
		lastSender sql.NullString
		lastSeen   bool
		lastAt     sql.NullTime
		lastSeq    int64
		a          = &conv.Participants[0]
		b          = &conv.Participants[1]
	)
	err := row.Scan(
		&conv.ID, &conv.CreatedAt, &conv.UpdatedAt,
		&lastText, &lastSender, &lastSeen, &lastAt, &lastSeq,
		&a.ID, &a.Username, &a.Name, &a.ProfilePic, &a.Bio,
		&b.ID, &b.Username, &b.Name, &b.ProfilePic, &b.Bio,
	)
	if err != nil {
		return nil, err
	}

	if lastAt.Valid {
		conv.LastMessage = &store.LastMessage{
			Seq:      lastSeq,
			Text:     lastText.String,
			SenderID: lastSender.String,
			Seen:     lastSeen,
			SentAt:   lastAt.Time,
		}
	}
	return &conv, nil
}

func (s *SQLiteStore) queryConversation(ctx context.Context, where string, args ...any) (*store.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx, conversationSelect+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return conv, nil
}

// CreateOrGetConversation relies on the UNIQUE(pair_key) constraint: the
// losing side of a concurrent insert is a no-op and reads the winner's row.
func (s *SQLiteStore) CreateOrGetConversation(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	if userA == userB {
		return nil, fmt.Errorf("conversation needs two distinct participants")
	}
	a, b := userA, userB
	if b < a {
		a, b = b, a
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO conversations (id, pair_key, participant_a, participant_b, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), store.PairKey(a, b), a, b, now, now); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", mapConstraint(err))
	}

	return s.FindConversationBetween(ctx, a, b)
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	return s.queryConversation(ctx, `WHERE c.id = ?`, id)
}

// FindConversationBetween returns the conversation for the unordered pair.
func (s *SQLiteStore) FindConversationBetween(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	return s.queryConversation(ctx, `WHERE c.pair_key = ?`, store.PairKey(userA, userB))
}

// ListConversations lists a user's conversations, most recently active first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := conversationSelect + `
		WHERE c.participant_a = ? OR c.participant_b = ?
		ORDER BY c.updated_at DESC, c.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	return convs, nil
}

// ==== MessageStore implementation ====

// AppendMessage persists the message and the conversation summary atomically.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) (*store.Conversation, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	insert := `
		INSERT INTO messages (id, conversation_id, sender_id, text, img, seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, insert,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Text, msg.Image, msg.Seen, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	update := `
		UPDATE conversations
		SET last_message_text = ?, last_message_sender_id = ?, last_message_seen = 0,
		    last_message_at = ?, last_message_seq = ?, updated_at = ?
		WHERE id = ?
	`
	result, err = tx.ExecContext(ctx, update,
		msg.SummaryText(), msg.SenderID, msg.CreatedAt, seq, msg.CreatedAt, msg.ConversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update conversation summary: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("conversation %s: %w", msg.ConversationID, store.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	msg.Seq = seq

	return s.GetConversation(ctx, msg.ConversationID)
}

// ListMessages returns messages in persistence order, newest page last.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int, beforeID string) ([]*store.Message, error) {
	query := `
		SELECT seq, id, conversation_id, sender_id, text, img, seen, created_at
		FROM messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID}
	if beforeID != "" {
		query += ` AND seq < (SELECT seq FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(
			&msg.Seq, &msg.ID, &msg.ConversationID, &msg.SenderID,
			&msg.Text, &msg.Image, &msg.Seen, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse into ascending order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
