package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ParwinderBaidwan/PeepPost/internal/core"
	"github.com/ParwinderBaidwan/PeepPost/internal/store"
)

const (
	// DefaultMaxTextLength caps message text in runes.
	DefaultMaxTextLength = 2000
	// DefaultHistoryPageSize is used when a history request has no limit.
	DefaultHistoryPageSize = 50
	maxHistoryPageSize     = 200
)

// Options tune the service. Zero values fall back to defaults.
type Options struct {
	MaxTextLength   int
	HistoryPageSize int
}

// Service resolves searches into conversations and dispatches messages.
type Service struct {
	store    store.Store
	presence *core.Registry
	log      *zerolog.Logger
	validate *validator.Validate
	opts     Options

	pairs core.KeyLock // create-or-fetch per participant pair
	convs core.KeyLock // persist-then-push per conversation
}

// New creates a conversation service. Pass nil logger to discard logs.
func New(st store.Store, presence *core.Registry, logger *zerolog.Logger, opts Options) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = DefaultHistoryPageSize
	}
	l := logger.With().Str("component", "conversations").Logger()
	return &Service{
		store:    st,
		presence: presence,
		log:      &l,
		validate: validator.New(),
		opts:     opts,
	}
}

// SendRequest addresses a message either to an existing conversation or,
// through a provisional placeholder, to a recipient.
type SendRequest struct {
	SenderID       string `validate:"required"`
	ConversationID string `validate:"required_without=RecipientID"`
	RecipientID    string `validate:"required_without=ConversationID"`
	Text           string
	Image          string `validate:"omitempty,url"`
}

// SendResult is a persisted message together with its updated conversation.
type SendResult struct {
	Message      *store.Message
	Conversation *store.Conversation
	// Delivered counts live sessions that received the push.
	Delivered int
}

// Send persists a message, updates the conversation summary and pushes a
// NewMessage event to every online participant. Nothing is pushed unless
// the message was persisted.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.Image = strings.TrimSpace(req.Image)
	if IsProvisionalID(req.ConversationID) {
		// A placeholder id carries the recipient.
		if req.RecipientID == "" {
			req.RecipientID = strings.TrimPrefix(req.ConversationID, ProvisionalPrefix)
		}
		req.ConversationID = ""
	}

	if err := s.validateSend(req); err != nil {
		return nil, err
	}

	conv, err := s.conversationFor(ctx, req)
	if err != nil {
		return nil, err
	}

	unlock := s.convs.Lock(conv.ID)
	defer unlock()

	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Text:           req.Text,
		Image:          req.Image,
	}
	updated, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		s.log.Error().Err(err).
			Str("user_id", req.SenderID).
			Str("conversation_id", conv.ID).
			Msg("failed to persist message")
		return nil, core.Persistence(err)
	}

	delivered := s.presence.Deliver(core.NewMessage(updated, msg), updated.ParticipantIDs()...)

	s.log.Debug().
		Str("user_id", req.SenderID).
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Int("delivered", delivered).
		Msg("message dispatched")

	return &SendResult{Message: msg, Conversation: updated, Delivered: delivered}, nil
}

func (s *Service) validateSend(req SendRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", core.ErrInvalidMessage, verrs[0].Field())
		}
		return fmt.Errorf("%w: %w", core.ErrInvalidMessage, err)
	}
	if req.Text == "" && req.Image == "" {
		return core.ErrEmptyMessage
	}
	if utf8.RuneCountInString(req.Text) > s.opts.MaxTextLength {
		return fmt.Errorf("%w: text longer than %d characters", core.ErrInvalidMessage, s.opts.MaxTextLength)
	}
	return nil
}

// conversationFor returns the conversation a send targets, materializing a
// provisional one on first contact.
func (s *Service) conversationFor(ctx context.Context, req SendRequest) (*store.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, core.ErrConversationNotFound
			}
			return nil, core.Persistence(err)
		}
		if !conv.HasParticipant(req.SenderID) {
			return nil, core.ErrNotParticipant
		}
		return conv, nil
	}

	if req.RecipientID == req.SenderID {
		return nil, core.ErrSelfConversation
	}
	if _, err := s.store.GetUserByID(ctx, req.RecipientID); err != nil {
		if store.IsNotFound(err) {
			return nil, core.ErrUserNotFound
		}
		return nil, core.Persistence(err)
	}

	unlock := s.pairs.Lock(store.PairKey(req.SenderID, req.RecipientID))
	defer unlock()

	conv, err := s.store.CreateOrGetConversation(ctx, req.SenderID, req.RecipientID)
	if errors.Is(err, store.ErrDuplicate) {
		// Another writer created the pair first; reuse its record.
		s.log.Debug().Err(fmt.Errorf("%w: %w", core.ErrConflict, err)).
			Str("user_id", req.SenderID).
			Str("recipient_id", req.RecipientID).
			Msg("collapsing concurrent conversation create")
		conv, err = s.store.FindConversationBetween(ctx, req.SenderID, req.RecipientID)
	}
	if err != nil {
		s.log.Error().Err(err).
			Str("user_id", req.SenderID).
			Str("recipient_id", req.RecipientID).
			Msg("failed to create conversation")
		return nil, core.Persistence(err)
	}
	return conv, nil
}

// List returns the user's conversations, most recently active first.
func (s *Service) List(ctx context.Context, userID string) ([]*store.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("failed to list conversations")
		return nil, core.Persistence(err)
	}
	return convs, nil
}

// History returns a page of messages of a conversation the user takes part in.
// A provisional id yields an empty history.
func (s *Service) History(ctx context.Context, userID, conversationID string, limit int, beforeID string) ([]*store.Message, error) {
	if IsProvisionalID(conversationID) {
		return []*store.Message{}, nil
	}
	if limit <= 0 {
		limit = s.opts.HistoryPageSize
	}
	limit = min(limit, maxHistoryPageSize)

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, core.ErrConversationNotFound
		}
		return nil, core.Persistence(err)
	}
	if !conv.HasParticipant(userID) {
		return nil, core.ErrNotParticipant
	}

	msgs, err := s.store.ListMessages(ctx, conversationID, limit, beforeID)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to list messages")
		return nil, core.Persistence(err)
	}
	return msgs, nil
}

// IsOnline reports the presence of a user.
func (s *Service) IsOnline(userID string) bool {
	return s.presence.IsOnline(userID)
}

// Online returns the current online set.
func (s *Service) Online() []string {
	return s.presence.Snapshot()
}
