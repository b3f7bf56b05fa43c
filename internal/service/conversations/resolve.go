package conversations

import (
	"context"
	"strings"

	"github.com/ParwinderBaidwan/PeepPost/internal/core"
	"github.com/ParwinderBaidwan/PeepPost/internal/store"
)

// ProvisionalPrefix marks ids of conversations that exist only client-side.
const ProvisionalPrefix = "provisional:"

// ProvisionalID returns the temporary id of a placeholder conversation with target.
func ProvisionalID(targetID string) string {
	return ProvisionalPrefix + targetID
}

// IsProvisionalID reports whether id names a placeholder rather than a record.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Resolution is the outcome of a user search: Existing or Provisional.
type Resolution interface {
	resolution()
}

// Existing is a persisted conversation between the requester and the target.
type Existing struct {
	Conversation *store.Conversation
}

// Provisional is an unsaved placeholder. It is never written to the store;
// the conversation is created by the first message sent through it.
type Provisional struct {
	Target store.Profile
}

func (Existing) resolution()    {}
func (Provisional) resolution() {}

// ID returns the placeholder's temporary id.
func (p Provisional) ID() string {
	return ProvisionalID(p.Target.ID)
}

// Resolve looks the query up as a username or user id and returns the
// conversation the requester already has with that user, or a placeholder.
func (s *Service) Resolve(ctx context.Context, requesterID, query string) (Resolution, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.BadRequest("search query is required")
	}

	target, err := s.lookupUser(ctx, query)
	if err != nil {
		return nil, err
	}
	if target.ID == requesterID {
		return nil, core.ErrSelfConversation
	}

	conv, err := s.store.FindConversationBetween(ctx, requesterID, target.ID)
	switch {
	case err == nil:
		return Existing{Conversation: conv}, nil
	case store.IsNotFound(err):
		return Provisional{Target: target.Profile()}, nil
	default:
		s.log.Error().Err(err).Str("user_id", requesterID).Str("target_id", target.ID).Msg("failed to look up conversation")
		return nil, core.Persistence(err)
	}
}

// Profile returns the public profile matching a username or user id.
func (s *Service) Profile(ctx context.Context, query string) (store.Profile, error) {
	user, err := s.lookupUser(ctx, strings.TrimSpace(query))
	if err != nil {
		return store.Profile{}, err
	}
	return user.Profile(), nil
}

func (s *Service) lookupUser(ctx context.Context, query string) (*store.User, error) {
	user, err := s.store.FindByUsernameOrID(ctx, query)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, core.ErrUserNotFound
		}
		s.log.Error().Err(err).Str("query", query).Msg("failed to look up user")
		return nil, core.Persistence(err)
	}
	return user, nil
}
