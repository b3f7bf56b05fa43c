package core

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Registry is the process-wide source of truth for who is online.
// A user is online iff it has at least one registered session. Membership
// changes are serialized under one lock so every session observes online-set
// events in the same order; deliveries never block.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{} // userID -> live sessions
	log      *zerolog.Logger
}

// NewRegistry creates an empty presence registry. Pass nil logger to discard logs.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "presence").Logger()
	return &Registry{
		sessions: make(map[string]map[*Session]struct{}),
		log:      &l,
	}
}

// Register adds a session and seeds it with the current online set. When it
// is the user's first session every other session receives the new set.
// It reports whether the user just came online.
func (r *Registry) Register(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[s.UserID]
	if !ok {
		set = make(map[*Session]struct{})
		r.sessions[s.UserID] = set
	}
	if _, dup := set[s]; dup {
		return false
	}
	first := len(set) == 0
	set[s] = struct{}{}

	ev := OnlineSetChanged(r.onlineLocked())
	r.deliverLocked(s, ev)
	if first {
		r.broadcastLocked(ev, s)
	}

	r.log.Debug().
		Str("user_id", s.UserID).
		Str("session_id", s.ID).
		Int("sessions", len(set)).
		Bool("came_online", first).
		Msg("session registered")
	return first
}

// Unregister removes a session. When it was the user's last session the user
// goes offline and every remaining session receives the updated set.
// Unregistering an unknown session is a no-op. It reports whether the user
// just went offline.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[s.UserID]
	if !ok {
		return false
	}
	if _, ok := set[s]; !ok {
		return false
	}
	delete(set, s)

	last := len(set) == 0
	if last {
		delete(r.sessions, s.UserID)
		r.broadcastLocked(OnlineSetChanged(r.onlineLocked()), nil)
	}

	r.log.Debug().
		Str("user_id", s.UserID).
		Str("session_id", s.ID).
		Int("sessions", len(set)).
		Bool("went_offline", last).
		Msg("session unregistered")
	return last
}

// IsOnline reports whether the user has at least one live session.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// SessionCount returns the number of live sessions of a user.
func (r *Registry) SessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}

// Snapshot returns the sorted set of online user ids.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// Deliver pushes ev to every live session of the given users and returns how
// many sessions accepted it. Offline users are skipped.
func (r *Registry) Deliver(ev *Event, userIDs ...string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, uid := range lo.Uniq(userIDs) {
		for s := range r.sessions[uid] {
			if r.deliverLocked(s, ev) {
				delivered++
			}
		}
	}
	return delivered
}

// KickUser closes every live session of a user. The transports unregister
// them as they tear down.
func (r *Registry) KickUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for s := range r.sessions[userID] {
		s.Kick()
	}
	return len(r.sessions[userID])
}

func (r *Registry) onlineLocked() []string {
	online := lo.Keys(r.sessions)
	slices.Sort(online)
	return online
}

func (r *Registry) broadcastLocked(ev *Event, except *Session) {
	for _, set := range r.sessions {
		for s := range set {
			if s == except {
				continue
			}
			r.deliverLocked(s, ev)
		}
	}
}

func (r *Registry) deliverLocked(s *Session, ev *Event) bool {
	if err := s.Deliver(ev); err != nil {
		r.log.Warn().
			Err(err).
			Str("user_id", s.UserID).
			Str("session_id", s.ID).
			Stringer("event", ev.Kind).
			Msg("dropping slow session")
		return false
	}
	return true
}
