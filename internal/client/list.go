package client

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/ParwinderBaidwan/PeepPost/internal/proto"
)

// ProvisionalPrefix marks ids of placeholder conversations that exist only
// in the client until the first message is sent.
const ProvisionalPrefix = "provisional:"

// IsProvisional reports whether id names a placeholder.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// List is the client's cached, ordered view of its conversations, most
// recently active first. Every mutation is an idempotent upsert keyed by
// conversation id or counterpart, so optimistic updates and server pushes
// may arrive in any order without duplicating entries.
type List struct {
	mu       sync.Mutex
	self     string
	entries  []proto.Conversation
	selected string
	online   map[string]struct{}
	now      func() time.Time
}

// NewList creates an empty list for the user selfID.
func NewList(selfID string) *List {
	return &List{
		self:   selfID,
		online: make(map[string]struct{}),
		now:    time.Now,
	}
}

// Entries returns a copy of the ordered entries.
func (l *List) Entries() []proto.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Selected returns the selected entry, if any.
func (l *List) Selected() (proto.Conversation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findLocked(l.selected)
}

// Select marks the entry with id as selected.
func (l *List) Select(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.findLocked(id); !ok {
		return false
	}
	l.selected = id
	return true
}

// Load replaces the persisted entries with a fresh fetch. Placeholders whose
// counterpart has no persisted conversation survive in front. A held summary
// newer than the fetched one is kept.
func (l *List) Load(convs []proto.Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fetched := lo.UniqBy(convs, func(c proto.Conversation) string { return c.ID })
	for i := range fetched {
		if held, ok := l.findLocked(fetched[i].ID); ok && olderSummary(fetched[i].LastMessage, held.LastMessage) {
			fetched[i].LastMessage = held.LastMessage
			fetched[i].UpdatedAt = max(fetched[i].UpdatedAt, held.UpdatedAt)
		}
	}
	sortByActivity(fetched)
	covered := lo.SliceToMap(fetched, func(c proto.Conversation) (string, string) {
		return l.counterpartLocked(c).ID, c.ID
	})

	kept := make([]proto.Conversation, 0, len(l.entries))
	for _, e := range l.entries {
		if !e.Provisional {
			continue
		}
		if realID, ok := covered[l.counterpartLocked(e).ID]; ok {
			if l.selected == e.ID {
				l.selected = realID
			}
			continue
		}
		kept = append(kept, e)
	}

	l.entries = append(kept, fetched...)
	if _, ok := l.findLocked(l.selected); !ok {
		l.selected = ""
	}
	l.refreshOnlineLocked()
}

// UpsertProvisional selects the entry already held for target, real or
// provisional, or prepends and selects a new placeholder.
func (l *List) UpsertProvisional(target proto.User) proto.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexByCounterpartLocked(target.ID); i >= 0 {
		l.selected = l.entries[i].ID
		return l.entries[i]
	}

	now := l.now().Unix()
	entry := proto.Conversation{
		ID:           ProvisionalPrefix + target.ID,
		Participants: []proto.User{target},
		Provisional:  true,
		Online:       l.isOnlineLocked(target.ID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	l.entries = slices.Insert(l.entries, 0, entry)
	l.selected = entry.ID
	return entry
}

// DiscardProvisional drops a placeholder, as when the user navigates away
// before sending. Persisted entries are never discarded.
func (l *List) DiscardProvisional(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(id)
	if i < 0 || !l.entries[i].Provisional {
		return false
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	if l.selected == id {
		l.selected = ""
	}
	return true
}

// ApplyExisting merges a persisted conversation into the list. A placeholder
// for the same counterpart is replaced in place and keeps the selection;
// an unknown conversation is prepended.
func (l *List) ApplyExisting(conv proto.Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.upsertLocked(conv, false)
}

// OnOnlineSetChanged recomputes every entry's online flag from the full set.
func (l *List) OnOnlineSetChanged(users []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.online = lo.SliceToMap(users, func(id string) (string, struct{}) { return id, struct{}{} })
	l.refreshOnlineLocked()
}

// OnNewMessage applies a pushed message: the conversation's summary is
// updated and it moves to the front. A message older than the held summary
// leaves the entry untouched.
func (l *List) OnNewMessage(conv proto.Conversation, msg proto.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if conv.LastMessage == nil {
		conv.LastMessage = &proto.LastMessage{
			Seq:    msg.Seq,
			Text:   msg.Text,
			Sender: msg.Sender,
			Seen:   msg.Seen,
			TS:     msg.TS,
		}
	}
	l.upsertLocked(conv, true)
}

// upsertLocked replaces the entry matching conv by id, or the placeholder
// for its counterpart, and drops any other copy.
func (l *List) upsertLocked(conv proto.Conversation, toFront bool) {
	conv.Provisional = false
	conv.Online = l.isOnlineLocked(l.counterpartLocked(conv).ID)

	byID := l.indexLocked(conv.ID)
	byPeer := -1
	if i := l.indexByCounterpartLocked(l.counterpartLocked(conv).ID); i >= 0 && l.entries[i].Provisional {
		byPeer = i
	}

	at := byID
	switch {
	case byID >= 0 && byPeer >= 0:
		// Both exist; the placeholder is stale.
		if l.selected == l.entries[byPeer].ID {
			l.selected = conv.ID
		}
		l.entries = slices.Delete(l.entries, byPeer, byPeer+1)
		at = l.indexLocked(conv.ID)
	case byPeer >= 0:
		if l.selected == l.entries[byPeer].ID {
			l.selected = conv.ID
		}
		at = byPeer
	}

	if at < 0 {
		l.entries = slices.Insert(l.entries, 0, conv)
		return
	}
	existing := l.entries[at]
	switch {
	case conv.LastMessage == nil:
		conv.LastMessage = existing.LastMessage
	case olderSummary(conv.LastMessage, existing.LastMessage):
		// Late acks and replays never roll the summary back.
		conv.LastMessage = existing.LastMessage
		conv.UpdatedAt = max(conv.UpdatedAt, existing.UpdatedAt)
		toFront = false
	}
	l.entries[at] = conv
	if toFront && at > 0 {
		l.entries = slices.Delete(l.entries, at, at+1)
		l.entries = slices.Insert(l.entries, 0, conv)
	}
}

func (l *List) refreshOnlineLocked() {
	for i := range l.entries {
		l.entries[i].Online = l.isOnlineLocked(l.counterpartLocked(l.entries[i]).ID)
	}
}

func (l *List) isOnlineLocked(userID string) bool {
	_, ok := l.online[userID]
	return ok
}

// counterpartLocked returns the participant that is not the current user.
func (l *List) counterpartLocked(c proto.Conversation) proto.User {
	peer, _ := lo.Find(c.Participants, func(u proto.User) bool { return u.ID != l.self })
	return peer
}

func (l *List) findLocked(id string) (proto.Conversation, bool) {
	if id == "" {
		return proto.Conversation{}, false
	}
	return lo.Find(l.entries, func(c proto.Conversation) bool { return c.ID == id })
}

func (l *List) indexLocked(id string) int {
	return slices.IndexFunc(l.entries, func(c proto.Conversation) bool { return c.ID == id })
}

func (l *List) indexByCounterpartLocked(userID string) int {
	return slices.IndexFunc(l.entries, func(c proto.Conversation) bool {
		return l.counterpartLocked(c).ID == userID
	})
}

// olderSummary reports whether a describes an earlier message than b. The
// sequence number decides when both carry one, the timestamp otherwise.
func olderSummary(a, b *proto.LastMessage) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Seq > 0 && b.Seq > 0 {
		return a.Seq < b.Seq
	}
	return a.TS < b.TS
}

// activity is the last message time, or the last update for empty
// conversations.
func activity(c proto.Conversation) int64 {
	if c.LastMessage != nil {
		return c.LastMessage.TS
	}
	return c.UpdatedAt
}

// sortByActivity orders newest first with ties broken by id.
func sortByActivity(convs []proto.Conversation) {
	slices.SortStableFunc(convs, func(a, b proto.Conversation) int {
		if d := activity(b) - activity(a); d != 0 {
			if d > 0 {
				return 1
			}
			return -1
		}
		return strings.Compare(a.ID, b.ID)
	})
}
