package client

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParwinderBaidwan/PeepPost/internal/proto"
)

var (
	me    = proto.User{ID: "u-me", Username: "me"}
	bob   = proto.User{ID: "u-bob", Username: "bob"}
	carol = proto.User{ID: "u-carol", Username: "carol"}
	dave  = proto.User{ID: "u-dave", Username: "dave"}
)

func conv(id string, peer proto.User, ts int64) proto.Conversation {
	c := proto.Conversation{
		ID:           id,
		Participants: []proto.User{me, peer},
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if ts > 0 {
		c.LastMessage = &proto.LastMessage{Text: "msg " + id, Sender: peer.ID, TS: ts}
	}
	return c
}

func ids(l *List) []string {
	return lo.Map(l.Entries(), func(c proto.Conversation, _ int) string { return c.ID })
}

func newTestList() *List {
	l := NewList(me.ID)
	l.now = func() time.Time { return time.Unix(5_000, 0) }
	return l
}

func TestLoadOrdersByActivityThenID(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{
		conv("c-b", bob, 100),
		conv("c-d", dave, 300),
		conv("c-a", carol, 300),
		conv("c-b", bob, 100), // duplicate rows collapse
	})

	assert.Equal(t, []string{"c-a", "c-d", "c-b"}, ids(l))
}

func TestUpsertProvisionalPrependsAndSelects(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100)})

	entry := l.UpsertProvisional(carol)
	assert.True(t, entry.Provisional)
	assert.Equal(t, ProvisionalPrefix+carol.ID, entry.ID)
	assert.Nil(t, entry.LastMessage)
	assert.Equal(t, []string{entry.ID, "c-b"}, ids(l))

	sel, ok := l.Selected()
	require.True(t, ok)
	assert.Equal(t, entry.ID, sel.ID)

	// Searching again never duplicates the placeholder.
	again := l.UpsertProvisional(carol)
	assert.Equal(t, entry.ID, again.ID)
	assert.Len(t, l.Entries(), 2)
}

func TestUpsertProvisionalSelectsExistingConversation(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100), conv("c-c", carol, 50)})

	entry := l.UpsertProvisional(carol)
	assert.False(t, entry.Provisional)
	assert.Equal(t, "c-c", entry.ID)
	assert.Equal(t, []string{"c-b", "c-c"}, ids(l))

	sel, ok := l.Selected()
	require.True(t, ok)
	assert.Equal(t, "c-c", sel.ID)
}

func TestApplyExistingReplacesPlaceholderAndKeepsSelection(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100)})
	placeholder := l.UpsertProvisional(carol)

	l.ApplyExisting(conv("c-c", carol, 200))

	assert.Equal(t, []string{"c-c", "c-b"}, ids(l))
	sel, ok := l.Selected()
	require.True(t, ok)
	assert.Equal(t, "c-c", sel.ID)
	assert.False(t, sel.Provisional)

	_, ok = lo.Find(l.Entries(), func(c proto.Conversation) bool { return c.ID == placeholder.ID })
	assert.False(t, ok)
}

func TestApplyExistingDoesNotStealSelection(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100)})
	l.UpsertProvisional(carol)
	require.True(t, l.Select("c-b"))

	l.ApplyExisting(conv("c-c", carol, 200))

	sel, ok := l.Selected()
	require.True(t, ok)
	assert.Equal(t, "c-b", sel.ID)
}

func TestOnNewMessageMovesToFront(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 300), conv("c-c", carol, 200), conv("c-d", dave, 100)})

	pushed := conv("c-d", dave, 400)
	pushed.LastMessage.Text = "fresh"
	l.OnNewMessage(pushed, proto.Message{ID: "m1", ConversationID: "c-d", Sender: dave.ID, Text: "fresh", TS: 400})

	assert.Equal(t, []string{"c-d", "c-b", "c-c"}, ids(l))
	assert.Equal(t, "fresh", l.Entries()[0].LastMessage.Text)

	// Replaying the same push is a no-op.
	l.OnNewMessage(pushed, proto.Message{ID: "m1"})
	assert.Equal(t, []string{"c-d", "c-b", "c-c"}, ids(l))
}

func TestOnNewMessageFromUnknownConversation(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100)})

	c := conv("c-c", carol, 0)
	l.OnNewMessage(c, proto.Message{ID: "m1", ConversationID: "c-c", Sender: carol.ID, Text: "hey", TS: 500})

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "c-c", entries[0].ID)
	require.NotNil(t, entries[0].LastMessage)
	assert.Equal(t, "hey", entries[0].LastMessage.Text)
}

func TestReverseDirectionRaceCollapsesPlaceholder(t *testing.T) {
	l := newTestList()
	placeholder := l.UpsertProvisional(bob)

	// Bob wrote first; his push carries the persisted conversation.
	l.OnNewMessage(conv("c-b", bob, 600), proto.Message{ID: "m1", ConversationID: "c-b", Sender: bob.ID, TS: 600})

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "c-b", entries[0].ID)
	sel, ok := l.Selected()
	require.True(t, ok)
	assert.Equal(t, "c-b", sel.ID)

	// A late optimistic apply of our own send lands on the same entry.
	l.ApplyExisting(conv("c-b", bob, 601))
	assert.Len(t, l.Entries(), 1)
	assert.False(t, IsProvisional(l.Entries()[0].ID))
	assert.NotEqual(t, placeholder.ID, l.Entries()[0].ID)
}

func TestOnOnlineSetChangedIsIdempotent(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100), conv("c-c", carol, 50)})
	l.UpsertProvisional(dave)

	set := []string{me.ID, bob.ID, dave.ID}
	l.OnOnlineSetChanged(set)
	first := l.Entries()
	l.OnOnlineSetChanged(set)
	assert.Equal(t, first, l.Entries())

	online := lo.FilterMap(first, func(c proto.Conversation, _ int) (string, bool) { return c.ID, c.Online })
	assert.ElementsMatch(t, []string{"c-b", ProvisionalPrefix + dave.ID}, online)

	l.OnOnlineSetChanged([]string{me.ID})
	for _, c := range l.Entries() {
		assert.False(t, c.Online, c.ID)
	}
}

func TestLoadKeepsUnresolvedPlaceholders(t *testing.T) {
	l := newTestList()
	l.UpsertProvisional(carol)
	l.UpsertProvisional(dave)
	require.True(t, l.Select(ProvisionalPrefix+carol.ID))

	// Carol's conversation now exists on the server; Dave's does not.
	l.Load([]proto.Conversation{conv("c-c", carol, 100), conv("c-b", bob, 200)})

	assert.Equal(t, []string{ProvisionalPrefix + dave.ID, "c-b", "c-c"}, ids(l))
	sel, ok := l.Selected()
	require.True(t, ok)
	assert.Equal(t, "c-c", sel.ID)
}

func TestDiscardProvisional(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100)})
	p := l.UpsertProvisional(carol)

	assert.False(t, l.DiscardProvisional("c-b"), "persisted entries stay")
	assert.True(t, l.DiscardProvisional(p.ID))
	assert.Equal(t, []string{"c-b"}, ids(l))

	_, ok := l.Selected()
	assert.False(t, ok)
	assert.False(t, l.Select(p.ID))
}

func summarized(c proto.Conversation, seq int64, text string) proto.Conversation {
	c.LastMessage = &proto.LastMessage{Seq: seq, Text: text, Sender: c.Participants[1].ID, TS: c.UpdatedAt}
	return c
}

func TestLateAcknowledgementKeepsNewerSummary(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100), conv("c-c", carol, 150)})

	// The push for the second message lands before the REST ack of the first.
	second := summarized(conv("c-b", bob, 200), 2, "second")
	l.OnNewMessage(second, proto.Message{ID: "m2", Seq: 2, ConversationID: "c-b", Text: "second", TS: 200})

	first := summarized(conv("c-b", bob, 190), 1, "first")
	l.ApplyExisting(first)
	l.OnNewMessage(first, proto.Message{ID: "m1", Seq: 1, ConversationID: "c-b", Text: "first", TS: 190})

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "c-b", entries[0].ID)
	require.NotNil(t, entries[0].LastMessage)
	assert.Equal(t, "second", entries[0].LastMessage.Text)
	assert.Equal(t, int64(2), entries[0].LastMessage.Seq)
	assert.Equal(t, int64(200), entries[0].UpdatedAt)
}

func TestStaleUpdateDoesNotReorder(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100), conv("c-c", carol, 150)})

	l.OnNewMessage(summarized(conv("c-b", bob, 200), 4, "newer"), proto.Message{ID: "m4", Seq: 4})
	l.OnNewMessage(summarized(conv("c-c", carol, 300), 9, "carol"), proto.Message{ID: "m9", Seq: 9})
	require.Equal(t, []string{"c-c", "c-b"}, ids(l))

	// Same timestamp, lower sequence: the sequence decides.
	l.OnNewMessage(summarized(conv("c-b", bob, 200), 3, "older"), proto.Message{ID: "m3", Seq: 3})

	assert.Equal(t, []string{"c-c", "c-b"}, ids(l))
	assert.Equal(t, "newer", l.Entries()[1].LastMessage.Text)
}

func TestLoadKeepsNewerHeldSummary(t *testing.T) {
	l := newTestList()
	l.Load([]proto.Conversation{conv("c-b", bob, 100), conv("c-c", carol, 150)})
	l.OnNewMessage(summarized(conv("c-b", bob, 400), 5, "pushed"), proto.Message{ID: "m5", Seq: 5})

	// A fetch issued before the push completes after it.
	l.Load([]proto.Conversation{
		summarized(conv("c-b", bob, 100), 4, "fetched"),
		summarized(conv("c-c", carol, 150), 2, "carol"),
	})

	assert.Equal(t, []string{"c-b", "c-c"}, ids(l))
	assert.Equal(t, "pushed", l.Entries()[0].LastMessage.Text)
	assert.Equal(t, "carol", l.Entries()[1].LastMessage.Text)
}
