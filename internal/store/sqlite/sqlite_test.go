package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParwinderBaidwan/PeepPost/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, username string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), &store.User{
		Username:     username,
		Name:         username,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return u
}

func TestFindByUsernameOrID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")

	byName, err := s.FindByUsernameOrID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)

	byID, err := s.FindByUsernameOrID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = s.FindByUsernameOrID(ctx, "nobody")
	assert.True(t, store.IsNotFound(err), "expected not found, got %v", err)

	_, err = s.FindByUsernameOrID(ctx, "5f1b0c9e-8a43-4c8e-9d0e-4f5c2a7a9b11")
	assert.True(t, store.IsNotFound(err), "expected not found, got %v", err)
}

func TestFindByUsernameOrIDFallsBackToUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Parses as a UUID but is somebody's username.
	hexName := "0123456789abcdef0123456789abcdef"
	hex := seedUser(t, s, hexName)

	found, err := s.FindByUsernameOrID(ctx, hexName)
	require.NoError(t, err)
	assert.Equal(t, hex.ID, found.ID)

	// A real id still wins over the username lookup.
	byID, err := s.FindByUsernameOrID(ctx, hex.ID)
	require.NoError(t, err)
	assert.Equal(t, hexName, byID.Username)
}

func TestCreateOrGetConversationIsOrderIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	first, err := s.CreateOrGetConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	second, err := s.CreateOrGetConversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.HasParticipant(alice.ID))
	assert.True(t, first.HasParticipant(bob.ID))
	assert.Nil(t, first.LastMessage)

	found, err := s.FindConversationBetween(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestCreateOrGetConversationConcurrentCallersShareOneRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	const callers = 16
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := s.CreateOrGetConversation(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	convs, err := s.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestCreateOrGetConversationRejectsSelfPair(t *testing.T) {
	s := newTestStore(t)
	alice := seedUser(t, s, "alice")

	_, err := s.CreateOrGetConversation(context.Background(), alice.ID, alice.ID)
	assert.Error(t, err)
}

func TestAppendMessageUpdatesSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	conv, err := s.CreateOrGetConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg := &store.Message{ConversationID: conv.ID, SenderID: alice.ID, Text: "hi"}
	updated, err := s.AppendMessage(ctx, msg)
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Positive(t, msg.Seq)
	require.NotNil(t, updated.LastMessage)
	assert.Equal(t, "hi", updated.LastMessage.Text)
	assert.Equal(t, alice.ID, updated.LastMessage.SenderID)
	assert.False(t, updated.LastMessage.Seen)
	assert.Equal(t, msg.Seq, updated.LastMessage.Seq)

	img := &store.Message{ConversationID: conv.ID, SenderID: bob.ID, Image: "https://cdn.example.com/a.png"}
	updated, err = s.AppendMessage(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, store.ImageMarker, updated.LastMessage.Text)
	assert.Equal(t, bob.ID, updated.LastMessage.SenderID)
	assert.Greater(t, img.Seq, msg.Seq)
	assert.Equal(t, img.Seq, updated.LastMessage.Seq)

	reread, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, img.Seq, reread.LastMessage.Seq)
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	alice := seedUser(t, s, "alice")

	// Foreign keys reject the insert before the summary update is reached.
	_, err := s.AppendMessage(context.Background(), &store.Message{
		ConversationID: "missing",
		SenderID:       alice.ID,
		Text:           "hi",
	})
	require.Error(t, err)

	msgs, err := s.ListMessages(context.Background(), "missing", 10, "")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestListConversationsOrdersByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	carol := seedUser(t, s, "carol")

	withBob, err := s.CreateOrGetConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	withCarol, err := s.CreateOrGetConversation(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	base := time.Now().UTC()
	_, err = s.AppendMessage(ctx, &store.Message{ConversationID: withCarol.ID, SenderID: carol.ID, Text: "old", CreatedAt: base})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, &store.Message{ConversationID: withBob.ID, SenderID: bob.ID, Text: "new", CreatedAt: base.Add(time.Second)})
	require.NoError(t, err)

	convs, err := s.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, withBob.ID, convs[0].ID)
	assert.Equal(t, withCarol.ID, convs[1].ID)

	// Bob only sees his own conversation.
	convs, err = s.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "alice", convs[0].Counterpart(bob.ID).Username)
}

func TestListMessagesPaginates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	conv, err := s.CreateOrGetConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	var ids []string
	for _, text := range []string{"one", "two", "three", "four"} {
		msg := &store.Message{ConversationID: conv.ID, SenderID: alice.ID, Text: text}
		_, err := s.AppendMessage(ctx, msg)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	latest, err := s.ListMessages(ctx, conv.ID, 2, "")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "three", latest[0].Text)
	assert.Equal(t, "four", latest[1].Text)

	older, err := s.ListMessages(ctx, conv.ID, 10, latest[0].ID)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, ids[0], older[0].ID)
	assert.Equal(t, ids[1], older[1].ID)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "alice")

	_, err := s.CreateUser(context.Background(), &store.User{Username: "alice", PasswordHash: "hash"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}
