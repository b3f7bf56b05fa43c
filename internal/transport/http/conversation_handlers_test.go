package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParwinderBaidwan/PeepPost/internal/core"
	"github.com/ParwinderBaidwan/PeepPost/internal/proto"
)

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger := zerolog.Nop()
	rec := httptest.NewRecorder()
	NewRouter(e.deps, &e.cfg, &logger).ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/register", "", RegisterRequest{Username: "alice", Password: "password123", Name: "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[AuthResponse](t, rec)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "Alice", reg.User.Name)

	rec = env.do(t, http.MethodPost, "/api/register", "", RegisterRequest{Username: "alice", Password: "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[AuthResponse](t, rec)
	assert.Equal(t, reg.User.ID, login.User.ID)

	rec = env.do(t, http.MethodGet, "/api/users/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[proto.User](t, rec).Username)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/conversations", "/api/presence", "/api/conversations/resolve?q=bob"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		rec = env.do(t, http.MethodGet, path, "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestResolveSendAndList(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.register(t, "alice")
	bobID, bobToken := env.register(t, "bob")

	// Unknown users and self searches are rejected.
	rec := env.do(t, http.MethodGet, "/api/conversations/resolve?q=mallory", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, core.ErrCodeUserNotFound, decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/conversations/resolve?q=alice", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.ErrCodeSelfConversation, decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/conversations/resolve?q=", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.ErrCodeBadRequest, decode[ErrorResponse](t, rec).Code)

	// First search yields a placeholder.
	rec = env.do(t, http.MethodGet, "/api/conversations/resolve?q=bob", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[proto.Resolution](t, rec)
	assert.Equal(t, proto.ResolutionProvisional, res.Kind)
	assert.True(t, res.Conversation.Provisional)
	require.Len(t, res.Conversation.Participants, 1)
	assert.Equal(t, bobID, res.Conversation.Participants[0].ID)

	rec = env.do(t, http.MethodGet, "/api/conversations", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]proto.Conversation](t, rec))

	// Sending through the placeholder creates the conversation.
	rec = env.do(t, http.MethodPost, "/api/messages", aliceToken, SendMessageRequest{ConversationID: res.Conversation.ID, Text: "hi bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[SendMessageResponse](t, rec)
	assert.False(t, sent.Conversation.Provisional)
	assert.Equal(t, "hi bob", sent.Message.Text)
	require.NotNil(t, sent.Conversation.LastMessage)
	assert.Equal(t, "hi bob", sent.Conversation.LastMessage.Text)

	rec = env.do(t, http.MethodGet, "/api/conversations/resolve?q="+bobID, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[proto.Resolution](t, rec)
	assert.Equal(t, proto.ResolutionExisting, res.Kind)
	assert.Equal(t, sent.Conversation.ID, res.Conversation.ID)

	// Bob was offline and sees it on his next fetch.
	rec = env.do(t, http.MethodGet, "/api/conversations", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]proto.Conversation](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, sent.Conversation.ID, list[0].ID)
	assert.Equal(t, "hi bob", list[0].LastMessage.Text)

	rec = env.do(t, http.MethodGet, "/api/conversations/"+sent.Conversation.ID+"/messages?limit=10", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]proto.Message](t, rec)
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.Message.ID, msgs[0].ID)
}

func TestSendMessageErrors(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.register(t, "alice")
	bobID, _ := env.register(t, "bob")
	_, carolToken := env.register(t, "carol")

	rec := env.do(t, http.MethodPost, "/api/messages", aliceToken, SendMessageRequest{RecipientID: bobID, Text: "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	convID := decode[SendMessageResponse](t, rec).Conversation.ID

	tests := []struct {
		name   string
		token  string
		body   SendMessageRequest
		status int
		code   string
	}{
		{"empty message", aliceToken, SendMessageRequest{ConversationID: convID}, http.StatusBadRequest, core.ErrCodeEmptyMessage},
		{"stale conversation", aliceToken, SendMessageRequest{ConversationID: "gone", Text: "hi"}, http.StatusNotFound, core.ErrCodeConversationNotFound},
		{"not a participant", carolToken, SendMessageRequest{ConversationID: convID, Text: "hi"}, http.StatusForbidden, core.ErrCodeNotParticipant},
		{"no target", aliceToken, SendMessageRequest{Text: "hi"}, http.StatusBadRequest, core.ErrCodeInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/messages", tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}

	rec = env.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages?limit=abc", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages", carolToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProfileEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.register(t, "alice")
	bobID, _ := env.register(t, "bob")

	rec := env.do(t, http.MethodGet, "/api/users/profile/bob", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bobID, decode[proto.User](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/api/users/profile/nobody", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
