package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/ParwinderBaidwan/PeepPost/internal/core"
	"github.com/ParwinderBaidwan/PeepPost/internal/proto"
	"github.com/ParwinderBaidwan/PeepPost/internal/service/conversations"
	"github.com/ParwinderBaidwan/PeepPost/internal/store"
)

// ConversationHandlers serves conversation, message and presence endpoints.
type ConversationHandlers struct {
	svc *conversations.Service
	log *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(svc *conversations.Service, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		svc: svc,
		log: logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	RecipientID    string `json:"recipient_id"`
	Text           string `json:"text"`
	Img            string `json:"img"`
}

// SendMessageResponse is the persisted message and its updated conversation.
type SendMessageResponse struct {
	Conversation proto.Conversation `json:"conversation"`
	Message      proto.Message      `json:"message"`
}

// PresenceResponse lists online users.
type PresenceResponse struct {
	Users []string `json:"users"`
}

// ListConversations returns the caller's conversations, newest activity first.
// GET /api/conversations
func (h *ConversationHandlers) ListConversations(c *gin.Context) {
	uid := currentUserID(c)

	convs, err := h.svc.List(c.Request.Context(), uid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, lo.Map(convs, func(conv *store.Conversation, _ int) proto.Conversation {
		return conversationFor(conv, uid, h.svc.IsOnline)
	}))
}

// Resolve turns a username or user id into an existing or provisional conversation.
// GET /api/conversations/resolve?q=query
func (h *ConversationHandlers) Resolve(c *gin.Context) {
	uid := currentUserID(c)

	res, err := h.svc.Resolve(c.Request.Context(), uid, c.Query("q"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, resolutionToProto(res, uid, h.svc.IsOnline))
}

// History returns a page of messages.
// GET /api/conversations/:id/messages?before=<message id>&limit=50
func (h *ConversationHandlers) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, h.log, core.BadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	msgs, err := h.svc.History(c.Request.Context(), currentUserID(c), c.Param("id"), limit, c.Query("before"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, lo.Map(msgs, func(m *store.Message, _ int) proto.Message {
		return messageToProto(m)
	}))
}

// SendMessage persists a message and pushes it to online participants.
// POST /api/messages
func (h *ConversationHandlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		respondError(c, h.log, core.BadRequest("invalid request body"))
		return
	}

	uid := currentUserID(c)
	out, err := h.svc.Send(c.Request.Context(), conversations.SendRequest{
		SenderID:       uid,
		ConversationID: req.ConversationID,
		RecipientID:    req.RecipientID,
		Text:           req.Text,
		Image:          req.Img,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, SendMessageResponse{
		Conversation: conversationFor(out.Conversation, uid, h.svc.IsOnline),
		Message:      messageToProto(out.Message),
	})
}

// Presence returns the current online set.
// GET /api/presence
func (h *ConversationHandlers) Presence(c *gin.Context) {
	c.JSON(http.StatusOK, PresenceResponse{Users: h.svc.Online()})
}
