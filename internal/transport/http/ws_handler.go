package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/ParwinderBaidwan/PeepPost/internal/auth"
	"github.com/ParwinderBaidwan/PeepPost/internal/config"
	"github.com/ParwinderBaidwan/PeepPost/internal/core"
	"github.com/ParwinderBaidwan/PeepPost/internal/proto"
	"github.com/ParwinderBaidwan/PeepPost/internal/service/conversations"
)

var errSessionKicked = errors.New("session kicked")

// WSHandler upgrades authenticated HTTP connections and bridges them to a
// presence session.
type WSHandler struct {
	auth     *auth.Service
	svc      *conversations.Service
	presence *core.Registry
	log      *zerolog.Logger

	maxMessageBytes   int64
	messagesPerMinute int
	sessionBuffer     int
	pingInterval      time.Duration
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(deps Deps, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		auth:              deps.Auth,
		svc:               deps.Conversations,
		presence:          deps.Presence,
		log:               logger,
		maxMessageBytes:   cfg.MaxMessageBytes,
		messagesPerMinute: cfg.MessagesPerMinute,
		sessionBuffer:     cfg.SessionBuffer,
		pingInterval:      cfg.PingInterval,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r.Header.Get("Authorization"))
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws unauthorized")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	session := core.NewSession(claims.UserID, h.sessionBuffer)
	logger := h.log.With().Str("user_id", session.UserID).Str("session_id", session.ID).Logger()

	// Register seeds the session with the online set; the deferred
	// unregister covers clean closes and dropped sockets alike.
	cameOnline := h.presence.Register(session)
	defer h.presence.Unregister(session)
	logger.Info().
		Bool("came_online", cameOnline).
		Int("sessions", h.presence.SessionCount(session.UserID)).
		Msg("ws session opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session, &logger)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errSessionKicked):
		status = websocket.StatusTryAgainLater
		reason = "too slow, reconnect"
		logger.Warn().Msg("ws session kicked")
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, logger *zerolog.Logger) error {
	limiter := newRateLimiter(h.messagesPerMinute)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			logger.Debug().Err(err).Msg("read ws inbound")
			return err
		}

		var out proto.Outbound
		switch inbound.Type {
		case proto.InboundTypePing:
			out = proto.Outbound{Type: proto.OutboundTypePong}
		case proto.InboundTypeSend:
			out = h.handleSend(ctx, session, inbound, limiter, logger)
		default:
			out = errorOutbound(core.BadRequest("unknown message type"), "")
		}

		if err := wsjson.Write(ctx, conn, out); err != nil {
			return err
		}
	}
}

func (h *WSHandler) handleSend(ctx context.Context, session *core.Session, inbound proto.Inbound, limiter *rateLimiter, logger *zerolog.Logger) proto.Outbound {
	req, clientID, badReq := inboundToSend(session.UserID, inbound)
	if badReq != nil {
		return errorOutbound(badReq, clientID)
	}
	if !limiter.allow() {
		logger.Debug().Msg("send rate limited")
		return errorOutbound(core.RateLimited(), clientID)
	}

	res, err := h.svc.Send(ctx, req)
	if err != nil {
		return errorOutbound(err, clientID)
	}

	return proto.Outbound{
		Type: proto.OutboundTypeSent,
		Data: proto.Sent{
			ClientID:     clientID,
			Conversation: conversationFor(res.Conversation, session.UserID, h.presence.IsOnline),
			Message:      messageToProto(res.Message),
		},
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, logger *zerolog.Logger) error {
	var pings <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case event := <-session.Events():
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event, session.UserID, h.presence.IsOnline)); err != nil {
				logger.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-session.Done():
			return errSessionKicked
		case <-pings:
			pingCtx, cancel := context.WithTimeout(ctx, h.pingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Debug().Err(err).Msg("ws ping failed")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
