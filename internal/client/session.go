package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/ParwinderBaidwan/PeepPost/internal/proto"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, http %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (http %d)", e.Message, e.Status)
}

// Session is an authenticated client: REST calls plus the push stream, both
// kept in sync with its List.
type Session struct {
	baseURL string
	token   string
	self    proto.User
	http    *http.Client
	list    *List
	log     *zerolog.Logger
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  proto.User `json:"user"`
}

// Login authenticates against the server at baseURL (e.g. http://localhost:8080).
func Login(ctx context.Context, baseURL, username, password string, logger *zerolog.Logger) (*Session, error) {
	return authenticate(ctx, baseURL, "/api/login", authRequest{Username: username, Password: password}, logger)
}

// Register creates an account and returns its session.
func Register(ctx context.Context, baseURL, username, password, name string, logger *zerolog.Logger) (*Session, error) {
	return authenticate(ctx, baseURL, "/api/register", authRequest{Username: username, Password: password, Name: name}, logger)
}

// Resume builds a session from a token obtained earlier.
func Resume(ctx context.Context, baseURL, token string, logger *zerolog.Logger) (*Session, error) {
	s := newSession(baseURL, token, proto.User{}, logger)
	var me proto.User
	if err := s.do(ctx, http.MethodGet, "/api/users/me", nil, &me); err != nil {
		return nil, err
	}
	s.self = me
	s.list = NewList(me.ID)
	return s, nil
}

func authenticate(ctx context.Context, baseURL, path string, req authRequest, logger *zerolog.Logger) (*Session, error) {
	s := newSession(baseURL, "", proto.User{}, logger)
	var res authResponse
	if err := s.do(ctx, http.MethodPost, path, req, &res); err != nil {
		return nil, err
	}
	s.token = res.Token
	s.self = res.User
	s.list = NewList(res.User.ID)
	return s, nil
}

func newSession(baseURL, token string, self proto.User, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		self:    self,
		http:    &http.Client{},
		list:    NewList(self.ID),
		log:     logger,
	}
}

// Token returns the bearer token of the session.
func (s *Session) Token() string { return s.token }

// Self returns the authenticated user.
func (s *Session) Self() proto.User { return s.self }

// List returns the session's conversation list.
func (s *Session) List() *List { return s.list }

// Refresh fetches the conversation list and merges it into List.
func (s *Session) Refresh(ctx context.Context) error {
	var convs []proto.Conversation
	if err := s.do(ctx, http.MethodGet, "/api/conversations", nil, &convs); err != nil {
		return err
	}
	s.list.Load(convs)
	return nil
}

// Search resolves a username or id and selects the resulting entry, either
// the existing conversation or a new placeholder.
func (s *Session) Search(ctx context.Context, query string) (proto.Conversation, error) {
	var res proto.Resolution
	if err := s.do(ctx, http.MethodGet, "/api/conversations/resolve?q="+url.QueryEscape(query), nil, &res); err != nil {
		return proto.Conversation{}, err
	}

	switch res.Kind {
	case proto.ResolutionExisting:
		s.list.ApplyExisting(res.Conversation)
		s.list.Select(res.Conversation.ID)
		return res.Conversation, nil
	case proto.ResolutionProvisional:
		if len(res.Conversation.Participants) == 0 {
			return proto.Conversation{}, fmt.Errorf("provisional result without target")
		}
		return s.list.UpsertProvisional(res.Conversation.Participants[0]), nil
	default:
		return proto.Conversation{}, fmt.Errorf("unknown resolution kind %q", res.Kind)
	}
}

type sendRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Text           string `json:"text"`
	Img            string `json:"img,omitempty"`
}

type sendResponse struct {
	Conversation proto.Conversation `json:"conversation"`
	Message      proto.Message      `json:"message"`
}

// Send posts a message to a conversation or placeholder id. A placeholder is
// upgraded to the persisted conversation in List.
func (s *Session) Send(ctx context.Context, conversationID, text, img string) (proto.Message, error) {
	var res sendResponse
	req := sendRequest{ConversationID: conversationID, Text: text, Img: img}
	if err := s.do(ctx, http.MethodPost, "/api/messages", req, &res); err != nil {
		return proto.Message{}, err
	}

	s.list.ApplyExisting(res.Conversation)
	s.list.OnNewMessage(res.Conversation, res.Message)
	return res.Message, nil
}

// History returns a page of messages ending before the message beforeID.
func (s *Session) History(ctx context.Context, conversationID, beforeID string, limit int) ([]proto.Message, error) {
	q := url.Values{}
	if beforeID != "" {
		q.Set("before", beforeID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var msgs []proto.Message
	if err := s.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Handler observes decoded pushes after they were applied to List.
type Handler func(event string, data any)

// Watch opens the push stream and applies every event to List until ctx is
// done or the connection fails. handle may be nil.
func (s *Session) Watch(ctx context.Context, handle Handler) error {
	wsURL := strings.Replace(s.baseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(s.token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	for {
		var out struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return err
		}

		data, err := s.apply(out.Type, out.Event, out.Data, out.Error)
		if err != nil {
			s.log.Warn().Err(err).Str("event", out.Event).Msg("skipping malformed push")
			continue
		}
		if handle != nil && data != nil {
			name := out.Event
			if name == "" {
				name = out.Type
			}
			handle(name, data)
		}
	}
}

func (s *Session) apply(typ, event string, raw json.RawMessage, perr *proto.Error) (any, error) {
	switch {
	case typ == proto.OutboundTypeError:
		return perr, nil
	case typ != proto.OutboundTypeEvent:
		return nil, nil
	case event == proto.EventOnlineUsers:
		var data proto.OnlineUsers
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
		s.list.OnOnlineSetChanged(data.Users)
		return data, nil
	case event == proto.EventNewMessage:
		var data proto.NewMessage
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
		s.list.OnNewMessage(data.Conversation, data.Message)
		return data, nil
	default:
		return nil, nil
	}
}

func (s *Session) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
