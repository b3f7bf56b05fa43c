package http

import (
	"encoding/json"

	"github.com/ParwinderBaidwan/PeepPost/internal/core"
	"github.com/ParwinderBaidwan/PeepPost/internal/proto"
	"github.com/ParwinderBaidwan/PeepPost/internal/service/conversations"
	"github.com/ParwinderBaidwan/PeepPost/internal/store"
)

// onlineFunc reports whether a user currently has a live session.
type onlineFunc func(userID string) bool

func userFromProfile(p store.Profile) proto.User {
	return proto.User{
		ID:         p.ID,
		Username:   p.Username,
		Name:       p.Name,
		ProfilePic: p.ProfilePic,
		Bio:        p.Bio,
	}
}

// conversationFor renders conv for viewer; Online reflects the counterpart.
func conversationFor(conv *store.Conversation, viewer string, online onlineFunc) proto.Conversation {
	out := proto.Conversation{
		ID: conv.ID,
		Participants: []proto.User{
			userFromProfile(conv.Participants[0]),
			userFromProfile(conv.Participants[1]),
		},
		CreatedAt: conv.CreatedAt.Unix(),
		UpdatedAt: conv.UpdatedAt.Unix(),
	}
	if online != nil {
		out.Online = online(conv.Counterpart(viewer).ID)
	}
	if lm := conv.LastMessage; lm != nil {
		out.LastMessage = &proto.LastMessage{
			Seq:    lm.Seq,
			Text:   lm.Text,
			Sender: lm.SenderID,
			Seen:   lm.Seen,
			TS:     lm.SentAt.Unix(),
		}
	}
	return out
}

func provisionalConversation(p conversations.Provisional, online onlineFunc) proto.Conversation {
	out := proto.Conversation{
		ID:           p.ID(),
		Participants: []proto.User{userFromProfile(p.Target)},
		Provisional:  true,
	}
	if online != nil {
		out.Online = online(p.Target.ID)
	}
	return out
}

func resolutionToProto(res conversations.Resolution, viewer string, online onlineFunc) proto.Resolution {
	switch r := res.(type) {
	case conversations.Existing:
		return proto.Resolution{Kind: proto.ResolutionExisting, Conversation: conversationFor(r.Conversation, viewer, online)}
	case conversations.Provisional:
		return proto.Resolution{Kind: proto.ResolutionProvisional, Conversation: provisionalConversation(r, online)}
	default:
		return proto.Resolution{}
	}
}

func messageToProto(m *store.Message) proto.Message {
	return proto.Message{
		ID:             m.ID,
		Seq:            m.Seq,
		ConversationID: m.ConversationID,
		Sender:         m.SenderID,
		Text:           m.Text,
		Img:            m.Image,
		Seen:           m.Seen,
		TS:             m.CreatedAt.Unix(),
	}
}

func errorOutbound(err error, clientID string) proto.Outbound {
	ce := core.ToCoreError(err)
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: ce.Code, Msg: ce.Message, ClientID: clientID},
	}
}

// inboundToSend decodes a send frame. A *core.CoreError return means the
// frame was well-formed JSON but unusable.
func inboundToSend(userID string, inbound proto.Inbound) (conversations.SendRequest, string, *core.CoreError) {
	var data proto.SendData
	if err := json.Unmarshal(inbound.Data, &data); err != nil {
		return conversations.SendRequest{}, "", core.BadRequest("invalid send payload")
	}
	if data.ConversationID == "" && data.RecipientID == "" {
		return conversations.SendRequest{}, data.ClientID, core.BadRequest("conversation_id or recipient_id is required")
	}
	return conversations.SendRequest{
		SenderID:       userID,
		ConversationID: data.ConversationID,
		RecipientID:    data.RecipientID,
		Text:           data.Text,
		Image:          data.Img,
	}, data.ClientID, nil
}

func outboundFromEvent(event *core.Event, viewer string, online onlineFunc) proto.Outbound {
	switch event.Kind {
	case core.EventOnlineSetChanged:
		users := event.Online
		if users == nil {
			users = []string{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventOnlineUsers,
			Data:  proto.OnlineUsers{Users: users},
		}
	case core.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data: proto.NewMessage{
				Conversation: conversationFor(event.Conversation, viewer, online),
				Message:      messageToProto(event.Message),
			},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
