package reducer

import (
	"slices"

	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

func addContact(s *projection.Store, p *event.ContactAdded) Outcome {
	if p.ContactID == "" {
		return Malformed
	}
	name := p.DisplayName
	payload := p.LinkPayload
	if p.Contact != nil {
		if name == "" {
			name = p.Contact.DisplayName
		}
		if payload == nil {
			payload = p.Contact.LinkPayload
		}
	}
	if name == "" {
		name = p.ContactID
	}
	if payload == nil {
		payload = map[string]any{}
	}
	c := s.EnsureContact(p.ContactID)
	c.DisplayName = name
	c.LinkPayload = payload
	s.AddNPCLinkable(p.ContactID, name)
	return Applied
}

func sendFriendRequest(s *projection.Store, p *event.FriendRequestSent, ts string) Outcome {
	if p.RequestID == "" || p.ContactID == "" {
		return Malformed
	}
	createdAt := p.CreatedAt
	if createdAt == "" {
		createdAt = ts
	}
	s.EnsureContact(p.ContactID)
	r := s.EnsureFriendRequest(p.RequestID, p.ContactID, createdAt)
	r.ContactID = p.ContactID
	r.CreatedAt = createdAt
	return Applied
}

// acceptFriendRequest marks the request accepted and opens the chat thread,
// materializing both when this is the first reference to them.
func acceptFriendRequest(s *projection.Store, p *event.FriendRequestAccepted, ts string) Outcome {
	if p.ContactID == "" {
		return Malformed
	}
	acceptedAt := p.AcceptedAt
	if acceptedAt == "" {
		acceptedAt = ts
	}
	s.EnsureContact(p.ContactID)
	if p.RequestID != "" {
		r := s.EnsureFriendRequest(p.RequestID, p.ContactID, ts)
		r.Accepted = true
		r.AcceptedAt = &acceptedAt
	}
	if p.ChatID != "" {
		chat := s.GetOrCreateChat(p.ChatID, p.ContactID)
		chat.ContactID = p.ContactID
		chat.Opened = true
	}
	return Applied
}

// postChatMessage appends the message to its thread unless a message with
// the same id is already there.
func postChatMessage(s *projection.Store, p *event.ChatMessagePosted, ts string) Outcome {
	if p.ChatID == "" {
		return Malformed
	}
	id := p.MessageID
	if id == "" {
		id = p.ChatID + "-" + ts
	}
	chat := s.GetOrCreateChat(p.ChatID, "")
	if slices.ContainsFunc(chat.Messages, func(m types.ChatMessage) bool { return m.ID == id }) {
		return Applied
	}
	links := p.Links
	if links == nil {
		links = []types.ChatLink{}
	}
	chat.Messages = append(chat.Messages, types.ChatMessage{
		ID:              id,
		ChatID:          p.ChatID,
		SenderContactID: p.SenderContactID,
		Text:            p.Text,
		CreatedAt:       ts,
		Links:           links,
	})
	return Applied
}
