package chat

import (
	"strings"
	"time"

	"github.com/ecostadev/wamcp/internal/store"
)

// MediaKind tags a message carrying media. Plain text messages have no kind.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaSticker  MediaKind = "sticker"
	MediaUnknown  MediaKind = "unknown"
)

// mediaKind maps a stored metadata tag to the closed media set, falling back
// to MediaUnknown for tags we don't recognize.
func mediaKind(tag string) MediaKind {
	switch k := MediaKind(tag); k {
	case "":
		return ""
	case MediaImage, MediaVideo, MediaAudio, MediaDocument, MediaSticker:
		return k
	default:
		return MediaUnknown
	}
}

// Message is a read-through projection of a stored message row.
type Message struct {
	ID        string    `json:"id"`
	ChatJID   string    `json:"chat_jid"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	FromMe    bool      `json:"is_from_me"`
	ChatName  string    `json:"chat_name,omitempty"`
	Media     MediaKind `json:"media_type,omitempty"`
}

// Chat is the per-conversation view returned by chat listings, optionally
// carrying a summary of its most recent message.
type Chat struct {
	JID             string     `json:"jid"`
	Name            string     `json:"name,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	LastMessage     string     `json:"last_message,omitempty"`
	LastSender      string     `json:"last_sender,omitempty"`
	LastFromMe      *bool      `json:"last_is_from_me,omitempty"`
}

// IsGroup reports whether the chat identifier carries the group suffix.
func (c *Chat) IsGroup() bool {
	return strings.HasSuffix(c.JID, store.GroupSuffix)
}

// Contact is a direct (non-group) conversation partner.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name,omitempty"`
	JID         string `json:"jid"`
}

// MessageContext is a message with its chronological surroundings within the
// same conversation.
type MessageContext struct {
	Message Message   `json:"message"`
	Before  []Message `json:"before"`
	After   []Message `json:"after"`
}

// messageFromRow shapes a stored row into a Message. The owning chat
// identifier is the recipient for outgoing messages and the sender for
// incoming ones, falling back to the parent conversation's identifier.
func messageFromRow(row *store.MessageRow, nameOverride string) Message {
	fromMe := row.Direction == store.DirectionOutbound

	chatJID := row.Sender
	if fromMe {
		chatJID = row.Recipient
	}
	if chatJID == "" && row.Conversation != nil {
		chatJID = row.Conversation.ContactIdentifier
	}

	chatName := nameOverride
	if chatName == "" && row.Conversation != nil && row.Conversation.ContactName != nil {
		chatName = *row.Conversation.ContactName
	}

	var tag string
	if row.Metadata != nil {
		tag, _ = row.Metadata["media_type"].(string)
	}

	body := ""
	if row.Body != nil {
		body = *row.Body
	}

	return Message{
		ID:        row.ID,
		ChatJID:   chatJID,
		Sender:    row.Sender,
		Body:      body,
		Timestamp: row.CreatedAt,
		FromMe:    fromMe,
		ChatName:  chatName,
		Media:     mediaKind(tag),
	}
}

func chatFromConversation(row *store.ConversationRow) Chat {
	c := Chat{
		JID:             row.ContactIdentifier,
		LastMessageTime: row.LastMessageAt,
	}
	if row.ContactName != nil {
		c.Name = *row.ContactName
	}
	return c
}

func applyLastMessage(c *Chat, row *store.MessageRow) {
	if row.Body != nil {
		c.LastMessage = *row.Body
	}
	c.LastSender = row.Sender
	fromMe := row.Direction == store.DirectionOutbound
	c.LastFromMe = &fromMe
}

func phonePart(jid string) string {
	if i := strings.Index(jid, "@"); i >= 0 {
		return jid[:i]
	}
	return jid
}
