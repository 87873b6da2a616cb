package store

import "time"

// Direction values stored on a message row.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// GroupSuffix is the identifier suffix reserved for group chats.
const GroupSuffix = "@g.us"

// ConversationRow mirrors a row of the remote conversations collection.
type ConversationRow struct {
	ID                string     `json:"id,omitempty"`
	Channel           string     `json:"channel"`
	ContactIdentifier string     `json:"contact_identifier"`
	ContactName       *string    `json:"contact_name,omitempty"`
	Status            string     `json:"status,omitempty"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
	UnreadCount       int        `json:"unread_count,omitempty"`
}

// ConversationRef is the joined conversation info embedded in message rows.
type ConversationRef struct {
	ContactIdentifier string  `json:"contact_identifier"`
	ContactName       *string `json:"contact_name,omitempty"`
}

// MessageRow mirrors a row of the remote messages collection, optionally
// carrying the owning conversation's identifier and display name.
type MessageRow struct {
	ID             string           `json:"id,omitempty"`
	ConversationID string           `json:"conversation_id"`
	Channel        string           `json:"channel"`
	Direction      string           `json:"direction"`
	Sender         string           `json:"sender"`
	Recipient      string           `json:"recipient"`
	Body           *string          `json:"body,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Topic          string           `json:"topic,omitempty"`
	Extension      string           `json:"extension,omitempty"`
	ExternalID     *string          `json:"external_id,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	Conversation   *ConversationRef `json:"conversations,omitempty"`
}

// MessageFilter narrows ListMessages. Zero values mean "no constraint".
type MessageFilter struct {
	After   *time.Time
	Before  *time.Time
	Sender  string
	ChatJID string
	Query   string
	Limit   int
	Offset  int
}
