package chat

import (
	"context"
	"errors"
	"time"

	"github.com/ecostadev/wamcp/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidDirection rejects save requests whose direction is neither
// inbound nor outbound.
var ErrInvalidDirection = errors.New("chat: direction must be inbound or outbound")

// Store is the slice of the remote message store the façade needs. It is
// satisfied by *store.Client and substitutable in tests.
type Store interface {
	FindConversation(ctx context.Context, jid string) (*store.ConversationRow, error)
	FindConversationLike(ctx context.Context, fragment string, excludeGroups bool) (*store.ConversationRow, error)
	ListConversations(ctx context.Context, query string, sortByName bool, limit, offset int) ([]store.ConversationRow, error)
	ConversationsWithContact(ctx context.Context, jid string, limit, offset int) ([]store.ConversationRow, error)
	SearchDirectConversations(ctx context.Context, query string, limit int) ([]store.ConversationRow, error)
	CreateConversation(ctx context.Context, jid string) (string, error)
	UpdateConversationName(ctx context.Context, jid, name string) error
	TouchConversation(ctx context.Context, id string, ts time.Time) error

	ListMessages(ctx context.Context, f store.MessageFilter) ([]store.MessageRow, error)
	GetMessage(ctx context.Context, id string) (*store.MessageRow, error)
	MessagesBefore(ctx context.Context, conversationID string, ts time.Time, n int) ([]store.MessageRow, error)
	MessagesAfter(ctx context.Context, conversationID string, ts time.Time, n int) ([]store.MessageRow, error)
	LastMessage(ctx context.Context, conversationID string) (*store.MessageRow, error)
	InsertMessage(ctx context.Context, row *store.MessageRow) (string, error)
}

// Service is the message store façade: it translates tool-level requests
// into remote queries and shapes the rows into Message/Chat/Contact records.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a façade over the given store.
func NewService(st Store, logger *zap.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// SenderName resolves a sender identifier to a display name: exact
// conversation match first, then a fuzzy match on the numeric part, falling
// back to the identifier itself. It never fails; remote errors are logged.
func (s *Service) SenderName(ctx context.Context, senderJID string) string {
	conv, err := s.store.FindConversation(ctx, senderJID)
	if err != nil {
		s.logger.Warn("sender name lookup failed", zap.String("jid", senderJID), zap.Error(err))
		return senderJID
	}
	if name := contactName(conv); name != "" {
		return name
	}

	conv, err = s.store.FindConversationLike(ctx, phonePart(senderJID), false)
	if err != nil {
		s.logger.Warn("sender name fuzzy lookup failed", zap.String("jid", senderJID), zap.Error(err))
		return senderJID
	}
	if name := contactName(conv); name != "" {
		return name
	}
	return senderJID
}

// ListMessagesQuery narrows and paginates ListMessages. Zero-valued filters
// are ignored; Limit defaults to 20.
type ListMessagesQuery struct {
	After          *time.Time
	Before         *time.Time
	Sender         string
	ChatJID        string
	Query          string
	Limit          int
	Page           int
	IncludeContext bool
	ContextBefore  int
	ContextAfter   int
}

// ListMessages returns the matching messages, newest first, formatted as
// text. With IncludeContext set, every hit is expanded in place into its
// surrounding window; overlapping windows are not deduplicated.
func (s *Service) ListMessages(ctx context.Context, q ListMessagesQuery) (string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.store.ListMessages(ctx, store.MessageFilter{
		After:   q.After,
		Before:  q.Before,
		Sender:  q.Sender,
		ChatJID: q.ChatJID,
		Query:   q.Query,
		Limit:   limit,
		Offset:  q.Page * limit,
	})
	if err != nil {
		return "", err
	}

	msgs := make([]Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, messageFromRow(&rows[i], ""))
	}

	if q.IncludeContext && len(msgs) > 0 {
		expanded := make([]Message, 0, len(msgs)*(q.ContextBefore+q.ContextAfter+1))
		for _, m := range msgs {
			mc, err := s.MessageContext(ctx, m.ID, q.ContextBefore, q.ContextAfter)
			if err != nil {
				return "", err
			}
			expanded = append(expanded, mc.Before...)
			expanded = append(expanded, mc.Message)
			expanded = append(expanded, mc.After...)
		}
		return s.FormatMessages(ctx, expanded, true), nil
	}

	return s.FormatMessages(ctx, msgs, true), nil
}

// MessageContext returns the message with the given id plus up to before
// prior and after following messages from the same conversation, both in
// chronological order. A missing anchor is a hard failure (store.ErrNotFound)
// since there is no well-defined window without it.
func (s *Service) MessageContext(ctx context.Context, id string, before, after int) (*MessageContext, error) {
	row, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	mc := &MessageContext{Message: messageFromRow(row, "")}

	if before > 0 {
		rows, err := s.store.MessagesBefore(ctx, row.ConversationID, row.CreatedAt, before)
		if err != nil {
			return nil, err
		}
		// Scanned newest-first; reverse back to chronological order.
		for i := len(rows) - 1; i >= 0; i-- {
			mc.Before = append(mc.Before, messageFromRow(&rows[i], ""))
		}
	}

	if after > 0 {
		rows, err := s.store.MessagesAfter(ctx, row.ConversationID, row.CreatedAt, after)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			mc.After = append(mc.After, messageFromRow(&rows[i], ""))
		}
	}

	return mc, nil
}

// ListChatsQuery narrows and paginates ListChats.
type ListChatsQuery struct {
	Query              string
	Limit              int
	Page               int
	IncludeLastMessage bool
	SortBy             string // "last_active" (default) or "name"
}

// ListChats returns conversations matching the query. With
// IncludeLastMessage set, each chat is enriched with its most recent message
// summary, one follow-up query per chat.
func (s *Service) ListChats(ctx context.Context, q ListChatsQuery) ([]Chat, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.store.ListConversations(ctx, q.Query, q.SortBy == "name", limit, q.Page*limit)
	if err != nil {
		return nil, err
	}

	chats := make([]Chat, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		c := chatFromConversation(row)
		if q.IncludeLastMessage && row.ID != "" {
			last, err := s.store.LastMessage(ctx, row.ID)
			if err != nil {
				return nil, err
			}
			if last != nil {
				applyLastMessage(&c, last)
			}
		}
		chats = append(chats, c)
	}
	return chats, nil
}

// SearchContacts returns non-group conversation partners whose name or
// identifier contains the query, capped at 50.
func (s *Service) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	rows, err := s.store.SearchDirectConversations(ctx, query, 50)
	if err != nil {
		return nil, err
	}
	contacts := make([]Contact, 0, len(rows))
	for i := range rows {
		c := Contact{
			PhoneNumber: phonePart(rows[i].ContactIdentifier),
			JID:         rows[i].ContactIdentifier,
		}
		if rows[i].ContactName != nil {
			c.Name = *rows[i].ContactName
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// ContactChats returns all chats involving the contact, most recently active
// first.
func (s *Service) ContactChats(ctx context.Context, jid string, limit, page int) ([]Chat, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.store.ConversationsWithContact(ctx, jid, limit, page*limit)
	if err != nil {
		return nil, err
	}
	chats := make([]Chat, 0, len(rows))
	for i := range rows {
		chats = append(chats, chatFromConversation(&rows[i]))
	}
	return chats, nil
}

// LastInteraction returns the most recent message involving the contact,
// formatted, or an empty string when there is none.
func (s *Service) LastInteraction(ctx context.Context, jid string) (string, error) {
	conv, err := s.store.FindConversation(ctx, jid)
	if err != nil {
		return "", err
	}
	if conv == nil {
		return "", nil
	}
	last, err := s.store.LastMessage(ctx, conv.ID)
	if err != nil {
		return "", err
	}
	if last == nil {
		return "", nil
	}
	m := messageFromRow(last, contactName(conv))
	return s.FormatMessage(ctx, m, true), nil
}

// GetChat returns chat metadata by exact identifier, or nil when unknown.
func (s *Service) GetChat(ctx context.Context, jid string, includeLastMessage bool) (*Chat, error) {
	conv, err := s.store.FindConversation(ctx, jid)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	return s.enrichChat(ctx, conv, includeLastMessage)
}

// DirectChatByContact returns the non-group chat whose identifier contains
// the given phone number, or nil when there is none.
func (s *Service) DirectChatByContact(ctx context.Context, phone string) (*Chat, error) {
	conv, err := s.store.FindConversationLike(ctx, phone, true)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	return s.enrichChat(ctx, conv, true)
}

func (s *Service) enrichChat(ctx context.Context, conv *store.ConversationRow, includeLastMessage bool) (*Chat, error) {
	c := chatFromConversation(conv)
	if includeLastMessage && conv.ID != "" {
		last, err := s.store.LastMessage(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			applyLastMessage(&c, last)
		}
	}
	return &c, nil
}

// SaveMessageParams describes a message append. A zero Timestamp means "now".
type SaveMessageParams struct {
	ConversationJID string
	Sender          string
	Recipient       string
	Body            string
	Direction       string
	ExternalID      string
	Media           MediaKind
	Timestamp       time.Time
}

// SaveMessage appends a message, creating the conversation on first contact,
// and bumps the conversation's last activity. Returns the new message id.
// The conversation lookup makes retries idempotent on the conversation row;
// a failed activity bump after a successful insert is logged, not fatal.
func (s *Service) SaveMessage(ctx context.Context, p SaveMessageParams) (string, error) {
	if p.Direction != store.DirectionInbound && p.Direction != store.DirectionOutbound {
		return "", ErrInvalidDirection
	}

	conversationID := ""
	conv, err := s.store.FindConversation(ctx, p.ConversationJID)
	if err != nil {
		return "", err
	}
	if conv != nil {
		conversationID = conv.ID
	} else {
		conversationID, err = s.store.CreateConversation(ctx, p.ConversationJID)
		if err != nil {
			return "", err
		}
	}

	now := p.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	row := &store.MessageRow{
		ConversationID: conversationID,
		Direction:      p.Direction,
		Sender:         p.Sender,
		Recipient:      p.Recipient,
		Body:           &p.Body,
		CreatedAt:      now,
		UpdatedAt:      now,
		Topic:          "chat",
		Extension:      "text",
	}
	if p.ExternalID != "" {
		row.ExternalID = &p.ExternalID
	}
	if p.Media != "" {
		row.Metadata = map[string]any{"media_type": string(p.Media)}
	}

	id, err := s.store.InsertMessage(ctx, row)
	if err != nil {
		return "", err
	}

	if err := s.store.TouchConversation(ctx, conversationID, now); err != nil {
		s.logger.Warn("bump last_message_at failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return id, nil
}

// UpdateContactName unconditionally sets the display name of the
// conversation matching jid.
func (s *Service) UpdateContactName(ctx context.Context, jid, name string) error {
	return s.store.UpdateConversationName(ctx, jid, name)
}

func contactName(conv *store.ConversationRow) string {
	if conv == nil || conv.ContactName == nil {
		return ""
	}
	return *conv.ContactName
}
