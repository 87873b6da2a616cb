package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
)

// messageSelect joins the owning conversation's identifier and display name
// onto every message row.
const messageSelect = "*,conversations!inner(contact_identifier,contact_name)"

// ListMessages returns messages matching the filter, newest first, with
// offset pagination.
func (c *Client) ListMessages(ctx context.Context, f MessageFilter) ([]MessageRow, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	q := c.pg.From("messages").
		Select(messageSelect, "", false).
		Eq("channel", c.channel)

	switch {
	case f.After != nil && f.Before != nil:
		// postgrest-go keys filters by column, so a second created_at filter
		// would overwrite the first. Both bounds go through a single and() group.
		q = q.Or(fmt.Sprintf("and(created_at.gte.%s,created_at.lte.%s)",
			f.After.Format(time.RFC3339Nano), f.Before.Format(time.RFC3339Nano)), "")
	case f.After != nil:
		q = q.Gte("created_at", f.After.Format(time.RFC3339Nano))
	case f.Before != nil:
		q = q.Lte("created_at", f.Before.Format(time.RFC3339Nano))
	}

	if f.Sender != "" {
		q = q.Eq("sender", f.Sender)
	}
	if f.ChatJID != "" {
		q = q.Eq("conversations.contact_identifier", f.ChatJID)
	}
	if f.Query != "" {
		q = q.Ilike("body", "%"+f.Query+"%")
	}

	data, _, err := q.Order("created_at", &postgrest.OrderOpts{Ascending: false, NullsFirst: false}).
		Range(f.Offset, f.Offset+limit-1, "").
		ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("list messages", err)
	}
	return decodeMessages(data, "list messages")
}

// GetMessage fetches a single message by id. Returns ErrNotFound when the id
// does not exist.
func (c *Client) GetMessage(ctx context.Context, id string) (*MessageRow, error) {
	data, _, err := c.pg.From("messages").
		Select(messageSelect, "", false).
		Eq("id", id).
		Limit(1, "").
		ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("get message", err)
	}
	rows, err := decodeMessages(data, "get message")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("message %q: %w", id, ErrNotFound)
	}
	return &rows[0], nil
}

// MessagesBefore returns up to n messages in the conversation strictly older
// than ts, newest first.
func (c *Client) MessagesBefore(ctx context.Context, conversationID string, ts time.Time, n int) ([]MessageRow, error) {
	data, _, err := c.pg.From("messages").
		Select(messageSelect, "", false).
		Eq("conversation_id", conversationID).
		Lt("created_at", ts.Format(time.RFC3339Nano)).
		Order("created_at", &postgrest.OrderOpts{Ascending: false, NullsFirst: false}).
		Limit(n, "").
		ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("messages before", err)
	}
	return decodeMessages(data, "messages before")
}

// MessagesAfter returns up to n messages in the conversation strictly newer
// than ts, oldest first.
func (c *Client) MessagesAfter(ctx context.Context, conversationID string, ts time.Time, n int) ([]MessageRow, error) {
	data, _, err := c.pg.From("messages").
		Select(messageSelect, "", false).
		Eq("conversation_id", conversationID).
		Gt("created_at", ts.Format(time.RFC3339Nano)).
		Order("created_at", &postgrest.OrderOpts{Ascending: true, NullsFirst: false}).
		Limit(n, "").
		ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("messages after", err)
	}
	return decodeMessages(data, "messages after")
}

// LastMessage returns the most recent message of a conversation, or nil when
// it has none.
func (c *Client) LastMessage(ctx context.Context, conversationID string) (*MessageRow, error) {
	data, _, err := c.pg.From("messages").
		Select("*", "", false).
		Eq("conversation_id", conversationID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false, NullsFirst: false}).
		Limit(1, "").
		ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("last message", err)
	}
	rows, err := decodeMessages(data, "last message")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// InsertMessage appends a message row and returns its id. The channel is
// stamped by the client.
func (c *Client) InsertMessage(ctx context.Context, row *MessageRow) (string, error) {
	row.Channel = c.channel
	data, _, err := c.pg.From("messages").
		Insert(row, false, "", "representation", "").
		ExecuteWithContext(ctx)
	if err != nil {
		return "", remoteErr("insert message", err)
	}
	rows, err := decodeMessages(data, "insert message")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", remoteErr("insert message", errors.New("no row returned"))
	}
	return rows[0].ID, nil
}

func decodeMessages(data []byte, op string) ([]MessageRow, error) {
	var rows []MessageRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, remoteErr(op+": decode", err)
	}
	return rows, nil
}
