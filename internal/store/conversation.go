package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
)

// FindConversation returns the conversation whose identifier matches jid
// exactly, or nil when there is none.
func (c *Client) FindConversation(ctx context.Context, jid string) (*ConversationRow, error) {
	data, _, err := c.pg.From("conversations").
		Select("*", "", false).
		Eq("contact_identifier", jid).
		Eq("channel", c.channel).
		Limit(1, "").
		ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("find conversation", err)
	}
	return firstConversation(data, "find conversation")
}

// FindConversationLike returns the first conversation whose identifier
// contains the fragment (case-insensitive). With excludeGroups set,
// group-suffixed identifiers are skipped.
func (c *Client) FindConversationLike(ctx context.Context, fragment string, excludeGroups bool) (*ConversationRow, error) {
	q := c.pg.From("conversations").
		Select("*", "", false).
		Eq("channel", c.channel).
		Ilike("contact_identifier", "%"+fragment+"%")
	if excludeGroups {
		// Not() rejects compound operators like not.ilike; route the
		// exclusion through an and() group instead.
		q = q.And("contact_identifier.not.ilike.%"+GroupSuffix, "")
	}
	data, _, err := q.Limit(1, "").ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("find conversation like", err)
	}
	return firstConversation(data, "find conversation like")
}

// ListConversations returns conversations whose name or identifier contains
// the query (empty query matches all), sorted by last activity descending or
// by name ascending, with offset pagination.
func (c *Client) ListConversations(ctx context.Context, query string, sortByName bool, limit, offset int) ([]ConversationRow, error) {
	q := c.pg.From("conversations").
		Select("*", "", false).
		Eq("channel", c.channel)
	if query != "" {
		q = q.Or(nameOrIdentifierFilter(query), "")
	}
	if sortByName {
		q = q.Order("contact_name", &postgrest.OrderOpts{Ascending: true, NullsFirst: false})
	} else {
		q = q.Order("last_message_at", &postgrest.OrderOpts{Ascending: false, NullsFirst: false})
	}
	data, _, err := q.Range(offset, offset+limit-1, "").ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("list conversations", err)
	}
	var rows []ConversationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, remoteErr("list conversations: decode", err)
	}
	return rows, nil
}

// ConversationsWithContact returns conversations whose identifier equals
// jid, most recently active first.
func (c *Client) ConversationsWithContact(ctx context.Context, jid string, limit, offset int) ([]ConversationRow, error) {
	data, _, err := c.pg.From("conversations").
		Select("*", "", false).
		Eq("channel", c.channel).
		Eq("contact_identifier", jid).
		Order("last_message_at", &postgrest.OrderOpts{Ascending: false, NullsFirst: false}).
		Range(offset, offset+limit-1, "").
		ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("conversations with contact", err)
	}
	var rows []ConversationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, remoteErr("conversations with contact: decode", err)
	}
	return rows, nil
}

// SearchDirectConversations returns non-group conversations whose name or
// identifier contains the query, sorted by name, capped at limit.
func (c *Client) SearchDirectConversations(ctx context.Context, query string, limit int) ([]ConversationRow, error) {
	data, _, err := c.pg.From("conversations").
		Select("contact_identifier,contact_name", "", false).
		Eq("channel", c.channel).
		And("contact_identifier.not.ilike.%"+GroupSuffix, "").
		Or(nameOrIdentifierFilter(query), "").
		Order("contact_name", &postgrest.OrderOpts{Ascending: true, NullsFirst: false}).
		Limit(limit, "").
		ExecuteWithContext(ctx)
	if err != nil {
		return nil, remoteErr("search direct conversations", err)
	}
	var rows []ConversationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, remoteErr("search direct conversations: decode", err)
	}
	return rows, nil
}

// CreateConversation inserts a new active conversation for jid with no
// display name and returns its id.
func (c *Client) CreateConversation(ctx context.Context, jid string) (string, error) {
	row := ConversationRow{
		Channel:           c.channel,
		ContactIdentifier: jid,
		Status:            "active",
	}
	data, _, err := c.pg.From("conversations").
		Insert(row, false, "", "representation", "").
		ExecuteWithContext(ctx)
	if err != nil {
		return "", remoteErr("create conversation", err)
	}
	var rows []ConversationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return "", remoteErr("create conversation: decode", err)
	}
	if len(rows) == 0 {
		return "", remoteErr("create conversation", errors.New("no row returned"))
	}
	return rows[0].ID, nil
}

// UpdateConversationName sets the display name of the conversation matching jid.
func (c *Client) UpdateConversationName(ctx context.Context, jid, name string) error {
	_, _, err := c.pg.From("conversations").
		Update(map[string]any{"contact_name": name}, "", "").
		Eq("contact_identifier", jid).
		Eq("channel", c.channel).
		ExecuteWithContext(ctx)
	if err != nil {
		return remoteErr("update conversation name", err)
	}
	return nil
}

// TouchConversation bumps a conversation's last_message_at.
func (c *Client) TouchConversation(ctx context.Context, id string, ts time.Time) error {
	_, _, err := c.pg.From("conversations").
		Update(map[string]any{"last_message_at": ts.Format(time.RFC3339Nano)}, "", "").
		Eq("id", id).
		ExecuteWithContext(ctx)
	if err != nil {
		return remoteErr("touch conversation", err)
	}
	return nil
}

func nameOrIdentifierFilter(query string) string {
	return fmt.Sprintf("contact_name.ilike.%%%s%%,contact_identifier.ilike.%%%s%%", query, query)
}

func firstConversation(data []byte, op string) (*ConversationRow, error) {
	var rows []ConversationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, remoteErr(op+": decode", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
