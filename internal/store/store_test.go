package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ecostadev/wamcp/internal/config"
)

// recorded captures the last request the client sent.
type recorded struct {
	method string
	path   string
	query  url.Values
	body   []byte
}

func testClient(t *testing.T, respond string, rec *recorded) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.Query()
		if r.Body != nil {
			rec.body, _ = io.ReadAll(r.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respond))
	}))
	t.Cleanup(srv.Close)

	c, err := New(&config.Config{
		SupabaseURL: srv.URL,
		SupabaseKey: "test-key",
		Channel:     "whatsapp",
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestListMessagesQueryShape(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	after := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := c.ListMessages(context.Background(), MessageFilter{
		After:   &after,
		Before:  &before,
		Sender:  "123@s.whatsapp.net",
		ChatJID: "456@s.whatsapp.net",
		Query:   "hello",
		Limit:   10,
	})
	if err != nil {
		t.Fatal(err)
	}

	if rec.path != "/rest/v1/messages" {
		t.Errorf("path = %q, want /rest/v1/messages", rec.path)
	}
	if got := rec.query.Get("channel"); got != "eq.whatsapp" {
		t.Errorf("channel filter = %q", got)
	}
	if got := rec.query.Get("sender"); got != "eq.123@s.whatsapp.net" {
		t.Errorf("sender filter = %q", got)
	}
	if got := rec.query.Get("conversations.contact_identifier"); got != "eq.456@s.whatsapp.net" {
		t.Errorf("chat filter = %q", got)
	}
	if got := rec.query.Get("body"); got != "ilike.%hello%" {
		t.Errorf("body filter = %q", got)
	}
	// Both time bounds travel in one and() group.
	if got := rec.query.Get("or"); !strings.Contains(got, "created_at.gte.") || !strings.Contains(got, "created_at.lte.") {
		t.Errorf("time bounds = %q, want gte and lte in one group", got)
	}
	if got := rec.query.Get("order"); !strings.Contains(got, "created_at.desc") {
		t.Errorf("order = %q, want created_at.desc", got)
	}
	if got := rec.query.Get("select"); !strings.Contains(got, "conversations!inner") {
		t.Errorf("select = %q, want conversation join", got)
	}
}

func TestListMessagesSingleBound(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	after := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := c.ListMessages(context.Background(), MessageFilter{After: &after}); err != nil {
		t.Fatal(err)
	}

	if got := rec.query.Get("created_at"); !strings.HasPrefix(got, "gte.") {
		t.Errorf("created_at filter = %q, want gte. prefix", got)
	}
	if rec.query.Get("or") != "" {
		t.Errorf("unexpected or group for a single bound: %q", rec.query.Get("or"))
	}
}

func TestListMessagesPagination(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	// Second page of 10 translates to offset=10, limit=10.
	if _, err := c.ListMessages(context.Background(), MessageFilter{Limit: 10, Offset: 10}); err != nil {
		t.Fatal(err)
	}
	if got := rec.query.Get("offset"); got != "10" {
		t.Errorf("offset = %q, want 10", got)
	}
	if got := rec.query.Get("limit"); got != "10" {
		t.Errorf("limit = %q, want 10", got)
	}
}

func TestListConversationsPagination(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	if _, err := c.ListConversations(context.Background(), "", false, 5, 15); err != nil {
		t.Fatal(err)
	}
	if got := rec.query.Get("offset"); got != "15" {
		t.Errorf("offset = %q, want 15", got)
	}
	if got := rec.query.Get("limit"); got != "5" {
		t.Errorf("limit = %q, want 5", got)
	}
}

func TestListMessagesDecodesJoinedRows(t *testing.T) {
	payload := `[{
		"id": "m-1",
		"conversation_id": "c-1",
		"channel": "whatsapp",
		"direction": "outbound",
		"sender": "me",
		"recipient": "123@s.whatsapp.net",
		"body": "hello",
		"created_at": "2024-03-01T10:30:00+00:00",
		"updated_at": "2024-03-01T10:30:00+00:00",
		"metadata": {"media_type": "image"},
		"conversations": {"contact_identifier": "123@s.whatsapp.net", "contact_name": "Alice"}
	}]`
	var rec recorded
	c := testClient(t, payload, &rec)

	rows, err := c.ListMessages(context.Background(), MessageFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.ID != "m-1" || row.Direction != DirectionOutbound {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.Body == nil || *row.Body != "hello" {
		t.Errorf("body = %v", row.Body)
	}
	if !row.CreatedAt.Equal(time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v", row.CreatedAt)
	}
	if row.Conversation == nil || row.Conversation.ContactName == nil || *row.Conversation.ContactName != "Alice" {
		t.Errorf("joined conversation = %+v", row.Conversation)
	}
	if got, _ := row.Metadata["media_type"].(string); got != "image" {
		t.Errorf("metadata media_type = %q", got)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	_, err := c.GetMessage(context.Background(), "missing-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if got := rec.query.Get("id"); got != "eq.missing-id" {
		t.Errorf("id filter = %q", got)
	}
}

func TestMessagesBeforeAndAfterBounds(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	if _, err := c.MessagesBefore(context.Background(), "c-1", ts, 5); err != nil {
		t.Fatal(err)
	}
	if got := rec.query.Get("created_at"); !strings.HasPrefix(got, "lt.") {
		t.Errorf("before bound = %q, want strict lt.", got)
	}
	if got := rec.query.Get("order"); !strings.Contains(got, "created_at.desc") {
		t.Errorf("before order = %q", got)
	}

	if _, err := c.MessagesAfter(context.Background(), "c-1", ts, 5); err != nil {
		t.Fatal(err)
	}
	if got := rec.query.Get("created_at"); !strings.HasPrefix(got, "gt.") {
		t.Errorf("after bound = %q, want strict gt.", got)
	}
	if got := rec.query.Get("order"); !strings.Contains(got, "created_at.asc") {
		t.Errorf("after order = %q", got)
	}
	if got := rec.query.Get("conversation_id"); got != "eq.c-1" {
		t.Errorf("conversation filter = %q", got)
	}
}

func TestInsertMessageStampsChannel(t *testing.T) {
	respond := `[{
		"id": "m-9",
		"conversation_id": "c-1",
		"channel": "whatsapp",
		"direction": "inbound",
		"sender": "123@s.whatsapp.net",
		"recipient": "me",
		"created_at": "2024-03-01T10:30:00Z",
		"updated_at": "2024-03-01T10:30:00Z"
	}]`
	var rec recorded
	c := testClient(t, respond, &rec)

	body := "hi"
	row := &MessageRow{
		ConversationID: "c-1",
		Direction:      DirectionInbound,
		Sender:         "123@s.whatsapp.net",
		Recipient:      "me",
		Body:           &body,
		CreatedAt:      time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		Topic:          "chat",
		Extension:      "text",
	}
	id, err := c.InsertMessage(context.Background(), row)
	if err != nil {
		t.Fatal(err)
	}
	if id != "m-9" {
		t.Errorf("id = %q, want m-9", id)
	}
	if rec.method != http.MethodPost {
		t.Errorf("method = %q, want POST", rec.method)
	}

	var sent MessageRow
	if err := json.Unmarshal(rec.body, &sent); err != nil {
		t.Fatalf("request body is not a message row: %v\n%s", err, rec.body)
	}
	if sent.Channel != "whatsapp" {
		t.Errorf("channel = %q, want whatsapp stamped by the client", sent.Channel)
	}
	if sent.Topic != "chat" || sent.Extension != "text" {
		t.Errorf("topic/extension = %q/%q", sent.Topic, sent.Extension)
	}
}

func TestCreateConversation(t *testing.T) {
	respond := `[{"id": "c-7", "channel": "whatsapp", "contact_identifier": "123@s.whatsapp.net", "status": "active"}]`
	var rec recorded
	c := testClient(t, respond, &rec)

	id, err := c.CreateConversation(context.Background(), "123@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if id != "c-7" {
		t.Errorf("id = %q, want c-7", id)
	}
	if rec.method != http.MethodPost || rec.path != "/rest/v1/conversations" {
		t.Errorf("request = %s %s", rec.method, rec.path)
	}

	var sent ConversationRow
	if err := json.Unmarshal(rec.body, &sent); err != nil {
		t.Fatalf("request body: %v\n%s", err, rec.body)
	}
	if sent.Status != "active" || sent.Channel != "whatsapp" {
		t.Errorf("new conversation = %+v, want active whatsapp row", sent)
	}
	if sent.ContactName != nil {
		t.Errorf("contact name = %v, want unset on creation", sent.ContactName)
	}
}

func TestFindConversationMissing(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	row, err := c.FindConversation(context.Background(), "999@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if row != nil {
		t.Errorf("got %+v, want nil for no match", row)
	}
	if got := rec.query.Get("contact_identifier"); got != "eq.999@s.whatsapp.net" {
		t.Errorf("identifier filter = %q", got)
	}
}

func TestFindConversationLikeExcludesGroups(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	if _, err := c.FindConversationLike(context.Background(), "5512345", true); err != nil {
		t.Fatal(err)
	}
	if got := rec.query.Get("contact_identifier"); got != "ilike.%5512345%" {
		t.Errorf("identifier filter = %q", got)
	}
	if got := rec.query.Get("and"); !strings.Contains(got, "contact_identifier.not.ilike.%@g.us") {
		t.Errorf("group exclusion = %q", got)
	}
}

func TestSearchDirectConversationsExcludesGroups(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	if _, err := c.SearchDirectConversations(context.Background(), "ali", 50); err != nil {
		t.Fatal(err)
	}
	if got := rec.query.Get("and"); !strings.Contains(got, "contact_identifier.not.ilike.%@g.us") {
		t.Errorf("group exclusion = %q", got)
	}
	if got := rec.query.Get("or"); !strings.Contains(got, "contact_name.ilike.%ali%") ||
		!strings.Contains(got, "contact_identifier.ilike.%ali%") {
		t.Errorf("or filter = %q", got)
	}
	if got := rec.query.Get("order"); !strings.Contains(got, "contact_name.asc") {
		t.Errorf("order = %q", got)
	}
}

func TestUpdateConversationName(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	if err := c.UpdateConversationName(context.Background(), "123@s.whatsapp.net", "Alice"); err != nil {
		t.Fatal(err)
	}
	if rec.method != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", rec.method)
	}
	if got := rec.query.Get("contact_identifier"); got != "eq.123@s.whatsapp.net" {
		t.Errorf("identifier filter = %q", got)
	}
	if !strings.Contains(string(rec.body), `"contact_name":"Alice"`) {
		t.Errorf("body = %s", rec.body)
	}
}

func TestTouchConversation(t *testing.T) {
	var rec recorded
	c := testClient(t, "[]", &rec)

	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	if err := c.TouchConversation(context.Background(), "c-1", ts); err != nil {
		t.Fatal(err)
	}
	if rec.method != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", rec.method)
	}
	if got := rec.query.Get("id"); got != "eq.c-1" {
		t.Errorf("id filter = %q", got)
	}
	if !strings.Contains(string(rec.body), "last_message_at") {
		t.Errorf("body = %s", rec.body)
	}
}

func TestRemoteFailureIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c, err := New(&config.Config{SupabaseURL: srv.URL, SupabaseKey: "bad-key", Channel: "whatsapp"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.FindConversation(context.Background(), "123@s.whatsapp.net")
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Errorf("err = %v, want *RemoteError", err)
	}
}

func TestAuthHeaders(t *testing.T) {
	var apikey, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apikey = r.Header.Get("apikey")
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)

	c, err := New(&config.Config{SupabaseURL: srv.URL, SupabaseKey: "service-key", Channel: "whatsapp"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.FindConversation(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}

	if apikey != "service-key" {
		t.Errorf("apikey header = %q", apikey)
	}
	if auth != "Bearer service-key" {
		t.Errorf("authorization header = %q", auth)
	}
}
