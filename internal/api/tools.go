package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ecostadev/wamcp/internal/chat"
	"github.com/ecostadev/wamcp/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ToolService exposes the message store façade to the tool-invocation layer,
// one route per tool. It owns the two-tier error policy: reads degrade to
// empty values or sentinel strings, writes report failure as null/false, and
// only a missing context anchor surfaces as a hard failure.
type ToolService struct {
	chat   *chat.Service
	logger *zap.Logger
}

// NewToolService creates the tool endpoints over the façade.
func NewToolService(c *chat.Service, logger *zap.Logger) *ToolService {
	return &ToolService{chat: c, logger: logger}
}

// Register mounts all tool routes on the engine.
func (t *ToolService) Register(r *gin.Engine) {
	r.Use(RequestID())

	g := r.Group("/api")
	g.GET("/messages", t.listMessages)
	g.POST("/messages", t.saveMessage)
	g.GET("/message_context", t.messageContext)
	g.GET("/chats", t.listChats)
	g.GET("/chat", t.getChat)
	g.GET("/direct_chat", t.directChatByContact)
	g.GET("/contacts", t.searchContacts)
	g.GET("/contact_chats", t.contactChats)
	g.GET("/last_interaction", t.lastInteraction)
	g.POST("/contact_name", t.updateContactName)
}

// RequestID assigns a request id for log correlation, honoring an existing
// X-Request-ID header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func (t *ToolService) listMessages(c *gin.Context) {
	q := chat.ListMessagesQuery{
		Sender:         c.Query("sender"),
		ChatJID:        c.Query("chat_jid"),
		Query:          c.Query("query"),
		Limit:          intQuery(c, "limit", 20),
		Page:           intQuery(c, "page", 0),
		IncludeContext: boolQuery(c, "include_context", true),
		ContextBefore:  intQuery(c, "context_before", 1),
		ContextAfter:   intQuery(c, "context_after", 1),
	}

	var err error
	if q.After, err = timeQuery(c, "after"); err != nil {
		c.String(http.StatusBadRequest, "Error: %v", err)
		return
	}
	if q.Before, err = timeQuery(c, "before"); err != nil {
		c.String(http.StatusBadRequest, "Error: %v", err)
		return
	}

	text, err := t.chat.ListMessages(c.Request.Context(), q)
	if err != nil {
		t.logger.Error("list messages failed", zap.Error(err))
		c.String(http.StatusOK, "Error: %v", err)
		return
	}
	c.String(http.StatusOK, text)
}

func (t *ToolService) messageContext(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	mc, err := t.chat.MessageContext(c.Request.Context(), id,
		intQuery(c, "before", 5), intQuery(c, "after", 5))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		t.logger.Error("message context failed", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mc)
}

func (t *ToolService) listChats(c *gin.Context) {
	chats, err := t.chat.ListChats(c.Request.Context(), chat.ListChatsQuery{
		Query:              c.Query("query"),
		Limit:              intQuery(c, "limit", 20),
		Page:               intQuery(c, "page", 0),
		IncludeLastMessage: boolQuery(c, "include_last_message", true),
		SortBy:             c.DefaultQuery("sort_by", "last_active"),
	})
	if err != nil {
		t.logger.Error("list chats failed", zap.Error(err))
		chats = nil
	}
	if chats == nil {
		chats = []chat.Chat{}
	}
	c.JSON(http.StatusOK, chats)
}

func (t *ToolService) getChat(c *gin.Context) {
	ch, err := t.chat.GetChat(c.Request.Context(), c.Query("jid"),
		boolQuery(c, "include_last_message", true))
	if err != nil {
		t.logger.Error("get chat failed", zap.String("jid", c.Query("jid")), zap.Error(err))
		ch = nil
	}
	c.JSON(http.StatusOK, ch)
}

func (t *ToolService) directChatByContact(c *gin.Context) {
	ch, err := t.chat.DirectChatByContact(c.Request.Context(), c.Query("phone"))
	if err != nil {
		t.logger.Error("direct chat lookup failed", zap.String("phone", c.Query("phone")), zap.Error(err))
		ch = nil
	}
	c.JSON(http.StatusOK, ch)
}

func (t *ToolService) searchContacts(c *gin.Context) {
	contacts, err := t.chat.SearchContacts(c.Request.Context(), c.Query("query"))
	if err != nil {
		t.logger.Error("search contacts failed", zap.Error(err))
		contacts = nil
	}
	if contacts == nil {
		contacts = []chat.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

func (t *ToolService) contactChats(c *gin.Context) {
	chats, err := t.chat.ContactChats(c.Request.Context(), c.Query("jid"),
		intQuery(c, "limit", 20), intQuery(c, "page", 0))
	if err != nil {
		t.logger.Error("contact chats failed", zap.String("jid", c.Query("jid")), zap.Error(err))
		chats = nil
	}
	if chats == nil {
		chats = []chat.Chat{}
	}
	c.JSON(http.StatusOK, chats)
}

func (t *ToolService) lastInteraction(c *gin.Context) {
	text, err := t.chat.LastInteraction(c.Request.Context(), c.Query("jid"))
	if err != nil {
		t.logger.Error("last interaction failed", zap.String("jid", c.Query("jid")), zap.Error(err))
		text = ""
	}
	c.String(http.StatusOK, text)
}

type saveMessageRequest struct {
	ConversationJID string `json:"conversation_jid"`
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	Body            string `json:"body"`
	Direction       string `json:"direction"`
	ExternalID      string `json:"external_id"`
	MediaType       string `json:"media_type"`
	Timestamp       string `json:"timestamp"`
}

func (t *ToolService) saveMessage(c *gin.Context) {
	var req saveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message_id": nil, "error": err.Error()})
		return
	}

	p := chat.SaveMessageParams{
		ConversationJID: req.ConversationJID,
		Sender:          req.Sender,
		Recipient:       req.Recipient,
		Body:            req.Body,
		Direction:       req.Direction,
		ExternalID:      req.ExternalID,
		Media:           chat.MediaKind(req.MediaType),
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message_id": nil, "error": "invalid timestamp: " + err.Error()})
			return
		}
		p.Timestamp = ts
	}

	id, err := t.chat.SaveMessage(c.Request.Context(), p)
	if errors.Is(err, chat.ErrInvalidDirection) {
		c.JSON(http.StatusBadRequest, gin.H{"message_id": nil, "error": err.Error()})
		return
	}
	if err != nil {
		t.logger.Error("save message failed", zap.String("jid", req.ConversationJID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"message_id": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": id})
}

type updateContactNameRequest struct {
	JID  string `json:"jid"`
	Name string `json:"name"`
}

func (t *ToolService) updateContactName(c *gin.Context) {
	var req updateContactNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := t.chat.UpdateContactName(c.Request.Context(), req.JID, req.Name); err != nil {
		t.logger.Error("update contact name failed", zap.String("jid", req.JID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolQuery(c *gin.Context, key string, def bool) bool {
	v := c.Query(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %q timestamp: %v", key, err)
	}
	return &ts, nil
}
