package chat

import (
	"context"
	"fmt"
	"strings"
)

// NoMessages is returned when a formatted listing has nothing to show.
const NoMessages = "No messages to display."

const timeLayout = "2006-01-02 15:04:05"

// FormatMessage renders a single message line. Outgoing messages show "Me"
// instead of a resolved sender name.
func (s *Service) FormatMessage(ctx context.Context, m Message, showChatInfo bool) string {
	var b strings.Builder

	if showChatInfo && m.ChatName != "" {
		fmt.Fprintf(&b, "[%s] Chat: %s ", m.Timestamp.Format(timeLayout), m.ChatName)
	} else {
		fmt.Fprintf(&b, "[%s] ", m.Timestamp.Format(timeLayout))
	}

	prefix := ""
	if m.Media != "" {
		prefix = fmt.Sprintf("[%s - Message ID: %s - Chat JID: %s] ", m.Media, m.ID, m.ChatJID)
	}

	sender := "Me"
	if !m.FromMe {
		sender = s.SenderName(ctx, m.Sender)
	}
	fmt.Fprintf(&b, "From: %s: %s%s\n", sender, prefix, m.Body)
	return b.String()
}

// FormatMessages renders messages in input order, or the NoMessages sentinel
// when the list is empty.
func (s *Service) FormatMessages(ctx context.Context, msgs []Message, showChatInfo bool) string {
	if len(msgs) == 0 {
		return NoMessages
	}
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(s.FormatMessage(ctx, m, showChatInfo))
	}
	return b.String()
}
