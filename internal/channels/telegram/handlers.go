package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
	"github.com/nextlevelbuilder/relaychat/internal/channels"
)

// reactionPrefix marks relayed reaction notices, which are not conversation.
const reactionPrefix = "Reacted to this message with"

// handleMessage processes an incoming Telegram message.
func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	if isServiceMessage(message) {
		return
	}
	user := message.From
	if user == nil || user.IsBot {
		return
	}

	text := messageText(message)
	if strings.HasPrefix(text, "/") {
		if c.isOwner(user) {
			c.handleCommand(ctx, message, text)
		}
		return
	}

	inbound, ok := inboundFromMessage(message)
	if !ok {
		return
	}

	slog.Debug("telegram message received",
		"chat_id", inbound.ChatID,
		"topic_id", inbound.TopicID,
		"sender_id", inbound.SenderID,
		"peer_kind", inbound.PeerKind,
		"preview", channels.Truncate(inbound.Content, 50),
	)
	c.HandleMessage(inbound)
}

func (c *Channel) isOwner(user *telego.User) bool {
	return c.config.OwnerID != "" && fmt.Sprintf("%d", user.ID) == c.config.OwnerID
}

// inboundFromMessage converts a Telegram message into an inbound bus
// message. ok is false for messages that carry no conversational text.
func inboundFromMessage(message *telego.Message) (bus.InboundMessage, bool) {
	if message.From == nil {
		return bus.InboundMessage{}, false
	}
	text := messageText(message)
	if strings.TrimSpace(text) == "" || strings.HasPrefix(text, reactionPrefix) {
		return bus.InboundMessage{}, false
	}

	msg := bus.InboundMessage{
		Channel:    channelName,
		SenderID:   senderID(message.From),
		SenderName: senderLabel(message.From),
		Content:    text,
		Metadata: map[string]string{
			"message_id": fmt.Sprintf("%d", message.MessageID),
			"received":   time.Unix(message.Date, 0).UTC().Format(time.RFC3339),
		},
	}

	if isGroupChat(message.Chat) {
		msg.PeerKind = bus.PeerGroup
		msg.ChatID = fmt.Sprintf("%d", message.Chat.ID)
		msg.TopicID = topicOf(message)
	} else {
		msg.PeerKind = bus.PeerDirect
		msg.ChatID = fmt.Sprintf("%d", message.Chat.ID)
	}
	return msg, true
}

// topicOf returns the forum topic a group message belongs to, or 0 when the
// chat is not a forum or the message sits in the main topic.
func topicOf(message *telego.Message) int {
	if !message.Chat.IsForum || !message.IsTopicMessage {
		return 0
	}
	return message.MessageThreadID
}

func isGroupChat(chat telego.Chat) bool {
	return chat.Type == "group" || chat.Type == "supergroup"
}

func messageText(message *telego.Message) string {
	if message.Text != "" {
		return message.Text
	}
	return message.Caption
}

// senderID is "id|username" so allow lists can match either form.
func senderID(user *telego.User) string {
	id := fmt.Sprintf("%d", user.ID)
	if user.Username != "" {
		id = id + "|" + user.Username
	}
	return id
}

// senderLabel is the speaker name used in history lines.
func senderLabel(user *telego.User) string {
	if name := strings.TrimSpace(user.FirstName); name != "" {
		return name
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return ""
}

// isServiceMessage reports whether msg is a Telegram service message (member
// added or removed, title changed, pinned) rather than something a user sent.
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}
	if msg.Photo != nil || msg.Audio != nil || msg.Video != nil ||
		msg.Document != nil || msg.Voice != nil || msg.VideoNote != nil ||
		msg.Sticker != nil || msg.Animation != nil || msg.Contact != nil ||
		msg.Location != nil || msg.Venue != nil || msg.Poll != nil {
		return false
	}
	return true
}
