// Package notify reports dispatch failures to the operator's chat.
package notify

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
)

// Publisher is the outbound half of the message bus.
type Publisher interface {
	PublishOutbound(msg bus.OutboundMessage)
}

// Owner sends diagnostics to a fixed chat. With no chat configured it only logs.
type Owner struct {
	out     Publisher
	channel string
	chatID  string
}

// NewOwner returns a notifier that publishes to chatID on channel.
func NewOwner(out Publisher, channel, chatID string) *Owner {
	return &Owner{out: out, channel: channel, chatID: chatID}
}

// Notify logs text and forwards it to the operator chat.
func (o *Owner) Notify(ctx context.Context, text string) {
	slog.Warn("operator notice", "text", text)
	if o.chatID == "" || o.out == nil || ctx.Err() != nil {
		return
	}
	o.out.PublishOutbound(bus.OutboundMessage{
		Channel: o.channel,
		ChatID:  o.chatID,
		Content: text,
		Metadata: map[string]string{
			"kind": "operator_notice",
		},
	})
}
