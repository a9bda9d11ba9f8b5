package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
	"github.com/nextlevelbuilder/relaychat/internal/channels"
	"github.com/nextlevelbuilder/relaychat/internal/dispatch"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
)

// enqueuer is the part of dispatch.Queue the consumer feeds.
type enqueuer interface {
	Enqueue(ctx context.Context, id sessions.Identity, msg dispatch.PendingMessage) error
}

// consumeInboundMessages moves inbound channel messages into the per-conversation
// queue until ctx is done. Enqueue never waits on generation.
func consumeInboundMessages(ctx context.Context, msgBus bus.MessageRouter, queue enqueuer) {
	slog.Info("inbound message consumer started")
	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound message consumer stopped")
			return
		}

		if msg.ChatID == "" || msg.Content == "" {
			slog.Debug("inbound: dropped message without chat or content", "channel", msg.Channel)
			continue
		}
		id := channels.IdentityOf(msg)

		pending := dispatch.PendingMessage{
			Text:   msg.Content,
			Sender: msg.SenderName,
			At:     time.Now(),
		}
		if err := queue.Enqueue(ctx, id, pending); err != nil {
			slog.Error("inbound: enqueue failed", "identity", id.String(), "error", err)
		}
	}
}
