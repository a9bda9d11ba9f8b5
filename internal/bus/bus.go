// Package bus decouples chat channels from the dispatcher with buffered in-process queues.
package bus

import (
	"context"
	"log/slog"
)

const defaultBufferSize = 256

var _ MessageRouter = (*MessageBus)(nil)

// MessageBus is a pair of buffered channels. Publishing blocks when a buffer is full.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a MessageBus. size <= 0 uses the default buffer size.
func New(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage) {
	if len(b.inbound) == cap(b.inbound) {
		slog.Warn("inbound bus full, publisher blocking", "channel", msg.Channel, "chat_id", msg.ChatID)
	}
	b.inbound <- msg
}

// ConsumeInbound waits for the next inbound message. ok is false once ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound waits for the next outbound message. ok is false once ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}
