package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
)

// Manager manages all registered channels, handling their lifecycle and
// routing outbound messages to the correct channel.
type Manager struct {
	channels       map[string]Channel
	bus            bus.MessageRouter
	limiter        *SendLimiter
	defaultChannel string
	dispatchCancel context.CancelFunc
	dispatchDone   chan struct{}
	mu             sync.RWMutex
}

// NewManager creates a new channel manager. Messages addressed without a
// channel name go to defaultChannel. limiter may be nil.
func NewManager(msgBus bus.MessageRouter, defaultChannel string, limiter *SendLimiter) *Manager {
	return &Manager{
		channels:       make(map[string]Channel),
		bus:            msgBus,
		limiter:        limiter,
		defaultChannel: defaultChannel,
	}
}

// StartAll starts all registered channels and the outbound dispatch loop.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchCancel = cancel
	m.dispatchDone = make(chan struct{})
	go m.dispatchOutbound(dispatchCtx, m.dispatchDone)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
	}

	slog.Info("all channels started")
	return nil
}

// StopAll gracefully stops all channels and the outbound dispatch loop.
func (m *Manager) StopAll(ctx context.Context) error {
	slog.Info("stopping all channels")

	m.mu.Lock()
	cancel, done := m.dispatchCancel, m.dispatchDone
	m.dispatchCancel, m.dispatchDone = nil, nil
	m.mu.Unlock()

	// the dispatcher takes the read lock in Send, so wait for it unlocked
	if cancel != nil {
		cancel()
		<-done
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, channel := range m.channels {
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}

	slog.Info("all channels stopped")
	return nil
}

// dispatchOutbound consumes outbound messages from the bus and routes them.
func (m *Manager) dispatchOutbound(ctx context.Context, done chan struct{}) {
	defer close(done)
	slog.Debug("outbound dispatcher started")
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			slog.Debug("outbound dispatcher stopped")
			return
		}
		if err := m.Send(ctx, msg); err != nil {
			slog.Error("error sending message to channel", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}

// Send paces and delivers msg on its channel, then removes any temporary media files.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	defer cleanupMedia(msg)

	if msg.Channel == "" {
		msg.Channel = m.defaultChannel
	}
	channel, ok := m.GetChannel(msg.Channel)
	if !ok {
		return fmt.Errorf("channel %s not found", msg.Channel)
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx, msg.Channel+":"+msg.ChatID); err != nil {
			return err
		}
	}
	return channel.Send(ctx, msg)
}

// Deliver sends msg to the chat (and topic) behind id.
func (m *Manager) Deliver(ctx context.Context, id sessions.Identity, msg bus.OutboundMessage) error {
	msg.ChatID = id.ChatID
	msg.TopicID = id.TopicID
	return m.Send(ctx, msg)
}

// Typing shows a typing indicator in id's chat when the default channel supports it.
func (m *Manager) Typing(ctx context.Context, id sessions.Identity) error {
	channel, ok := m.GetChannel(m.defaultChannel)
	if !ok {
		return fmt.Errorf("channel %s not found", m.defaultChannel)
	}
	tc, ok := channel.(TypingChannel)
	if !ok {
		return nil
	}
	return tc.SendTyping(ctx, id.ChatID, id.TopicID)
}

func cleanupMedia(msg bus.OutboundMessage) {
	for _, media := range msg.Media {
		if media.URL == "" {
			continue
		}
		if err := os.Remove(media.URL); err != nil && !os.IsNotExist(err) {
			slog.Debug("failed to clean up media file", "path", media.URL, "error", err)
		}
	}
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]bool, len(m.channels))
	for name, channel := range m.channels {
		status[name] = channel.IsRunning()
	}
	return status
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}
