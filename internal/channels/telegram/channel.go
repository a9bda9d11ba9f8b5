package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
	"github.com/nextlevelbuilder/relaychat/internal/channels"
	"github.com/nextlevelbuilder/relaychat/internal/config"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
)

const channelName = "telegram"

// maxMessageRunes is Telegram's limit for one text message.
const maxMessageRunes = 4096

// CommandRunner executes operator commands. *admin.Handler satisfies it.
type CommandRunner interface {
	Execute(ctx context.Context, scope sessions.Identity, name string, args []string) (string, error)
}

var _ channels.TypingChannel = (*Channel)(nil)

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	config     config.TelegramConfig
	commands   CommandRunner
	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when polling goroutine exits
}

// New creates a new Telegram channel from config. commands may be nil, in
// which case operator commands are ignored.
func New(cfg config.TelegramConfig, msgBus bus.MessageRouter, commands CommandRunner) (*Channel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel(channelName, msgBus, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
		commands:    commands,
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	// Stop() cancels this context to cleanly shut down long polling.
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username(), "allow_list", c.HasAllowList())

	if c.commands != nil {
		go c.syncMenuCommands(pollCtx)
	}

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

// syncMenuCommands registers the operator commands, retrying a few times.
func (c *Channel) syncMenuCommands(ctx context.Context) {
	for attempt := 1; attempt <= 3; attempt++ {
		err := c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: MenuCommands()})
		if err == nil {
			slog.Info("telegram menu commands synced")
			return
		}
		slog.Warn("failed to sync telegram menu commands", "error", err, "attempt", attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt*5) * time.Second):
		}
	}
}

// Stop shuts down the Telegram bot by cancelling the long polling context
// and waiting for the polling goroutine to exit.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}

	// Telegram releases the getUpdates lock only after the poller exits.
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers text and voice attachments to msg.ChatID (and topic).
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}
	threadID := resolveThreadIDForSend(msg.TopicID)

	for _, media := range msg.Media {
		if !strings.HasPrefix(media.ContentType, "audio/") {
			slog.Debug("telegram: unsupported outbound media skipped", "content_type", media.ContentType)
			continue
		}
		if err := c.sendVoice(ctx, chatID, threadID, media); err != nil {
			return err
		}
	}

	for _, chunk := range splitMessage(msg.Content, maxMessageRunes) {
		params := tu.Message(tu.ID(chatID), chunk)
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func (c *Channel) sendVoice(ctx context.Context, chatID int64, threadID int, media bus.MediaAttachment) error {
	f, err := os.Open(media.URL)
	if err != nil {
		return fmt.Errorf("open voice file: %w", err)
	}
	defer f.Close()

	params := tu.Voice(tu.ID(chatID), tu.File(f))
	if threadID > 0 {
		params.MessageThreadID = threadID
	}
	if media.Caption != "" {
		params.Caption = media.Caption
	}
	if _, err := c.bot.SendVoice(ctx, params); err != nil {
		return fmt.Errorf("send telegram voice: %w", err)
	}
	return nil
}

// SendTyping shows the typing indicator in a chat or forum topic.
func (c *Channel) SendTyping(ctx context.Context, chatIDStr string, topicID int) error {
	chatID, err := parseChatID(chatIDStr)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatIDStr, err)
	}
	action := tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)
	if topicID > 0 {
		action.MessageThreadID = topicID
	}
	return c.bot.SendChatAction(ctx, action)
}

// parseChatID converts a string chat ID to int64.
func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}

// telegramGeneralTopicID is the fixed topic ID for the "General" topic in forum supergroups.
const telegramGeneralTopicID = 1

// resolveThreadIDForSend returns the thread ID for Telegram send calls.
// General topic (1) must be omitted; Telegram rejects it with "thread not found".
func resolveThreadIDForSend(threadID int) int {
	if threadID == telegramGeneralTopicID {
		return 0
	}
	return threadID
}

// splitMessage cuts s into chunks of at most limit runes, preferring newline boundaries.
func splitMessage(s string, limit int) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	runes := []rune(s)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(out, string(runes))
}
