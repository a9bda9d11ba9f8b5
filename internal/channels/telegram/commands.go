package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/relaychat/internal/admin"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
)

// MenuCommands returns the command list registered with Telegram's "/" menu.
func MenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "chat", Description: "Enable, disable or reset this conversation"},
		{Command: "role", Description: "Set the primary role here"},
		{Command: "rolex", Description: "Set or toggle the secondary role here"},
		{Command: "grole", Description: "Set the topic or group role"},
		{Command: "grolex", Description: "Secondary role for the topic or group"},
		{Command: "roleswitch", Description: "Switch the global default role"},
		{Command: "keys", Description: "Manage the API key pool"},
		{Command: "model", Description: "Show or set the model"},
		{Command: "voice", Description: "Toggle voice replies"},
		{Command: "status", Description: "Show settings for this conversation"},
		{Command: "help", Description: "List commands"},
	}
}

// parseCommand splits "/name@bot arg1 arg2" into its name and arguments.
// Commands addressed to another bot are rejected.
func parseCommand(text, botUsername string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		if botUsername != "" && !strings.EqualFold(target, botUsername) {
			return "", nil, false
		}
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

// commandScope is the conversation a command issued from message applies to.
func commandScope(message *telego.Message) sessions.Identity {
	chatID := fmt.Sprintf("%d", message.Chat.ID)
	if isGroupChat(message.Chat) {
		return sessions.GroupTopic(chatID, topicOf(message))
	}
	return sessions.Private(chatID)
}

// commandReply turns a command result into the text sent back to the operator.
func commandReply(reply string, err error) string {
	var usageErr *admin.UsageError
	switch {
	case err == nil:
		return reply
	case errors.As(err, &usageErr):
		return "Usage: " + usageErr.Usage
	case errors.Is(err, admin.ErrUnknownCommand):
		return "Unknown command. Send /help for the list."
	default:
		return "Error: " + err.Error()
	}
}

func (c *Channel) handleCommand(ctx context.Context, message *telego.Message, text string) {
	if c.commands == nil {
		return
	}
	name, args, ok := parseCommand(text, c.bot.Username())
	if !ok {
		return
	}
	if name == "start" {
		return
	}

	scope := commandScope(message)
	reply, err := c.commands.Execute(ctx, scope, name, args)
	if err != nil {
		slog.Info("telegram command failed", "command", name, "identity", scope.String(), "error", err)
	}

	msg := tu.Message(tu.ID(message.Chat.ID), commandReply(reply, err))
	if thread := resolveThreadIDForSend(topicOf(message)); thread > 0 {
		msg.MessageThreadID = thread
	}
	if _, err := c.bot.SendMessage(ctx, msg); err != nil {
		slog.Warn("telegram command reply failed", "command", name, "error", err)
	}
}
