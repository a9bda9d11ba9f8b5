// Package admin implements the operator command set shared by the Telegram
// owner commands and the CLI.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/relaychat/internal/credentials"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
	"github.com/nextlevelbuilder/relaychat/internal/settings"
)

// ErrUnknownCommand is returned by Execute for names it does not handle.
var ErrUnknownCommand = errors.New("unknown command")

// UsageError carries a usage hint for a malformed command.
type UsageError struct{ Usage string }

func (e *UsageError) Error() string { return "usage: " + e.Usage }

func usage(u string) error { return &UsageError{Usage: u} }

// Help lists the operator commands.
const Help = `Operator commands:
/chat on|off|default       enable, disable or inherit for this conversation
/chat all                  toggle "enabled for all" (private chats, or every topic of this group)
/chat del                  clear this conversation's history
/chat history [n|off]      show or set the global history limit
/role [text]               set (or clear) the primary role here
/rolex [text|r]            set, toggle or reset the secondary role here
/grole [group] [text]      set the topic role, or with "group" the group-wide role
/grolex [group] [text|r]   secondary role for the topic, or with "group" for the group
/roleswitch                switch the global default between primary and secondary
/keys [add K|set N|del N|show]  manage the API key pool
/model [name]              show or set the generation model
/voice                     toggle voice replies
/status                    show settings for this conversation`

// Handler executes operator commands against settings and the credential pool.
type Handler struct {
	Settings *settings.Service
	Pool     *credentials.Pool
	// OnKeyRemoved is called after a key leaves the pool. Optional.
	OnKeyRemoved func(key string)
}

// Execute runs command name with args in the context of scope (the conversation
// the command was issued from or targets) and returns the reply text.
func (h *Handler) Execute(ctx context.Context, scope sessions.Identity, name string, args []string) (string, error) {
	switch strings.TrimPrefix(strings.ToLower(name), "/") {
	case "chat":
		return h.chat(ctx, scope, args)
	case "role":
		return h.role(ctx, scope, args)
	case "rolex":
		return h.rolex(ctx, scope, strings.Join(args, " "), false)
	case "grole":
		return h.grole(ctx, scope, args)
	case "grolex":
		if !scope.IsGroup() {
			return "", errors.New("grolex only works in groups")
		}
		groupScope := len(args) > 0 && strings.EqualFold(args[0], "group")
		if groupScope {
			args = args[1:]
		}
		return h.rolex(ctx, scope, strings.Join(args, " "), groupScope)
	case "roleswitch":
		secondary, err := h.Settings.ToggleGlobalSecondary(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Global default role switched to %s. Chat histories not cleared.", roleKind(secondary)), nil
	case "keys":
		return h.keys(ctx, args)
	case "model":
		return h.model(ctx, args)
	case "voice":
		on, err := h.Settings.ToggleVoice(ctx)
		if err != nil {
			return "", err
		}
		return "Voice replies are now " + onOff(on) + ".", nil
	case "status":
		return h.status(ctx, scope)
	case "help":
		return Help, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

func (h *Handler) chat(ctx context.Context, scope sessions.Identity, args []string) (string, error) {
	const u = "/chat on|off|default|all|del|history [n|off]"
	if len(args) == 0 {
		return "", usage(u)
	}
	switch strings.ToLower(args[0]) {
	case "on", "off":
		on := strings.EqualFold(args[0], "on")
		if err := h.Settings.SetEnabled(ctx, scope, on); err != nil {
			return "", err
		}
		return fmt.Sprintf("Chat %s for %s.", onOff(on), scope), nil
	case "default":
		if err := h.Settings.ClearEnabled(ctx, scope); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s now follows the default switch.", scope), nil
	case "all":
		if scope.IsGroup() {
			on, err := h.Settings.ToggleGroupAll(ctx, scope.GroupKey())
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Chat is now %s for all topics of group %s.", onOff(on), scope.GroupKey()), nil
		}
		on, err := h.Settings.TogglePrivateForAll(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Chat is now %s for all private chats.", onOff(on)), nil
	case "del":
		if err := h.Settings.ResetHistory(ctx, scope); err != nil {
			return "", err
		}
		return fmt.Sprintf("Chat history deleted for %s.", scope), nil
	case "history":
		return h.historyLimit(ctx, args[1:])
	}
	return "", usage(u)
}

func (h *Handler) historyLimit(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		limit, err := h.Settings.HistoryLimit(ctx)
		if err != nil {
			return "", err
		}
		if limit == nil {
			return "No global history limit set.", nil
		}
		return fmt.Sprintf("Global history limit: last %d messages.", *limit), nil
	}
	if strings.EqualFold(args[0], "off") || args[0] == "0" {
		if err := h.Settings.SetHistoryLimit(ctx, nil); err != nil {
			return "", err
		}
		return "History limit disabled.", nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return "", usage("/chat history [n|off]")
	}
	if err := h.Settings.SetHistoryLimit(ctx, &n); err != nil {
		return "", err
	}
	return fmt.Sprintf("Global history limit set to last %d messages.", n), nil
}

func (h *Handler) role(ctx context.Context, scope sessions.Identity, args []string) (string, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if err := h.Settings.SetPrimaryRole(ctx, scope, text); err != nil {
		return "", err
	}
	if text == "" {
		return fmt.Sprintf("Role for %s reset to default.", scope), nil
	}
	return fmt.Sprintf("Custom primary role set for %s.", scope), nil
}

func (h *Handler) grole(ctx context.Context, scope sessions.Identity, args []string) (string, error) {
	if !scope.IsGroup() {
		return "", errors.New("grole only works in groups")
	}
	if len(args) > 0 && strings.EqualFold(args[0], "group") {
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if err := h.Settings.SetGroupRole(ctx, scope.GroupKey(), text); err != nil {
			return "", err
		}
		if text == "" {
			return fmt.Sprintf("Group role for %s reset to default.", scope.GroupKey()), nil
		}
		return fmt.Sprintf("Group role set for %s.", scope.GroupKey()), nil
	}
	return h.role(ctx, scope, args)
}

func (h *Handler) rolex(ctx context.Context, scope sessions.Identity, text string, groupScope bool) (string, error) {
	text = strings.TrimSpace(text)
	active, err := h.Settings.ToggleSecondary(ctx, scope, text, groupScope)
	if err != nil {
		return "", err
	}
	target := scope.String()
	if groupScope {
		target = "group " + scope.GroupKey()
	}
	switch {
	case text == settings.ResetSecondary:
		return fmt.Sprintf("Secondary role reset for %s.", target), nil
	case text != "":
		return fmt.Sprintf("Custom secondary role set and active for %s.", target), nil
	}
	return fmt.Sprintf("Switched %s to its %s role.", scope, roleKind(active)), nil
}

func (h *Handler) keys(ctx context.Context, args []string) (string, error) {
	sub := ""
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch sub {
	case "add":
		if len(args) < 2 {
			return "", usage("/keys add <key>")
		}
		err := h.Pool.Add(ctx, args[1])
		if errors.Is(err, credentials.ErrDuplicateKey) {
			return "This API key already exists.", nil
		}
		if err != nil {
			return "", err
		}
		return "New API key added.", nil
	case "set", "del":
		if len(args) < 2 {
			return "", usage("/keys " + sub + " <index>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return "", usage("/keys " + sub + " <index>")
		}
		if sub == "set" {
			if err := h.Pool.Select(ctx, n-1); err != nil {
				return "", err
			}
			return fmt.Sprintf("Current API key set to key %d.", n), nil
		}
		removed, err := h.Pool.Remove(ctx, n-1)
		if err != nil {
			return "", err
		}
		if h.OnKeyRemoved != nil {
			h.OnKeyRemoved(removed)
		}
		return fmt.Sprintf("API key %d deleted.", n), nil
	case "show":
		return h.listKeys(false), nil
	case "":
		return h.listKeys(true), nil
	}
	return "", usage("/keys [add K|set N|del N|show]")
}

func (h *Handler) listKeys(masked bool) string {
	keys, cur := h.Pool.List()
	if len(keys) == 0 {
		return "No API keys added yet."
	}
	var b strings.Builder
	b.WriteString("API keys:\n")
	for i, k := range keys {
		if masked {
			k = credentials.Mask(k)
		}
		fmt.Fprintf(&b, "%d: %s\n", i+1, k)
	}
	fmt.Fprintf(&b, "Current key: %d", cur+1)
	return b.String()
}

func (h *Handler) model(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		m, err := h.Settings.Model(ctx)
		if err != nil {
			return "", err
		}
		return "Current model: " + m, nil
	}
	if err := h.Settings.SetModel(ctx, args[0]); err != nil {
		return "", err
	}
	return "Model set to " + args[0] + ".", nil
}

func (h *Handler) status(ctx context.Context, scope sessions.Identity) (string, error) {
	enabled, err := h.Settings.IsEnabled(ctx, scope)
	if err != nil {
		return "", err
	}
	role, err := h.Settings.EffectiveRole(ctx, scope)
	if err != nil {
		return "", err
	}
	model, err := h.Settings.Model(ctx)
	if err != nil {
		return "", err
	}
	voice, err := h.Settings.VoiceEnabled(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Conversation: %s\nEnabled: %t\nRole: %s\nModel: %s\nVoice: %s\nAPI keys: %d",
		scope, enabled, truncateRole(role), model, onOff(voice), h.Pool.Len()), nil
}

func truncateRole(role string) string {
	const maxRunes = 80
	r := []rune(role)
	if len(r) <= maxRunes {
		return role
	}
	return string(r[:maxRunes]) + "..."
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func roleKind(secondary bool) string {
	if secondary {
		return "secondary"
	}
	return "primary"
}
