package telegram

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/relaychat/internal/admin"
	"github.com/nextlevelbuilder/relaychat/internal/bus"
)

func groupMessage(text string, forum, topicMsg bool, thread int) *telego.Message {
	return &telego.Message{
		MessageID:       7,
		Chat:            telego.Chat{ID: -100, Type: "supergroup", IsForum: forum},
		From:            &telego.User{ID: 5, FirstName: "Ann", Username: "ann"},
		Text:            text,
		IsTopicMessage:  topicMsg,
		MessageThreadID: thread,
	}
}

func TestIsServiceMessage(t *testing.T) {
	assert.False(t, isServiceMessage(&telego.Message{Text: "hi"}))
	assert.False(t, isServiceMessage(&telego.Message{Caption: "look"}))
	assert.False(t, isServiceMessage(&telego.Message{Sticker: &telego.Sticker{}}))
	assert.True(t, isServiceMessage(&telego.Message{LeftChatMember: &telego.User{ID: 1}}))
}

func TestInboundFromMessage_Private(t *testing.T) {
	msg := &telego.Message{
		Chat: telego.Chat{ID: 42, Type: "private"},
		From: &telego.User{ID: 42, FirstName: "Bob"},
		Text: "hello",
	}
	in, ok := inboundFromMessage(msg)
	require.True(t, ok)
	assert.Equal(t, bus.PeerDirect, in.PeerKind)
	assert.Equal(t, "42", in.ChatID)
	assert.Equal(t, "42", in.SenderID)
	assert.Equal(t, "Bob", in.SenderName)
	assert.Equal(t, "hello", in.Content)
}

func TestInboundFromMessage_Topics(t *testing.T) {
	tests := []struct {
		name  string
		msg   *telego.Message
		topic int
	}{
		{"plain group", groupMessage("x", false, false, 0), 0},
		{"forum main topic", groupMessage("x", true, false, 0), 0},
		{"forum topic", groupMessage("x", true, true, 9), 9},
		{"reply thread outside forum", groupMessage("x", false, false, 3), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := inboundFromMessage(tt.msg)
			require.True(t, ok)
			assert.Equal(t, bus.PeerGroup, in.PeerKind)
			assert.Equal(t, "-100", in.ChatID)
			assert.Equal(t, tt.topic, in.TopicID)
			assert.Equal(t, "5|ann", in.SenderID)
		})
	}
}

func TestInboundFromMessage_Skips(t *testing.T) {
	_, ok := inboundFromMessage(groupMessage("   ", false, false, 0))
	assert.False(t, ok)

	_, ok = inboundFromMessage(groupMessage(reactionPrefix+" 👍", false, false, 0))
	assert.False(t, ok)

	_, ok = inboundFromMessage(&telego.Message{Text: "orphan"})
	assert.False(t, ok)
}

func TestSenderLabel(t *testing.T) {
	assert.Equal(t, "Ann", senderLabel(&telego.User{FirstName: " Ann "}))
	assert.Equal(t, "@ann", senderLabel(&telego.User{Username: "ann"}))
	assert.Equal(t, "", senderLabel(&telego.User{}))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		name string
		args []string
		ok   bool
	}{
		{"/chat on", "chat", []string{"on"}, true},
		{"/Role@relay_bot be kind", "role", []string{"be", "kind"}, true},
		{"/role@other_bot x", "", nil, false},
		{"/", "", nil, false},
		{"hello", "", nil, false},
		{"/status", "status", []string{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args, ok := parseCommand(tt.text, "relay_bot")
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.name, name)
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestCommandScope(t *testing.T) {
	assert.Equal(t, "group:-100:9", commandScope(groupMessage("/status", true, true, 9)).String())
	priv := &telego.Message{Chat: telego.Chat{ID: 42, Type: "private"}}
	assert.Equal(t, "private:42", commandScope(priv).String())
}

func TestCommandReply(t *testing.T) {
	assert.Equal(t, "done", commandReply("done", nil))
	assert.Equal(t, "Usage: /model [name]", commandReply("", &admin.UsageError{Usage: "/model [name]"}))
	assert.Contains(t, commandReply("", fmt.Errorf("%w: foo", admin.ErrUnknownCommand)), "/help")
	assert.Equal(t, "Error: boom", commandReply("", errors.New("boom")))
}

func TestResolveThreadIDForSend(t *testing.T) {
	assert.Equal(t, 0, resolveThreadIDForSend(0))
	assert.Equal(t, 0, resolveThreadIDForSend(telegramGeneralTopicID))
	assert.Equal(t, 12, resolveThreadIDForSend(12))
}

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, splitMessage("  ", 10))
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	parts := splitMessage(long, 10)
	require.Len(t, parts, 2)
	assert.Equal(t, strings.Repeat("a", 8)+"\n", parts[0])
	assert.Equal(t, strings.Repeat("b", 8), parts[1])

	parts = splitMessage(strings.Repeat("é", 25), 10)
	require.Len(t, parts, 3)
	assert.Equal(t, 10, len([]rune(parts[0])))
}

func TestParseChatID(t *testing.T) {
	id, err := parseChatID("-1001234")
	require.NoError(t, err)
	assert.Equal(t, int64(-1001234), id)
	_, err = parseChatID("abc")
	assert.Error(t, err)
}

func TestMenuCommandsCoverHelp(t *testing.T) {
	for _, cmd := range MenuCommands() {
		assert.Contains(t, admin.Help+"/help", "/"+cmd.Command)
	}
}
