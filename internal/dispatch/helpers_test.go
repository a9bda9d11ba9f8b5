package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nextlevelbuilder/relaychat/internal/sessions"
)

func TestTruncateResponse(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 5, "hello..."},
		{"wide runes", "你好世界", 4, "你好..."},
		{"disabled", "hello", 0, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateResponse(tt.in, tt.width))
		})
	}
}

func TestSpeakerOf(t *testing.T) {
	assert.Equal(t, DefaultSpeaker, speakerOf(nil))
	assert.Equal(t, DefaultSpeaker, speakerOf([]PendingMessage{{Sender: "Ann"}, {}}))
	assert.Equal(t, "Bob", speakerOf([]PendingMessage{{Sender: "Ann"}, {Sender: "Bob"}}))
}

func TestJoinBatch(t *testing.T) {
	assert.Equal(t, "a b c", joinBatch([]PendingMessage{{Text: "a"}, {Text: "b"}, {Text: "c"}}))
}

func TestTypingDelay(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Second, cfg.typingDelay(string(make([]rune, 25))))
	assert.Equal(t, 5*time.Second, cfg.typingDelay(string(make([]rune, 500))))

	cfg.TypingCharsPerSecond = 0
	assert.Zero(t, cfg.typingDelay("anything"))
}

func TestClassConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.class(sessions.Private("1")).BatchSize)
	assert.Equal(t, 2, cfg.class(sessions.GroupTopic("-1", 0)).BatchSize)

	cfg.Group.BatchSize = 0
	assert.Equal(t, 1, cfg.class(sessions.GroupTopic("-1", 0)).BatchSize)
}

func TestOwners(t *testing.T) {
	o := NewOwners()
	id := sessions.Private("1")

	assert.True(t, o.TryClaim(id))
	assert.False(t, o.TryClaim(id))
	assert.True(t, o.Held(id))
	assert.Equal(t, 1, o.Len())

	o.Release(id)
	assert.False(t, o.Held(id))
	assert.True(t, o.TryClaim(id))
}
