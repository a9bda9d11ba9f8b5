package channels

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
)

type recordingChannel struct {
	*BaseChannel
	mu     sync.Mutex
	sent   []bus.OutboundMessage
	typing []string
}

func newRecordingChannel(name string, b bus.MessageRouter) *recordingChannel {
	return &recordingChannel{BaseChannel: NewBaseChannel(name, b, nil)}
}

func (c *recordingChannel) Start(context.Context) error { c.SetRunning(true); return nil }
func (c *recordingChannel) Stop(context.Context) error  { c.SetRunning(false); return nil }

func (c *recordingChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) SendTyping(_ context.Context, chatID string, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing = append(c.typing, chatID)
	return nil
}

func (c *recordingChannel) messages() []bus.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bus.OutboundMessage(nil), c.sent...)
}

func TestIsAllowed(t *testing.T) {
	open := NewBaseChannel("t", nil, nil)
	assert.True(t, open.IsAllowed("1"))

	c := NewBaseChannel("t", nil, []string{"42", "@alice"})
	assert.True(t, c.IsAllowed("42"))
	assert.True(t, c.IsAllowed("42|bob"))
	assert.True(t, c.IsAllowed("7|Alice"))
	assert.False(t, c.IsAllowed("7|carol"))
}

func TestIdentityOf(t *testing.T) {
	assert.Equal(t, "private:5", IdentityOf(bus.InboundMessage{ChatID: "5", PeerKind: bus.PeerDirect}).String())
	assert.Equal(t, "group:-9:0", IdentityOf(bus.InboundMessage{ChatID: "-9", PeerKind: bus.PeerGroup}).String())
	assert.Equal(t, "group:-9:12", IdentityOf(bus.InboundMessage{ChatID: "-9", TopicID: 12, PeerKind: bus.PeerGroup}).String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}

func TestDeliverRoutesToDefaultChannelAndCleansMedia(t *testing.T) {
	b := bus.New(4)
	m := NewManager(b, "telegram", nil)
	ch := newRecordingChannel("telegram", b)
	m.RegisterChannel("telegram", ch)

	audio := filepath.Join(t.TempDir(), "note.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("mp3"), 0o600))

	err := m.Deliver(context.Background(), sessions.GroupTopic("-100", 3), bus.OutboundMessage{
		Media: []bus.MediaAttachment{{URL: audio, ContentType: "audio/mpeg"}},
	})
	require.NoError(t, err)

	sent := ch.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "telegram", sent[0].Channel)
	assert.Equal(t, "-100", sent[0].ChatID)
	assert.Equal(t, 3, sent[0].TopicID)
	assert.NoFileExists(t, audio)

	require.NoError(t, m.Typing(context.Background(), sessions.Private("8")))
	assert.Equal(t, []string{"8"}, ch.typing)
}

func TestOutboundBusIsDispatched(t *testing.T) {
	b := bus.New(4)
	m := NewManager(b, "telegram", NewSendLimiter(100, 10))
	ch := newRecordingChannel("telegram", b)
	m.RegisterChannel("telegram", ch)

	ctx := context.Background()
	require.NoError(t, m.StartAll(ctx))
	b.PublishOutbound(bus.OutboundMessage{ChatID: "1", Content: "hello"})

	assert.Eventually(t, func() bool { return len(ch.messages()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.StopAll(ctx))
	assert.False(t, ch.IsRunning())
}

func TestUnknownChannel(t *testing.T) {
	m := NewManager(bus.New(1), "telegram", nil)
	err := m.Send(context.Background(), bus.OutboundMessage{Channel: "nope"})
	assert.Error(t, err)
}

func TestSendLimiterBoundsKeys(t *testing.T) {
	l := NewSendLimiter(1000, 1)
	ctx := context.Background()
	for i := 0; i < maxTrackedKeys+10; i++ {
		require.NoError(t, l.Wait(ctx, string(rune('a'+i%26))+time.Duration(i).String()))
	}
	assert.LessOrEqual(t, l.tracked(), maxTrackedKeys)
}

func TestSendLimiterHonorsContext(t *testing.T) {
	l := NewSendLimiter(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}
