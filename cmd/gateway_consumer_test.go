package cmd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
	"github.com/nextlevelbuilder/relaychat/internal/config"
	"github.com/nextlevelbuilder/relaychat/internal/dispatch"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
	"github.com/nextlevelbuilder/relaychat/internal/settings"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
	msg []dispatch.PendingMessage
}

func (r *recordingQueue) Enqueue(_ context.Context, id sessions.Identity, msg dispatch.PendingMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id.String())
	r.msg = append(r.msg, msg)
	return nil
}

func (r *recordingQueue) snapshot() ([]string, []dispatch.PendingMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...), append([]dispatch.PendingMessage(nil), r.msg...)
}

func TestConsumeInboundMessages(t *testing.T) {
	b := bus.New(8)
	q := &recordingQueue{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumeInboundMessages(ctx, b, q)
		close(done)
	}()

	b.PublishInbound(bus.InboundMessage{Channel: "telegram", ChatID: "42", PeerKind: bus.PeerDirect, SenderName: "Bob", Content: "hi"})
	b.PublishInbound(bus.InboundMessage{Channel: "telegram", ChatID: "", Content: "lost"})
	b.PublishInbound(bus.InboundMessage{Channel: "telegram", ChatID: "-100", TopicID: 3, PeerKind: bus.PeerGroup, Content: "yo"})

	require.Eventually(t, func() bool {
		ids, _ := q.snapshot()
		return len(ids) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	ids, msgs := q.snapshot()
	assert.Equal(t, []string{"private:42", "group:-100:3"}, ids)
	assert.Equal(t, "Bob", msgs[0].Sender)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.False(t, msgs[1].At.IsZero())
}

func TestDispatchConfigFromFile(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.Group = config.ClassConfig{BatchSize: 5, Delays: []string{"1s", "bogus"}}
	cfg.Dispatch.TypingCharsPerSecond = 0
	cfg.Dispatch.FallbackText = ""

	out := dispatchConfig(cfg)
	assert.Equal(t, 5, out.Group.BatchSize)
	assert.Equal(t, []time.Duration{time.Second}, out.Group.Delays)
	assert.Equal(t, 3, out.Private.BatchSize)
	assert.Equal(t, 0, out.TypingCharsPerSecond)
	assert.Equal(t, dispatch.DefaultFallbackText, out.FallbackText)
	assert.Equal(t, 200, out.MaxResponseWidth)
}

func TestHistoryCapsFromFile(t *testing.T) {
	cfg := config.Default()
	caps := historyCaps(cfg)
	assert.Equal(t, 50, caps.Private)
	assert.Equal(t, 0, caps.Group)

	cfg.Dispatch.Group.MaxHistory = 30
	cfg.Dispatch.Private.MaxHistory = -1
	caps = historyCaps(cfg)
	assert.Equal(t, 0, caps.Private)
	assert.Equal(t, 30, caps.Group)
}

func TestFailoverConfigFromFile(t *testing.T) {
	out := failoverConfig(config.Default().Gemini)
	assert.Equal(t, 4*time.Second, out.RejectBackoff)
	assert.Equal(t, time.Minute, out.MaxRetryAfter)
	assert.Equal(t, 1, out.RetriesPerKey)
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	_, err := openStore(context.Background(), config.StoreConfig{Backend: "tape"})
	require.Error(t, err)
}

func TestOpenServicesSeedsPool(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Backend: "memory"}
	cfg.Gemini.APIKeys = config.FlexibleStringSlice{"k1", "k2", "k1"}

	svc, err := openServices(context.Background(), cfg, func() settings.Defaults { return settingsDefaults(cfg) })
	require.NoError(t, err)
	defer svc.Close()
	assert.Equal(t, 2, svc.pool.Len())

	reply, err := svc.admin.Execute(context.Background(), sessions.Private("1"), "model", nil)
	require.NoError(t, err)
	assert.Contains(t, reply, config.DefaultModel)
}
