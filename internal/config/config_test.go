package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Dispatch.Private.BatchSize)
	assert.Equal(t, 50, cfg.Dispatch.Private.MaxHistory)
	assert.Equal(t, []string{"4s", "6s", "8s"}, cfg.Dispatch.Group.Delays)
	assert.Equal(t, 200, cfg.Dispatch.MaxResponseChars)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
}

func TestLoadJSON5AndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// comments are fine
		telegram: { owner_id: "42", token: "file-token" },
		dispatch: { private: { batch_size: 5, delays: ["1s"] } },
		gemini: { model: "gemini-x" },
	}`), 0o600))

	t.Setenv("RELAYCHAT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("RELAYCHAT_GEMINI_API_KEYS", "k1, k2,")
	t.Setenv("RELAYCHAT_POSTGRES_DSN", "postgres://x")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "42", cfg.Telegram.NotifyChat())
	assert.Equal(t, 5, cfg.Dispatch.Private.BatchSize)
	assert.Equal(t, FlexibleStringSlice{"k1", "k2"}, cfg.Gemini.APIKeys)
	assert.Equal(t, "gemini-x", cfg.Gemini.Model)
	assert.Equal(t, "postgres://x", cfg.Store.PostgresDSN)
}

func TestFlexibleStringSliceNumbers(t *testing.T) {
	var f FlexibleStringSlice
	require.NoError(t, f.UnmarshalJSON([]byte(`[123, "@bob"]`)))
	assert.Equal(t, FlexibleStringSlice{"123", "@bob"}, f)
}

func TestParseDurations(t *testing.T) {
	assert.Equal(t, 4*time.Second, ParseDuration("", 4*time.Second))
	assert.Equal(t, 4*time.Second, ParseDuration("junk", 4*time.Second))
	assert.Equal(t, time.Minute, ParseDuration("1m", 0))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, ParseDurations([]string{"1s", "bad", "2s"}))
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Default()
	cfg.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dispatch":{"max_response_chars":100}}`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c.Dispatch.MaxResponseChars })
	}()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"dispatch":{"max_response_chars":50}}`), 0o600))

	select {
	case n := <-got:
		assert.Equal(t, 50, n)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}

	cancel()
	require.NoError(t, <-done)
}
