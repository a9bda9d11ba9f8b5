package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabled(v bool) EnabledFunc {
	return func(context.Context) (bool, error) { return v, nil }
}

func newServer(t *testing.T, status int) (*httptest.Server, *ttsRequest) {
	t.Helper()
	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte("ID3-fake-mp3"))
		} else {
			_, _ = w.Write([]byte(`{"detail":"quota"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestTryVoiceConverts(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	c := NewConverter(Config{APIKey: "secret", VoiceID: "voice-1", BaseURL: srv.URL, Dir: t.TempDir()}, enabled(true))

	path, text, ok := c.TryVoice(context.Background(), ".el hello there")
	require.True(t, ok)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, "hello there", got.Text)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3-fake-mp3", string(data))
}

func TestTryVoiceFallsBackToText(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized)
	c := NewConverter(Config{APIKey: "secret", VoiceID: "voice-1", BaseURL: srv.URL, Dir: t.TempDir()}, enabled(true))

	path, text, ok := c.TryVoice(context.Background(), ".el hello")
	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Equal(t, "hello", text)
}

func TestTryVoiceSkips(t *testing.T) {
	c := NewConverter(Config{APIKey: "secret", VoiceID: "voice-1", BaseURL: "http://127.0.0.1:0"}, enabled(false))

	_, text, ok := c.TryVoice(context.Background(), "plain reply")
	assert.False(t, ok)
	assert.Equal(t, "plain reply", text)

	_, text, ok = c.TryVoice(context.Background(), ".el spoken")
	assert.False(t, ok)
	assert.Equal(t, "spoken", text)
}
