// Package voice turns ".el"-prefixed responses into ElevenLabs voice notes.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix marks a response that should be spoken.
const Prefix = ".el"

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModelID = "eleven_multilingual_v2"
	maxErrorBody   = 512
)

// Config for the ElevenLabs text-to-speech API.
type Config struct {
	APIKey  string
	VoiceID string
	ModelID string
	BaseURL string
	// Dir receives the generated mp3 files. Empty uses os.TempDir().
	Dir     string
	Timeout time.Duration
}

// EnabledFunc reports whether voice replies are switched on.
type EnabledFunc func(ctx context.Context) (bool, error)

// Converter implements dispatch.VoiceHook.
type Converter struct {
	cfg     Config
	enabled EnabledFunc
	client  *http.Client
}

func NewConverter(cfg Config, enabled EnabledFunc) *Converter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModelID
	}
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Converter{cfg: cfg, enabled: enabled, client: &http.Client{Timeout: cfg.Timeout}}
}

// TryVoice converts text when it carries Prefix and voice is enabled. Otherwise,
// or when conversion fails, it returns the text to send instead (prefix removed).
func (c *Converter) TryVoice(ctx context.Context, text string) (string, string, bool) {
	rest, ok := strings.CutPrefix(text, Prefix)
	if !ok {
		return "", text, false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", text, false
	}

	on, err := c.enabled(ctx)
	if err != nil {
		slog.Warn("voice: read enabled flag", "error", err)
	}
	if !on || c.cfg.APIKey == "" || c.cfg.VoiceID == "" {
		return "", rest, false
	}

	path, err := c.Synthesize(ctx, rest)
	if err != nil {
		slog.Warn("voice: conversion failed, sending text", "error", err)
		return "", rest, false
	}
	return path, rest, true
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize calls the text-to-speech endpoint and writes the mp3 into Dir.
func (c *Converter) Synthesize(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       c.cfg.ModelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	path := filepath.Join(c.cfg.Dir, "relaychat-voice-"+uuid.NewString()+".mp3")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
