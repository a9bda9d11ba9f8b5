package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for relaychat.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Gemini    GeminiConfig    `json:"gemini"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Persona   PersonaConfig   `json:"persona"`
	Voice     VoiceConfig     `json:"voice,omitempty"`
	Store     StoreConfig     `json:"store"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Timezone  string          `json:"timezone,omitempty"` // IANA name used in prompts (default "America/Phoenix")
	mu        sync.RWMutex
}

// TelegramConfig configures the bot transport.
type TelegramConfig struct {
	Token     string              `json:"token"`
	Proxy     string              `json:"proxy,omitempty"`
	AllowFrom FlexibleStringSlice `json:"allow_from,omitempty"` // empty = everyone
	// OwnerID is the Telegram user allowed to run operator commands.
	OwnerID string `json:"owner_id,omitempty"`
	// NotifyChatID receives operator diagnostics (default: OwnerID's private chat).
	NotifyChatID  string  `json:"notify_chat_id,omitempty"`
	SendPerSecond float64 `json:"send_per_second,omitempty"` // per-chat outbound pacing (default 1)
	SendBurst     int     `json:"send_burst,omitempty"`
}

// GeminiConfig configures generation and failover.
type GeminiConfig struct {
	APIKeys           FlexibleStringSlice `json:"api_keys,omitempty"` // seeded into the pool on start
	Model             string              `json:"model,omitempty"`
	RetriesPerKey     int                 `json:"retries_per_key,omitempty"`
	RejectBackoff     string              `json:"reject_backoff,omitempty"`      // Go duration (default "4s")
	TransientBackoff  string              `json:"transient_backoff,omitempty"`   // default "2s"
	DefaultRetryAfter string              `json:"default_retry_after,omitempty"` // default "5s"
	MaxRetryAfter     string              `json:"max_retry_after,omitempty"`     // default "1m"
}

// ClassConfig is the debounce policy for one conversation class.
type ClassConfig struct {
	BatchSize int      `json:"batch_size"`
	Delays    []string `json:"delays"` // Go durations, one picked at random per batch
	// MaxHistory caps the transcript (seed line included) while no global
	// history limit is set. 0 = unbounded.
	MaxHistory int `json:"max_history,omitempty"`
}

// DispatchConfig tunes the per-conversation loop. Hot-reloadable.
type DispatchConfig struct {
	Private              ClassConfig `json:"private"`
	Group                ClassConfig `json:"group"`
	MaxResponseChars     int         `json:"max_response_chars,omitempty"`
	FallbackText         string      `json:"fallback_text,omitempty"`
	TypingCharsPerSecond int         `json:"typing_chars_per_second,omitempty"` // 0 disables the typing delay
	MaxTypingDelay       string      `json:"max_typing_delay,omitempty"`
}

// PersonaConfig holds the default roles. Hot-reloadable.
type PersonaConfig struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// VoiceConfig configures ElevenLabs voice replies.
type VoiceConfig struct {
	APIKey  string `json:"-"` // from env RELAYCHAT_ELEVENLABS_API_KEY only
	VoiceID string `json:"voice_id,omitempty"`
	ModelID string `json:"model_id,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// StoreConfig selects the persistence backend.
// Connection strings are secrets and only come from env.
type StoreConfig struct {
	Backend     string `json:"backend,omitempty"` // "file" (default), "sqlite", "postgres", "mongo", "memory"
	Dir         string `json:"dir,omitempty"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"` // from env RELAYCHAT_POSTGRES_DSN only
	MongoURI    string `json:"-"` // from env RELAYCHAT_MONGO_URI only
	MongoDB     string `json:"mongo_db,omitempty"`
}

// TelemetryConfig configures OpenTelemetry OTLP export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"` // default "relaychat"
	Headers     map[string]string `json:"headers,omitempty"`
}

// Location returns the prompt timezone, falling back to UTC on a bad name.
func (c *Config) Location() *time.Location {
	c.mu.RLock()
	name := c.Timezone
	c.mu.RUnlock()
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseDuration parses a Go duration, returning def for empty or invalid input.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// ParseDurations parses each entry with ParseDuration, skipping invalid ones.
func ParseDurations(ss []string) []time.Duration {
	out := make([]time.Duration, 0, len(ss))
	for _, s := range ss {
		if d := ParseDuration(s, -1); d >= 0 {
			out = append(out, d)
		}
	}
	return out
}

// NotifyChat returns the chat that receives operator diagnostics.
func (t TelegramConfig) NotifyChat() string {
	if t.NotifyChatID != "" {
		return t.NotifyChatID
	}
	return t.OwnerID
}
