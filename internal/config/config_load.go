package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

const (
	DefaultPrimaryRole   = "You are a friendly person chatting casually on Telegram. Reply briefly and naturally, like a human would."
	DefaultSecondaryRole = "You are a witty, playful person chatting on Telegram. Keep replies short and light."
	DefaultModel         = "gemini-2.0-flash"
	DefaultTimezone      = "America/Phoenix"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			SendPerSecond: 1,
			SendBurst:     3,
		},
		Gemini: GeminiConfig{
			Model:             DefaultModel,
			RetriesPerKey:     1,
			RejectBackoff:     "4s",
			TransientBackoff:  "2s",
			DefaultRetryAfter: "5s",
			MaxRetryAfter:     "1m",
		},
		Dispatch: DispatchConfig{
			Private:              ClassConfig{BatchSize: 3, Delays: []string{"6s", "10s", "12s"}, MaxHistory: 50},
			Group:                ClassConfig{BatchSize: 2, Delays: []string{"4s", "6s", "8s"}},
			MaxResponseChars:     200,
			FallbackText:         "Sorry, I couldn't process that. Can you try again?",
			TypingCharsPerSecond: 10,
			MaxTypingDelay:       "5s",
		},
		Persona: PersonaConfig{
			Primary:   DefaultPrimaryRole,
			Secondary: DefaultSecondaryRole,
		},
		Store: StoreConfig{
			Backend:    "file",
			Dir:        "~/.relaychat/data",
			SQLitePath: "~/.relaychat/relaychat.db",
			MongoDB:    "relaychat",
		},
		Timezone: DefaultTimezone,
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envList := func(key string, dst *FlexibleStringSlice) {
		if v := os.Getenv(key); v != "" {
			var out FlexibleStringSlice
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			*dst = out
		}
	}

	envStr("RELAYCHAT_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("RELAYCHAT_TELEGRAM_PROXY", &c.Telegram.Proxy)
	envStr("RELAYCHAT_OWNER_ID", &c.Telegram.OwnerID)
	envStr("RELAYCHAT_NOTIFY_CHAT_ID", &c.Telegram.NotifyChatID)
	envList("RELAYCHAT_ALLOW_FROM", &c.Telegram.AllowFrom)

	envList("RELAYCHAT_GEMINI_API_KEYS", &c.Gemini.APIKeys)
	envStr("RELAYCHAT_MODEL", &c.Gemini.Model)

	envStr("RELAYCHAT_ELEVENLABS_API_KEY", &c.Voice.APIKey)
	envStr("RELAYCHAT_ELEVENLABS_VOICE_ID", &c.Voice.VoiceID)

	envStr("RELAYCHAT_STORE", &c.Store.Backend)
	envStr("RELAYCHAT_DATA_DIR", &c.Store.Dir)
	envStr("RELAYCHAT_SQLITE_PATH", &c.Store.SQLitePath)
	envStr("RELAYCHAT_POSTGRES_DSN", &c.Store.PostgresDSN)
	envStr("RELAYCHAT_MONGO_URI", &c.Store.MongoURI)
	envStr("RELAYCHAT_MONGO_DB", &c.Store.MongoDB)

	envStr("RELAYCHAT_TIMEZONE", &c.Timezone)

	envStr("RELAYCHAT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("RELAYCHAT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("RELAYCHAT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("RELAYCHAT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RELAYCHAT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file. Fields tagged json:"-" (secrets) are not written.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
