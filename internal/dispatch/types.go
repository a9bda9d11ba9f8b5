// Package dispatch buffers inbound messages per conversation and runs one
// debounce/batch/generate/deliver loop per conversation identity.
package dispatch

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
	"github.com/nextlevelbuilder/relaychat/internal/providers"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
)

// DefaultSpeaker labels a batch whose messages carry no sender name.
const DefaultSpeaker = "User"

// DefaultFallbackText replaces an empty generated response.
const DefaultFallbackText = "Sorry, I couldn't process that. Can you try again?"

// PendingMessage is one buffered inbound message. Persisted as JSON under store.NamespaceQueue.
type PendingMessage struct {
	Text   string    `json:"text"`
	Sender string    `json:"sender,omitempty"`
	At     time.Time `json:"at"`
}

// Settings is the part of settings.Service the loop reads.
type Settings interface {
	IsEnabled(ctx context.Context, id sessions.Identity) (bool, error)
	EffectiveRole(ctx context.Context, id sessions.Identity) (string, error)
	Model(ctx context.Context) (string, error)
}

// History is the part of history.Store the loop writes.
type History interface {
	AppendUserTurn(ctx context.Context, id sessions.Identity, role, speaker, text string) ([]string, error)
	AppendResponseTurn(ctx context.Context, id sessions.Identity, text string) error
}

// Generator produces a response for one batch. *providers.FailoverClient satisfies it.
type Generator interface {
	Generate(ctx context.Context, req providers.Request) (string, error)
}

// Deliverer hands a finished response to the chat transport.
type Deliverer interface {
	Deliver(ctx context.Context, id sessions.Identity, msg bus.OutboundMessage) error
}

// Typer shows a typing indicator. Optional.
type Typer interface {
	Typing(ctx context.Context, id sessions.Identity) error
}

// VoiceHook optionally converts a response into a voice note. When ok is false
// the returned text is delivered instead (it may differ from the input, e.g. a
// stripped trigger prefix).
type VoiceHook interface {
	TryVoice(ctx context.Context, text string) (path string, fallback string, ok bool)
}

// Notifier receives operator diagnostics for failures the loop cannot recover from.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// ClassConfig holds the batch size and candidate debounce delays for one
// conversation class (private or group).
type ClassConfig struct {
	BatchSize int
	Delays    []time.Duration
}

// Config tunes the loop. It can be swapped at runtime with Queue.SetConfig.
type Config struct {
	Private ClassConfig
	Group   ClassConfig

	// MaxResponseWidth caps a response in display cells before "..." is appended. 0 disables.
	MaxResponseWidth int
	FallbackText     string

	// TypingCharsPerSecond paces the simulated typing delay before delivery. 0 disables.
	TypingCharsPerSecond int
	MaxTypingDelay       time.Duration
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		Private: ClassConfig{
			BatchSize: 3,
			Delays:    []time.Duration{6 * time.Second, 10 * time.Second, 12 * time.Second},
		},
		Group: ClassConfig{
			BatchSize: 2,
			Delays:    []time.Duration{4 * time.Second, 6 * time.Second, 8 * time.Second},
		},
		MaxResponseWidth:     200,
		FallbackText:         DefaultFallbackText,
		TypingCharsPerSecond: 10,
		MaxTypingDelay:       5 * time.Second,
	}
}

func (c Config) class(id sessions.Identity) ClassConfig {
	cc := c.Private
	if id.IsGroup() {
		cc = c.Group
	}
	if cc.BatchSize <= 0 {
		cc.BatchSize = 1
	}
	return cc
}

func (c Config) typingDelay(text string) time.Duration {
	if c.TypingCharsPerSecond <= 0 {
		return 0
	}
	d := time.Duration(len([]rune(text))/c.TypingCharsPerSecond) * time.Second
	if c.MaxTypingDelay > 0 {
		d = min(d, c.MaxTypingDelay)
	}
	return d
}
