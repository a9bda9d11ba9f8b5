package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
	"github.com/nextlevelbuilder/relaychat/internal/channels"
	"github.com/nextlevelbuilder/relaychat/internal/channels/telegram"
	"github.com/nextlevelbuilder/relaychat/internal/config"
	"github.com/nextlevelbuilder/relaychat/internal/dispatch"
	"github.com/nextlevelbuilder/relaychat/internal/history"
	"github.com/nextlevelbuilder/relaychat/internal/notify"
	"github.com/nextlevelbuilder/relaychat/internal/providers"
	"github.com/nextlevelbuilder/relaychat/internal/providers/gemini"
	"github.com/nextlevelbuilder/relaychat/internal/settings"
	"github.com/nextlevelbuilder/relaychat/internal/tracing"
	"github.com/nextlevelbuilder/relaychat/internal/voice"
)

const telegramChannel = "telegram"

func runGateway() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Telegram.Token == "" {
		slog.Error("telegram token missing; set telegram.token or RELAYCHAT_TELEGRAM_TOKEN")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	// Persona defaults and the model fallback follow config reloads.
	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	svc, err := openServices(ctx, cfg, func() settings.Defaults { return settingsDefaults(current.Load()) })
	if err != nil {
		slog.Error("failed to open state", "error", err)
		os.Exit(1)
	}
	defer svc.Close()
	if svc.pool.Len() == 0 {
		slog.Warn("credential pool is empty; add keys with `relaychat keys add` or /keys add")
	}

	svc.history.SetCaps(historyCaps(cfg))

	gem := gemini.New(cfg.Location())
	svc.admin.OnKeyRemoved = gem.Forget
	msgBus := bus.New(0)
	owner := notify.NewOwner(msgBus, telegramChannel, cfg.Telegram.NotifyChat())
	generator := providers.NewFailoverClient(gem, svc.pool, failoverConfig(cfg.Gemini)).WithNotifier(owner)

	limiter := channels.NewSendLimiter(cfg.Telegram.SendPerSecond, cfg.Telegram.SendBurst)
	channelMgr := channels.NewManager(msgBus, telegramChannel, limiter)

	tg, err := telegram.New(cfg.Telegram, msgBus, svc.admin)
	if err != nil {
		slog.Error("failed to initialize telegram channel", "error", err)
		os.Exit(1)
	}
	channelMgr.RegisterChannel(telegramChannel, tg)

	deps := dispatch.Deps{
		KV:        svc.kv,
		Settings:  svc.settings,
		History:   svc.history,
		Generator: generator,
		Deliverer: channelMgr,
		Typer:     channelMgr,
		Notifier:  owner,
	}
	if cfg.Voice.APIKey != "" && cfg.Voice.VoiceID != "" {
		deps.Voice = voice.NewConverter(voice.Config{
			APIKey:  cfg.Voice.APIKey,
			VoiceID: cfg.Voice.VoiceID,
			ModelID: cfg.Voice.ModelID,
			BaseURL: cfg.Voice.BaseURL,
		}, svc.settings.VoiceEnabled)
	}
	queue := dispatch.New(ctx, deps, dispatchConfig(cfg))

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
		os.Exit(1)
	}

	slog.Info("relaychat gateway starting",
		"version", Version,
		"store", cfg.Store.Backend,
		"keys", svc.pool.Len(),
		"voice", deps.Voice != nil,
		"channels", channelMgr.GetStatus(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		consumeInboundMessages(gctx, msgBus, queue)
		return nil
	})
	g.Go(func() error {
		err := config.Watch(gctx, cfgPath, func(next *config.Config) {
			current.Store(next)
			queue.SetConfig(dispatchConfig(next))
			svc.history.SetCaps(historyCaps(next))
			slog.Info("config reloaded")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("config hot reload unavailable", "error", err)
		}
		return nil
	})

	<-ctx.Done()
	slog.Info("graceful shutdown initiated")
	_ = g.Wait()

	// Loops stop at their next suspension point; interrupted batches stay persisted.
	queue.Wait()
	if err := channelMgr.StopAll(context.Background()); err != nil {
		slog.Warn("stop channels", "error", err)
	}
	slog.Info("relaychat gateway stopped")
}

func failoverConfig(c config.GeminiConfig) providers.FailoverConfig {
	return providers.FailoverConfig{
		RejectBackoff:     config.ParseDuration(c.RejectBackoff, 0),
		TransientBackoff:  config.ParseDuration(c.TransientBackoff, 0),
		DefaultRetryAfter: config.ParseDuration(c.DefaultRetryAfter, 0),
		MaxRetryAfter:     config.ParseDuration(c.MaxRetryAfter, 0),
		RetriesPerKey:     c.RetriesPerKey,
	}
}

// dispatchConfig maps the file config onto loop timings. Unset fields keep
// the stock values.
func dispatchConfig(cfg *config.Config) dispatch.Config {
	out := dispatch.DefaultConfig()
	d := cfg.Dispatch
	applyClass(&out.Private, d.Private)
	applyClass(&out.Group, d.Group)
	if d.MaxResponseChars > 0 {
		out.MaxResponseWidth = d.MaxResponseChars
	}
	if d.FallbackText != "" {
		out.FallbackText = d.FallbackText
	}
	out.TypingCharsPerSecond = d.TypingCharsPerSecond
	out.MaxTypingDelay = config.ParseDuration(d.MaxTypingDelay, out.MaxTypingDelay)
	return out
}

func historyCaps(cfg *config.Config) history.Caps {
	return history.Caps{
		Private: max(cfg.Dispatch.Private.MaxHistory, 0),
		Group:   max(cfg.Dispatch.Group.MaxHistory, 0),
	}
}

func applyClass(dst *dispatch.ClassConfig, src config.ClassConfig) {
	if src.BatchSize > 0 {
		dst.BatchSize = src.BatchSize
	}
	if delays := config.ParseDurations(src.Delays); len(delays) > 0 {
		dst.Delays = delays
	}
}
