package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/relaychat/internal/admin"
	"github.com/nextlevelbuilder/relaychat/internal/config"
	"github.com/nextlevelbuilder/relaychat/internal/credentials"
	"github.com/nextlevelbuilder/relaychat/internal/history"
	"github.com/nextlevelbuilder/relaychat/internal/settings"
	"github.com/nextlevelbuilder/relaychat/internal/store"
	"github.com/nextlevelbuilder/relaychat/internal/store/file"
	"github.com/nextlevelbuilder/relaychat/internal/store/mongo"
	"github.com/nextlevelbuilder/relaychat/internal/store/pg"
	"github.com/nextlevelbuilder/relaychat/internal/store/sqlite"
)

// openStore opens the KV backend selected by cfg.Backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.KV, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		kv, err := file.New(config.ExpandHome(cfg.Dir))
		if err != nil {
			return nil, err
		}
		return kv, nil
	case "sqlite":
		path := config.ExpandHome(cfg.SQLitePath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		kv, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case "postgres", "pg":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("RELAYCHAT_POSTGRES_DSN environment variable is not set")
		}
		kv, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case "mongo", "mongodb":
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("RELAYCHAT_MONGO_URI environment variable is not set")
		}
		kv, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case "memory":
		slog.Warn("memory store selected; state is lost on exit")
		return store.NewMemoryKV(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// services are the stateful components shared by the gateway and the
// operator subcommands.
type services struct {
	kv       store.KV
	settings *settings.Service
	history  *history.Store
	pool     *credentials.Pool
	admin    *admin.Handler
}

func openServices(ctx context.Context, cfg *config.Config, defaults func() settings.Defaults) (*services, error) {
	kv, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	settingsSvc := settings.New(kv, defaults)
	hist := history.New(kv, settingsSvc)
	settingsSvc.AttachHistory(hist)

	pool, err := credentials.Load(ctx, kv)
	if err != nil {
		kv.Close()
		return nil, err
	}
	if added, err := pool.Seed(ctx, cfg.Gemini.APIKeys); err != nil {
		kv.Close()
		return nil, fmt.Errorf("seed credential pool: %w", err)
	} else if added > 0 {
		slog.Info("seeded api keys from config", "added", added, "pool_size", pool.Len())
	}

	return &services{
		kv:       kv,
		settings: settingsSvc,
		history:  hist,
		pool:     pool,
		admin:    &admin.Handler{Settings: settingsSvc, Pool: pool},
	}, nil
}

func (s *services) Close() error { return s.kv.Close() }

func settingsDefaults(cfg *config.Config) settings.Defaults {
	return settings.Defaults{
		PrimaryRole:   cfg.Persona.Primary,
		SecondaryRole: cfg.Persona.Secondary,
		Model:         cfg.Gemini.Model,
	}
}
