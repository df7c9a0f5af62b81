package kvstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"family-session/internal/config"
	"family-session/internal/database"
)

const probeTimeout = 2 * time.Second

// Open selects the backend named by cfg.StoreDriver. Network backends are
// probed first; an unreachable one degrades to the file store so a device
// without connectivity still keeps its session. The returned func releases
// backend resources.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (Store, func(), error) {
	if log == nil {
		log = slog.Default()
	}
	noop := func() {}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		return NewMemoryStore(), noop, nil

	case config.StoreDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := client.Ping(probeCtx).Err(); err != nil {
			_ = client.Close()
			log.Warn("redis store unreachable; falling back to file store", "addr", cfg.RedisAddr, "error", err)
			return openFile(cfg)
		}

		log.Info("session store ready", "driver", config.StoreDriverRedis, "addr", cfg.RedisAddr)
		return NewRedisStore(client, cfg.StoreNamespace+":"), func() { _ = client.Close() }, nil

	case config.StoreDriverPostgres:
		db, err := database.Open(ctx, database.Options{
			URL:          cfg.DatabaseURL,
			MaxConns:     cfg.DBMaxConns,
			MinConns:     cfg.DBMinConns,
			ProbeTimeout: probeTimeout,
			Logger:       log,
		})
		if err != nil {
			log.Warn("postgres store unreachable; falling back to file store", "error", err)
			return openFile(cfg)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ensure session schema: %w", err)
		}

		log.Info("session store ready", "driver", config.StoreDriverPostgres)
		return NewPostgresStore(db.Pool, cfg.StoreNamespace), db.Close, nil

	default:
		return openFile(cfg)
	}
}

func openFile(cfg *config.Config) (Store, func(), error) {
	store, err := NewFileStore(cfg.StoreFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open file store: %w", err)
	}
	return store, func() {}, nil
}
