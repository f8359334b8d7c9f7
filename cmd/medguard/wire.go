package main

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/medguard/audit"
	"github.com/hupe1980/medguard/cache"
	"github.com/hupe1980/medguard/config"
	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/logging"
	"github.com/hupe1980/medguard/model"
	mganthropic "github.com/hupe1980/medguard/model/anthropic"
	"github.com/hupe1980/medguard/model/gemini"
	"github.com/hupe1980/medguard/model/ollama"
	mgopenai "github.com/hupe1980/medguard/model/openai"
	"github.com/hupe1980/medguard/session"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// closer releases a resource acquired while wiring.
type closer func() error

func closeAll(closers []closer, logger logging.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("Shutdown step failed", "error", err)
		}
	}
}

func buildProvider(ctx context.Context, cfg *config.Config) (model.Provider, closer, error) {
	switch cfg.Provider {
	case "openai":
		return mgopenai.New(func(o *mgopenai.Options) {
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil, nil
	case "anthropic":
		return mganthropic.New(func(o *mganthropic.Options) {
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
		}), nil, nil
	case "gemini":
		p, err := gemini.New(ctx, func(o *gemini.Options) {
			o.APIKey = cfg.APIKey
			o.Temperature = float32(cfg.Temperature)
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "ollama":
		p, err := ollama.New(func(o *ollama.Options) {
			o.Temperature = cfg.Temperature
			if cfg.BaseURL != "" {
				o.BaseURL = cfg.BaseURL
			}
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	case "mock":
		return model.NewMockProvider("mock"), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

func buildCache(ctx context.Context, cfg *config.Config, client *redis.Client) (core.CacheStore, closer) {
	switch cfg.CacheBackend {
	case "redis":
		return cache.NewRedisStore(client), nil
	case "none":
		return nil, nil
	default:
		store := cache.NewInMemoryStore()
		janitorCtx, cancel := context.WithCancel(ctx)
		store.StartJanitor(janitorCtx, time.Minute)
		return store, func() error { cancel(); return nil }
	}
}

func buildSessions(cfg *config.Config, client *redis.Client) core.SessionStore {
	if cfg.SessionBackend == "redis" {
		return session.NewRedisStore(client, func(o *session.RedisOptions) {
			o.MaxTurns = cfg.SessionMaxTurns
			o.TTL = cfg.SessionTTL
		})
	}
	return session.NewInMemoryStore(func(o *session.InMemoryOptions) { o.MaxTurns = cfg.SessionMaxTurns })
}

func buildAudit(ctx context.Context, cfg *config.Config, logger logging.Logger) (core.AuditSink, []closer, error) {
	var (
		sinks   []core.AuditSink
		closers []closer
	)

	if cfg.AuditPostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.AuditPostgresDSN)
		if err != nil {
			return nil, closers, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, func() error { pool.Close(); return nil })

		pg := audit.NewPostgresSink(pool, func(o *audit.PostgresOptions) {
			o.Table = cfg.AuditTable
			o.Logger = logger
		})
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, closers, err
		}
		sinks = append(sinks, pg)
	}

	if cfg.AuditRabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.AuditRabbitMQURL)
		if err != nil {
			return nil, closers, fmt.Errorf("connect rabbitmq: %w", err)
		}
		closers = append(closers, conn.Close)

		mq, err := audit.NewRabbitMQSink(conn, func(o *audit.RabbitMQOptions) {
			o.Exchange = cfg.AuditExchange
			o.Queue = cfg.AuditQueue
			o.Logger = logger
		})
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, mq.Close)
		sinks = append(sinks, mq)
	}

	switch len(sinks) {
	case 0:
		logger.Warn("No durable audit sink configured, audit entries are kept in memory")
		return audit.NewInMemorySink(), closers, nil
	case 1:
		return sinks[0], closers, nil
	default:
		return audit.NewMultiSink(sinks...), closers, nil
	}
}
