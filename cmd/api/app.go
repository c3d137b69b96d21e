package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scorevera/analyzer"
	"scorevera/auth"
	"scorevera/config"
	"scorevera/db"
	"scorevera/dispute"
	"scorevera/letter"
	"scorevera/outbox"
	"scorevera/summary"
	"scorevera/tradeline"
)

// app is the wired process: HTTP server dependencies plus the optional outbox
// relay. close releases pools and clients in reverse order.
type app struct {
	server  *Server
	relay   *outbox.Relay
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func policyFromConfig(cfg config.Rounds) dispute.Policy {
	return dispute.Policy{WindowDays: cfg.WindowDays, MaxRounds: cfg.Max, UrgentDays: cfg.UrgentDays}
}

// buildApp wires every service for cfg. In memory mode nothing touches
// Postgres and the outbox relay is not started.
func buildApp(ctx context.Context, cfg config.Config, memory bool, logger *zap.Logger) (*app, error) {
	policy := policyFromConfig(cfg.Rounds)
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	a := &app{}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	reportAnalyzer, err := buildAnalyzer(ctx, cfg, logger, a)
	if err != nil {
		return fail(err)
	}
	generator, err := buildGenerator(ctx, cfg.Letters, logger)
	if err != nil {
		return fail(err)
	}

	var (
		userRepo      auth.Repository
		tradelineRepo tradeline.Repository
		store         dispute.Store
		ready         func(context.Context) error
		purgeHook     tradeline.PurgeHook
	)
	secret := cfg.Auth.JWTSecret

	if memory {
		memStore := dispute.NewMemoryStore()
		userRepo = auth.NewMemoryRepository()
		tradelineRepo = tradeline.NewMemoryRepository()
		store = memStore
		purgeHook = memStore.PurgeUser
		if secret == "" {
			secret = uuid.NewString()
			logger.Warn("auth.jwt_secret not set, using an ephemeral secret for memory mode")
		}
	} else {
		pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, pool.Close)
		userRepo = auth.NewRepository(pool)
		tradelineRepo = tradeline.NewPGRepository(pool)
		store = dispute.NewPGStore(pool)
		ready = pool.Ping

		relay, err := buildRelay(cfg, pool, logger, a)
		if err != nil {
			return fail(err)
		}
		a.relay = relay
	}

	tradelineSvc := tradeline.NewService(tradelineRepo, reportAnalyzer, cfg.Analyzer.Timeout, logger)
	if purgeHook != nil {
		tradelineSvc = tradelineSvc.WithPurgeHook(purgeHook)
	}
	disputeSvc := dispute.NewService(store, tradelineSvc, generator, policy, logger).
		WithLetterTimeout(cfg.Letters.Timeout)

	a.server = &Server{
		authService:      auth.NewService(userRepo, secret).WithTokenTTL(cfg.Auth.TokenTTL),
		tradelineService: tradelineSvc,
		disputeService:   disputeSvc,
		summaryService:   summary.NewService(disputeSvc, tradelineSvc),
		logger:           logger,
		ready:            ready,
	}
	return a, nil
}

func buildAnalyzer(ctx context.Context, cfg config.Config, logger *zap.Logger, a *app) (tradeline.Analyzer, error) {
	var base tradeline.Analyzer = analyzer.Disabled{}
	if cfg.Analyzer.URL != "" {
		base = analyzer.NewHTTPClient(cfg.Analyzer.URL, &http.Client{Timeout: cfg.Analyzer.Timeout})
	} else {
		logger.Warn("analyzer.url not set, report uploads will be rejected")
	}
	if cfg.Redis.URL == "" {
		return base, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, analyzer cache will fall through", zap.Error(err))
	}
	return analyzer.NewCache(base, rdb, cfg.Analyzer.CacheTTL, logger), nil
}

func buildGenerator(ctx context.Context, cfg config.Letters, logger *zap.Logger) (letter.Generator, error) {
	if cfg.GeminiAPIKey == "" {
		logger.Info("letters.gemini_api_key not set, using template letters")
		return letter.NewTemplateGenerator(), nil
	}
	gen, err := letter.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("build gemini generator: %w", err)
	}
	return gen, nil
}

func buildRelay(cfg config.Config, pool *pgxpool.Pool, logger *zap.Logger, a *app) (*outbox.Relay, error) {
	var publisher outbox.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, map[string]string{
			dispute.TopicCreated:       cfg.Kafka.Topic,
			dispute.TopicStatusChanged: cfg.Kafka.Topic,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = kp.Close() })
		publisher = kp
	} else {
		logger.Info("kafka.brokers not set, outbox events will be logged")
		publisher = outbox.NewLogPublisher(logger)
	}
	return outbox.NewRelay(outbox.NewRepository(pool), publisher,
		cfg.Outbox.Interval, cfg.Outbox.BatchSize, cfg.Outbox.MaxAttempts, logger), nil
}
