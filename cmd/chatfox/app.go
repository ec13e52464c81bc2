package main

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/repository"
	"github.com/ManuelReschke/ChatFox/internal/pkg/billing"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/database"
	"github.com/ManuelReschke/ChatFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
	"github.com/ManuelReschke/ChatFox/internal/pkg/metrics"
	"github.com/ManuelReschke/ChatFox/internal/pkg/usage"
)

// services is the object graph shared by every subcommand.
type services struct {
	db       *gorm.DB
	redis    *redis.Client
	caches   *cache.Registry
	repos    *repository.Repositories
	store    *billing.Store
	ingestor *billing.Ingestor
	resolver *entitlements.Resolver
	usage    *usage.Service
	metrics  *metrics.Metrics
}

func newServices() (*services, error) {
	env.SetupEnvFile()

	db, err := database.SetupDatabase()
	if err != nil {
		return nil, err
	}

	client := cache.NewRedisClient(
		env.GetEnv("CACHE_HOST", "localhost"),
		env.GetEnv("CACHE_PORT", "6379"),
		env.GetEnv("CACHE_PASSWORD", ""),
	)
	queries := cache.NewRedisQueryCache(client, env.GetEnvDuration("QUERY_CACHE_TTL", cache.DefaultQueryCacheTTL))
	caches := cache.NewRegistry(registryConfigFromEnv(), queries)

	m := metrics.Get()
	repos := repository.NewFactory(db, queries).GetRepositories()
	store := billing.NewStoreFromDB(db, queries, repos.User, caches,
		env.GetEnvDuration("BILLING_STORE_TIMEOUT", billing.DefaultStoreTimeout))
	resolver := entitlements.NewResolver(store, caches, m)

	return &services{
		db:       db,
		redis:    client,
		caches:   caches,
		repos:    repos,
		store:    store,
		ingestor: billing.NewIngestor(store, store, m),
		resolver: resolver,
		usage:    usage.NewService(repos.Usage, caches, resolver, limitsFromEnv(), m),
		metrics:  m,
	}, nil
}

func (s *services) Close() {
	s.caches.Close()
	if err := s.redis.Close(); err != nil {
		logCloseError("redis", err)
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logCloseError("database", err)
		}
	}
}

func registryConfigFromEnv() cache.RegistryConfig {
	cfg := cache.DefaultRegistryConfig()
	cfg.Session = specFromEnv("CACHE_SESSION", cfg.Session)
	cfg.SubscriptionDetail = specFromEnv("CACHE_SUBSCRIPTION", cfg.SubscriptionDetail)
	cfg.UsageCounters = specFromEnv("CACHE_USAGE", cfg.UsageCounters)
	cfg.ProStatus = specFromEnv("CACHE_PRO_STATUS", cfg.ProStatus)
	cfg.SweepInterval = env.GetEnvDuration("CACHE_SWEEP_INTERVAL", cfg.SweepInterval)
	return cfg
}

func specFromEnv(prefix string, def cache.CacheSpec) cache.CacheSpec {
	return cache.CacheSpec{
		MaxEntries: env.GetEnvInt(prefix+"_MAX", def.MaxEntries),
		TTL:        env.GetEnvDuration(prefix+"_TTL", def.TTL),
	}
}

func limitsFromEnv() usage.Limits {
	def := usage.DefaultLimits()
	return usage.Limits{
		FreeDailyMessages:  int64(env.GetEnvInt("FREE_DAILY_MESSAGE_LIMIT", int(def.FreeDailyMessages))),
		FreeMonthlyExtreme: int64(env.GetEnvInt("FREE_MONTHLY_EXTREME_LIMIT", int(def.FreeMonthlyExtreme))),
		ProMonthlyExtreme:  int64(env.GetEnvInt("PRO_MONTHLY_EXTREME_LIMIT", int(def.ProMonthlyExtreme))),
	}
}
