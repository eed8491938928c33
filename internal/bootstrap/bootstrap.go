/**
 * @description
 * Startup wiring shared by the raffle binaries: opening the configured store,
 * connecting Redis and building the settlement service with its options.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL pool.
 * - github.com/redis/go-redis/v9: rate limiter and sweep lock backend.
 */

package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/app"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/clock"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/config"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/metrics"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/store"
)

// OpenRepository connects the store selected by cfg.StoreDriver.
func OpenRepository(ctx context.Context, cfg config.Config) (store.Repository, error) {
	if cfg.StoreDriver == config.StoreDriverSQLite {
		repo, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		log.Printf("level=info component=bootstrap msg=\"sqlite store opened\" path=%s", cfg.SQLitePath)
		return repo, nil
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the %s store", cfg.StoreDriver)
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := store.NewPostgresRepository(dbpool)
	if cfg.MigrateOnStart {
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		log.Println("level=info component=bootstrap msg=\"postgres schema applied\"")
	}
	log.Println("level=info component=bootstrap msg=\"database connected\"")
	return repo, nil
}

// OpenRedis returns a connected client, or nil when REDIS_URL is unset or the
// server cannot be reached. Callers degrade to running without Redis.
func OpenRedis(ctx context.Context, cfg config.Config) *redis.Client {
	if cfg.RedisURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting and sweep locks disabled\" env=REDIS_URL")
		return nil
	}
	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting and sweep locks disabled\" err=%v", err)
		return nil
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting and sweep locks disabled\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}

// ServiceOptions maps configuration onto settlement options.
func ServiceOptions(cfg config.Config) (app.Options, error) {
	clearingID, err := cfg.ClearingAccount()
	if err != nil {
		return app.Options{}, err
	}
	policy := app.RefundStrict
	if cfg.RefundShortfallPolicy == config.RefundPolicyTolerant {
		policy = app.RefundTolerant
	}
	return app.Options{
		ClearingAccountID:      clearingID,
		EventsExchange:         cfg.RaffleEventsExchange,
		RefundPolicy:           policy,
		AllowSortedAdminCancel: cfg.AllowSortedAdminCancel,
		SweepGracePeriod:       cfg.SweepGracePeriod,
		SweepBatchSize:         cfg.SweepBatchSize,
		SweepLockTTL:           cfg.SweepLockTTL,
		PurchaseRateLimit:      cfg.PurchaseRateLimitPerMinute,
	}, nil
}

// NewService builds the settlement service and refuses to return one whose
// clearing account is missing or inactive. A nil clk uses the wall clock and a
// nil redisClient leaves rate limiting and sweep locking off.
func NewService(ctx context.Context, cfg config.Config, repo store.Repository, clk clock.Clock, m *metrics.Metrics, redisClient *redis.Client) (*app.Service, error) {
	opts, err := ServiceOptions(cfg)
	if err != nil {
		return nil, err
	}
	svc := app.NewService(repo, clk, m, opts)
	if redisClient != nil {
		svc.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix+":rate_limit"))
		svc.SetLocker(app.NewRedisLocker(redisClient, cfg.RedisKeyPrefix+":lock"))
	}
	if err := svc.VerifyClearingAccount(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}
