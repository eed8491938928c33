/**
 * @description
 * Configuration management for the raffle settlement binaries. Viper reads an
 * optional .env file and the process environment; command line tools may bind
 * pflag flags onto the same keys before calling LoadConfig.
 *
 * @dependencies
 * - github.com/spf13/viper: application configuration.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	RefundPolicyStrict   = "strict"
	RefundPolicyTolerant = "tolerant"
)

// Config holds all the configuration variables for the raffle binaries.
type Config struct {
	ServerPort                 string        `mapstructure:"SERVER_PORT"`
	DatabaseURL                string        `mapstructure:"DATABASE_URL"`
	StoreDriver                string        `mapstructure:"STORE_DRIVER"`
	SQLitePath                 string        `mapstructure:"SQLITE_PATH"`
	MigrateOnStart             bool          `mapstructure:"MIGRATE_ON_START"`
	ClearingAccountID          string        `mapstructure:"CLEARING_ACCOUNT_ID"`
	JWTSecret                  string        `mapstructure:"JWT_SECRET"`
	JWTIssuer                  string        `mapstructure:"JWT_ISSUER"`
	JWTAudience                string        `mapstructure:"JWT_AUDIENCE"`
	RabbitMQURL                string        `mapstructure:"RABBITMQ_URL"`
	RaffleEventsExchange       string        `mapstructure:"RAFFLE_EVENTS_EXCHANGE"`
	OutboxBatchSize            int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxPollInterval         time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	RedisURL                   string        `mapstructure:"REDIS_URL"`
	RedisKeyPrefix             string        `mapstructure:"REDIS_KEY_PREFIX"`
	PurchaseRateLimitPerMinute int           `mapstructure:"PURCHASE_RATE_LIMIT_PER_MINUTE"`
	SweepSchedule              string        `mapstructure:"SWEEP_SCHEDULE"`
	SweepGracePeriod           time.Duration `mapstructure:"SWEEP_GRACE_PERIOD"`
	SweepLockTTL               time.Duration `mapstructure:"SWEEP_LOCK_TTL"`
	SweepBatchSize             int           `mapstructure:"SWEEP_BATCH_SIZE"`
	RefundShortfallPolicy      string        `mapstructure:"REFUND_SHORTFALL_POLICY"`
	AllowSortedAdminCancel     bool          `mapstructure:"ALLOW_SORTED_ADMIN_CANCEL"`
}

// LoadConfig reads configuration from environment variables and the optional
// .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	viper.SetDefault("SQLITE_PATH", "raffle.db")
	viper.SetDefault("MIGRATE_ON_START", false)
	viper.SetDefault("JWT_ISSUER", "")
	viper.SetDefault("JWT_AUDIENCE", "")
	viper.SetDefault("RAFFLE_EVENTS_EXCHANGE", "raffle.events")
	viper.SetDefault("OUTBOX_BATCH_SIZE", 50)
	viper.SetDefault("OUTBOX_POLL_INTERVAL", "2s")
	viper.SetDefault("REDIS_KEY_PREFIX", "raffle")
	viper.SetDefault("PURCHASE_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("SWEEP_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("SWEEP_GRACE_PERIOD", "1h")
	viper.SetDefault("SWEEP_LOCK_TTL", "2m")
	viper.SetDefault("SWEEP_BATCH_SIZE", 200)
	viper.SetDefault("REFUND_SHORTFALL_POLICY", RefundPolicyStrict)
	viper.SetDefault("ALLOW_SORTED_ADMIN_CANCEL", false)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("SQLITE_PATH")
	_ = viper.BindEnv("MIGRATE_ON_START")
	_ = viper.BindEnv("CLEARING_ACCOUNT_ID")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RAFFLE_EVENTS_EXCHANGE")
	_ = viper.BindEnv("OUTBOX_BATCH_SIZE")
	_ = viper.BindEnv("OUTBOX_POLL_INTERVAL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "RAFFLE_REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("PURCHASE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("SWEEP_SCHEDULE")
	_ = viper.BindEnv("SWEEP_GRACE_PERIOD")
	_ = viper.BindEnv("SWEEP_LOCK_TTL")
	_ = viper.BindEnv("SWEEP_BATCH_SIZE")
	_ = viper.BindEnv("REFUND_SHORTFALL_POLICY")
	_ = viper.BindEnv("ALLOW_SORTED_ADMIN_CANCEL")

	// A missing .env file is fine.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.ClearingAccountID = strings.TrimSpace(config.ClearingAccountID)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	switch config.StoreDriver {
	case StoreDriverPostgres, StoreDriverSQLite:
	default:
		log.Printf("level=warn component=config msg=\"unknown STORE_DRIVER; falling back to postgres\" value=%q", config.StoreDriver)
		config.StoreDriver = StoreDriverPostgres
	}

	config.RefundShortfallPolicy = strings.ToLower(strings.TrimSpace(config.RefundShortfallPolicy))
	switch config.RefundShortfallPolicy {
	case RefundPolicyStrict, RefundPolicyTolerant:
	default:
		log.Printf("level=warn component=config msg=\"unknown REFUND_SHORTFALL_POLICY; using strict\" value=%q", config.RefundShortfallPolicy)
		config.RefundShortfallPolicy = RefundPolicyStrict
	}

	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "raffle"
	}
	if strings.TrimSpace(config.RaffleEventsExchange) == "" {
		config.RaffleEventsExchange = "raffle.events"
	}
	if strings.TrimSpace(config.SweepSchedule) == "" {
		config.SweepSchedule = "*/5 * * * *"
	}

	if config.OutboxBatchSize <= 0 || config.OutboxBatchSize > 500 {
		config.OutboxBatchSize = 50
	}
	if config.OutboxPollInterval <= 0 {
		config.OutboxPollInterval = 2 * time.Second
	}
	if config.PurchaseRateLimitPerMinute < 0 {
		config.PurchaseRateLimitPerMinute = 0
	}
	if config.SweepGracePeriod < 0 {
		log.Printf("level=warn component=config msg=\"negative sweep grace period; coercing to zero\" value=%s", config.SweepGracePeriod)
		config.SweepGracePeriod = 0
	}
	if config.SweepLockTTL < 10*time.Second {
		config.SweepLockTTL = 2 * time.Minute
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = 200
	}
	if config.AllowSortedAdminCancel {
		log.Printf("level=warn component=config msg=\"administrative cancellation of drawn raffles is enabled; payouts are not reversed\"")
	}

	return
}

// ClearingAccount parses the configured clearing account id.
func (c Config) ClearingAccount() (uuid.UUID, error) {
	if c.ClearingAccountID == "" {
		return uuid.Nil, domain.ErrMissingClearingAccount
	}
	id, err := uuid.Parse(c.ClearingAccountID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: CLEARING_ACCOUNT_ID %q is not a valid account id", domain.ErrMissingClearingAccount, c.ClearingAccountID)
	}
	return id, nil
}
