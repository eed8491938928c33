package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/app"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/config"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

func TestServiceOptions(t *testing.T) {
	clearing := uuid.New()
	cfg := config.Config{
		ClearingAccountID:          clearing.String(),
		RaffleEventsExchange:       "raffle.events",
		RefundShortfallPolicy:      config.RefundPolicyTolerant,
		AllowSortedAdminCancel:     true,
		SweepGracePeriod:           30 * time.Minute,
		SweepBatchSize:             25,
		SweepLockTTL:               time.Minute,
		PurchaseRateLimitPerMinute: 12,
	}

	opts, err := ServiceOptions(cfg)
	if err != nil {
		t.Fatalf("expected options to build, got %v", err)
	}
	if opts.ClearingAccountID != clearing {
		t.Fatalf("expected clearing %s, got %s", clearing, opts.ClearingAccountID)
	}
	if opts.RefundPolicy != app.RefundTolerant {
		t.Fatalf("expected tolerant policy, got %q", opts.RefundPolicy)
	}
	if !opts.AllowSortedAdminCancel || opts.SweepGracePeriod != 30*time.Minute || opts.SweepBatchSize != 25 || opts.PurchaseRateLimit != 12 {
		t.Fatalf("expected configuration to carry over, got %+v", opts)
	}

	if _, err := ServiceOptions(config.Config{}); !errors.Is(err, domain.ErrMissingClearingAccount) {
		t.Fatalf("expected ErrMissingClearingAccount, got %v", err)
	}
}

func TestNewServiceVerifiesClearingAccount(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		StoreDriver: config.StoreDriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "raffle.db"),
	}
	repo, err := OpenRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("expected sqlite store to open, got %v", err)
	}
	t.Cleanup(repo.Close)

	cfg.ClearingAccountID = uuid.NewString()
	if _, err := NewService(ctx, cfg, repo, nil, nil, nil); !errors.Is(err, domain.ErrMissingClearingAccount) {
		t.Fatalf("expected unknown clearing account to be rejected, got %v", err)
	}

	clearing := &domain.Account{UserID: uuid.New(), Balance: decimal.Zero, IsActive: true}
	if err := repo.CreateAccount(ctx, clearing); err != nil {
		t.Fatalf("expected clearing account insert to succeed, got %v", err)
	}
	cfg.ClearingAccountID = clearing.ID.String()
	svc, err := NewService(ctx, cfg, repo, nil, nil, nil)
	if err != nil {
		t.Fatalf("expected service to start, got %v", err)
	}
	if svc == nil {
		t.Fatalf("expected a service")
	}
}

func TestOpenRepositoryRequiresDatabaseURL(t *testing.T) {
	_, err := OpenRepository(context.Background(), config.Config{StoreDriver: config.StoreDriverPostgres})
	if err == nil {
		t.Fatalf("expected missing DATABASE_URL to fail")
	}
}

func TestOpenRedisWithoutURL(t *testing.T) {
	if client := OpenRedis(context.Background(), config.Config{}); client != nil {
		t.Fatalf("expected nil client when REDIS_URL is unset")
	}
}
