/**
 * @description
 * Core business logic of the raffle settlement service. The Service owns every
 * money-moving use case (ticket purchase and refund, draw, cancellation and the
 * expiry sweep) and runs each of them as one store transaction so that ledger
 * postings, ticket rows, the raffle state and the outbox events of an operation
 * commit together.
 *
 * Key features:
 * - All money moves through the configured clearing account.
 * - Accounts are locked in ascending id order after the raffle row.
 * - Settlement events are written to the outbox in the same transaction.
 *
 * @dependencies
 * - internal/store: repository and transaction contracts.
 * - internal/ledger: debit/credit postings over locked accounts.
 * - internal/metrics: Prometheus collectors.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/clock"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/ledger"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/metrics"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/store"
)

// RefundPolicy decides what happens when the clearing account cannot cover a
// refund during a bulk cancellation.
type RefundPolicy string

const (
	// RefundStrict fails the whole cancellation with domain.ErrClearingShortfall.
	RefundStrict RefundPolicy = "strict"
	// RefundTolerant deletes the ticket without refunding it and reports it as skipped.
	RefundTolerant RefundPolicy = "tolerant"
)

const (
	defaultSweepBatchSize = 200
	defaultSweepLockTTL   = 2 * time.Minute
	purchaseRateWindow    = time.Minute
)

// Options configures a Service.
type Options struct {
	ClearingAccountID      uuid.UUID
	EventsExchange         string
	RefundPolicy           RefundPolicy
	AllowSortedAdminCancel bool
	SweepGracePeriod       time.Duration
	SweepBatchSize         int
	SweepLockTTL           time.Duration
	PurchaseRateLimit      int
}

// Service provides the settlement use cases.
type Service struct {
	repo    store.Repository
	clock   clock.Clock
	metrics *metrics.Metrics
	picker  WinnerPicker
	locker  Locker
	limiter RateLimiter
	opts    Options
}

// NewService creates a new settlement service. A nil clock falls back to the
// wall clock and a nil metrics value disables instrumentation.
func NewService(repo store.Repository, clk clock.Clock, m *metrics.Metrics, opts Options) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if opts.RefundPolicy != RefundTolerant {
		opts.RefundPolicy = RefundStrict
	}
	if opts.SweepBatchSize <= 0 {
		opts.SweepBatchSize = defaultSweepBatchSize
	}
	if opts.SweepLockTTL <= 0 {
		opts.SweepLockTTL = defaultSweepLockTTL
	}
	if opts.SweepGracePeriod < 0 {
		opts.SweepGracePeriod = 0
	}
	return &Service{
		repo:    repo,
		clock:   clk,
		metrics: m,
		picker:  NewRandomPicker(),
		locker:  noopLocker{},
		opts:    opts,
	}
}

// SetWinnerPicker replaces the random source used by draws.
func (s *Service) SetWinnerPicker(p WinnerPicker) {
	if p != nil {
		s.picker = p
	}
}

// SetLocker installs the distributed lock used by the expiry sweep.
func (s *Service) SetLocker(l Locker) {
	if l != nil {
		s.locker = l
	}
}

// SetRateLimiter installs the per buyer and raffle purchase rate limiter.
func (s *Service) SetRateLimiter(l RateLimiter) {
	s.limiter = l
}

// VerifyClearingAccount checks that the configured clearing account exists and
// is active. Binaries call it at startup and refuse to run when it fails.
func (s *Service) VerifyClearingAccount(ctx context.Context) error {
	if s.opts.ClearingAccountID == uuid.Nil {
		return domain.ErrMissingClearingAccount
	}
	account, err := s.repo.GetAccount(ctx, s.opts.ClearingAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("%w: account %s does not exist", domain.ErrMissingClearingAccount, s.opts.ClearingAccountID)
		}
		return fmt.Errorf("failed to load clearing account: %w", err)
	}
	if !account.IsActive {
		return fmt.Errorf("%w: account %s is not active", domain.ErrMissingClearingAccount, account.ID)
	}
	return nil
}

func (s *Service) clearing() (uuid.UUID, error) {
	if s.opts.ClearingAccountID == uuid.Nil {
		return uuid.Nil, domain.ErrMissingClearingAccount
	}
	return s.opts.ClearingAccountID, nil
}

// openBook locks ids plus the clearing account. A missing clearing account is
// reported as domain.ErrMissingClearingAccount.
func (s *Service) openBook(ctx context.Context, tx store.Tx, ids ...uuid.UUID) (*ledger.Book, error) {
	all := make([]uuid.UUID, 0, len(ids)+1)
	all = append(all, ids...)
	all = append(all, s.opts.ClearingAccountID)

	book, err := ledger.Open(ctx, tx, all...)
	if err != nil {
		var missing *ledger.MissingAccountError
		if errors.As(err, &missing) && missing.AccountID == s.opts.ClearingAccountID {
			return nil, fmt.Errorf("%w: account %s does not exist", domain.ErrMissingClearingAccount, missing.AccountID)
		}
		return nil, err
	}
	return book, nil
}

func (s *Service) enqueue(ctx context.Context, tx store.Tx, routingKey string, payload interface{}) error {
	if s.opts.EventsExchange == "" {
		return nil
	}
	return tx.EnqueueEvent(ctx, s.opts.EventsExchange, routingKey, payload)
}

func settledEvent(raffle *domain.Raffle, state domain.RaffleState, at time.Time) domain.RaffleSettledEvent {
	return domain.RaffleSettledEvent{
		RaffleID:      raffle.ID,
		State:         state,
		PrizeAmount:   raffle.PrizeAmount,
		TotalRefunded: decimal.Zero,
		OccurredAt:    at,
	}
}

func logSettlement(op string, raffleID uuid.UUID, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrLedgerInconsistent), errors.Is(err, domain.ErrMissingClearingAccount):
		log.Printf("level=error component=settlement op=%s raffle_id=%s msg=\"settlement invariant violated\" err=%v", op, raffleID, err)
	case errors.Is(err, domain.ErrPersistenceConflict):
		log.Printf("level=warn component=settlement op=%s raffle_id=%s msg=\"lost concurrent update\" err=%v", op, raffleID, err)
	}
}
