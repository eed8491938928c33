package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/store"
)

// SweepExpiredRaffles settles every active raffle whose deadline passed more than
// the grace period ago: raffles that reached their minimum are drawn, the rest
// are cancelled with full refunds. dryRun only reports the decisions and force
// ignores the grace period. A failure on one raffle is recorded in the report
// and never stops the others.
func (s *Service) SweepExpiredRaffles(ctx context.Context, dryRun, force bool) (*domain.SweepReport, error) {
	now := s.clock.Now()
	grace := s.opts.SweepGracePeriod
	if force {
		grace = 0
	}

	report := &domain.SweepReport{
		StartedAt:     now,
		DryRun:        dryRun,
		Force:         force,
		TotalRefunded: decimal.Zero,
		Items:         []domain.SweepItem{},
	}

	// Raffles that stay active (skipped, failed, dry run) would come back on the
	// next page, so pages resume after the last raffle seen.
	var cursor *store.RaffleCursor
	for {
		raffles, err := s.repo.ListExpiredRaffles(ctx, now.Add(-grace), cursor, s.opts.SweepBatchSize)
		if err != nil {
			s.metrics.ObserveSweep(report.Found, report.HasFailures(), err)
			return nil, fmt.Errorf("failed to list expired raffles: %w", err)
		}
		report.Found += len(raffles)

		for i := range raffles {
			if err := ctx.Err(); err != nil {
				s.metrics.ObserveSweep(report.Found, report.HasFailures(), err)
				return report, err
			}

			item, refunded := s.sweepOne(ctx, raffles[i], dryRun)
			report.Items = append(report.Items, item)
			switch item.Outcome {
			case domain.SweepOutcomeDrawn:
				report.Drawn++
			case domain.SweepOutcomeCancelled:
				report.Cancelled++
			case domain.SweepOutcomeAborted:
				report.Aborted++
			case domain.SweepOutcomeSkipped:
				report.Skipped++
			case domain.SweepOutcomeFailed:
				report.Failed++
			}
			report.TicketsRefunded += refunded
			report.TotalRefunded = report.TotalRefunded.Add(item.Refunded)
		}

		if len(raffles) < s.opts.SweepBatchSize {
			break
		}
		cursor = store.CursorAfter(raffles[len(raffles)-1])
	}

	s.metrics.ObserveSweep(report.Found, report.HasFailures(), nil)
	log.Printf("level=info component=sweep dry_run=%t force=%t found=%d drawn=%d cancelled=%d aborted=%d skipped=%d failed=%d refunded=%s",
		dryRun, force, report.Found, report.Drawn, report.Cancelled, report.Aborted, report.Skipped, report.Failed, report.TotalRefunded.StringFixed(2))
	return report, nil
}

func (s *Service) sweepOne(ctx context.Context, raffle domain.Raffle, dryRun bool) (item domain.SweepItem, refunded int) {
	item = domain.SweepItem{
		RaffleID:     raffle.ID,
		Name:         raffle.Name,
		DrawDeadline: raffle.DrawDeadline,
		Minimum:      raffle.MinimumNumbers,
		Refunded:     decimal.Zero,
	}
	defer func() {
		if r := recover(); r != nil {
			item.Outcome = domain.SweepOutcomeFailed
			item.Error = fmt.Sprintf("panic: %v", r)
			log.Printf("level=error component=sweep raffle_id=%s msg=\"panic while settling raffle\" panic=%v", raffle.ID, r)
		}
	}()

	sold, err := s.repo.CountTickets(ctx, raffle.ID)
	if err != nil {
		return failItem(item, err), 0
	}
	item.NumbersSold = sold
	item.Decision = domain.SweepDecisionCancel
	if raffle.MinimumReached(sold) {
		item.Decision = domain.SweepDecisionDraw
	}
	if dryRun {
		item.Outcome = domain.SweepOutcomeDryRun
		return item, 0
	}

	release, acquired, err := s.locker.Acquire(ctx, "sweep:"+raffle.ID.String(), s.opts.SweepLockTTL)
	if release == nil {
		release = func() {}
	}
	if err != nil {
		log.Printf("level=warn component=sweep raffle_id=%s msg=\"lock unavailable; relying on store guards\" err=%v", raffle.ID, err)
	} else if !acquired {
		item.Outcome = domain.SweepOutcomeSkipped
		item.Error = "locked by another sweep"
		return item, 0
	}
	defer release()

	if item.Decision == domain.SweepDecisionDraw {
		_, err := s.ExecuteDraw(ctx, raffle.ID, false)
		var aborted *domain.DrawAbortedError
		var notReady *domain.DrawNotReadyError
		switch {
		case err == nil:
			item.Outcome = domain.SweepOutcomeDrawn
			return item, 0
		case errors.As(err, &aborted):
			item.Outcome = domain.SweepOutcomeAborted
			item.Refunded = aborted.Report.TotalAmountRefunded
			return item, aborted.Report.TicketsRefunded
		case errors.As(err, &notReady) && notReady.Reason == domain.DrawReasonMinimumNotReached:
			item.Decision = domain.SweepDecisionCancel
		case errors.As(err, &notReady):
			item.Outcome = domain.SweepOutcomeSkipped
			item.Error = err.Error()
			return item, 0
		default:
			return failItem(item, err), 0
		}
	}

	report, err := s.cancel(ctx, raffle.ID, "expiry", reasonMinimumNotMet, func(locked *domain.Raffle) error {
		if locked.State == domain.RaffleStateCancelled {
			return domain.ErrAlreadyCancelled
		}
		if locked.HasWinner() || locked.State == domain.RaffleStateSorted {
			return domain.ErrRaffleSettled
		}
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrRaffleSettled):
		item.Outcome = domain.SweepOutcomeSkipped
		item.Error = err.Error()
		return item, 0
	case err != nil:
		return failItem(item, err), 0
	case report.AlreadyCancelled:
		item.Outcome = domain.SweepOutcomeSkipped
		return item, 0
	}
	item.Outcome = domain.SweepOutcomeCancelled
	item.Refunded = report.TotalAmountRefunded
	return item, report.TicketsRefunded
}

func failItem(item domain.SweepItem, err error) domain.SweepItem {
	item.Outcome = domain.SweepOutcomeFailed
	item.Error = err.Error()
	log.Printf("level=error component=sweep raffle_id=%s msg=\"failed to settle expired raffle\" err=%v", item.RaffleID, err)
	return item
}
