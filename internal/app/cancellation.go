package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/store"
)

const (
	reasonOrganizerCancel = "cancelled by organizer"
	reasonAdminCancel     = "cancelled by administrator"
	reasonMinimumNotMet   = "minimum not reached"
	reasonDeficitAbort    = "organizer could not cover the prize deficit"
)

// CancelRaffle cancels a raffle on behalf of its organizer and refunds every
// sold ticket. Cancelling an already cancelled raffle is a no-op that returns a
// report with AlreadyCancelled set.
func (s *Service) CancelRaffle(ctx context.Context, requesterID, raffleID uuid.UUID, reason string) (*domain.RefundReport, error) {
	if strings.TrimSpace(reason) == "" {
		reason = reasonOrganizerCancel
	}
	return s.cancel(ctx, raffleID, "organizer", reason, func(raffle *domain.Raffle) error {
		return raffle.CheckOrganizerCancel(requesterID)
	})
}

// AdminCancelRaffle cancels a raffle without the organizer check. Drawn raffles
// are rejected with domain.ErrRaffleSettled unless sorted cancellation is enabled.
func (s *Service) AdminCancelRaffle(ctx context.Context, raffleID uuid.UUID, reason string) (*domain.RefundReport, error) {
	if strings.TrimSpace(reason) == "" {
		reason = reasonAdminCancel
	}
	return s.cancel(ctx, raffleID, "admin", reason, func(raffle *domain.Raffle) error {
		if err := raffle.CheckAdminCancel(s.opts.AllowSortedAdminCancel); err != nil {
			return err
		}
		if raffle.HasWinner() {
			log.Printf("level=warn component=settlement op=admin_cancel raffle_id=%s msg=\"cancelling a drawn raffle; prize payout is not reversed\"", raffle.ID)
		}
		return nil
	})
}

func (s *Service) cancel(ctx context.Context, raffleID uuid.UUID, origin, reason string, guard func(*domain.Raffle) error) (*domain.RefundReport, error) {
	if _, err := s.clearing(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var report *domain.RefundReport
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		raffle, err := tx.LockRaffle(ctx, raffleID, store.LockExclusive)
		if err != nil {
			return err
		}
		if err := guard(raffle); err != nil {
			if errors.Is(err, domain.ErrAlreadyCancelled) {
				report = alreadyCancelledReport(raffle)
				return nil
			}
			return err
		}
		report, err = s.cancelAndRefund(ctx, tx, raffle, reason, now)
		return err
	})
	if err != nil {
		logSettlement("cancel", raffleID, err)
		return nil, err
	}

	if !report.AlreadyCancelled {
		s.metrics.ObserveCancellation(origin)
		s.metrics.ObserveRefunds(report.TicketsRefunded, report.TotalAmountRefunded)
		log.Printf("level=info component=settlement op=cancel origin=%s raffle_id=%s tickets_refunded=%d tickets_skipped=%d amount=%s",
			origin, raffleID, report.TicketsRefunded, report.TicketsSkipped, report.TotalAmountRefunded.StringFixed(2))
	}
	return report, nil
}

// cancelAndRefund refunds every ticket of a raffle locked exclusively by tx,
// deletes the tickets and moves the raffle to cancelled.
func (s *Service) cancelAndRefund(ctx context.Context, tx store.Tx, raffle *domain.Raffle, reason string, now time.Time) (*domain.RefundReport, error) {
	if raffle.State == domain.RaffleStateCancelled {
		return alreadyCancelledReport(raffle), nil
	}

	wasDrawn := raffle.HasWinner() || raffle.State == domain.RaffleStateSorted
	tickets, err := tx.ListTickets(ctx, raffle.ID)
	if err != nil {
		return nil, err
	}

	accountIDs := make([]uuid.UUID, 0, len(tickets))
	for _, ticket := range tickets {
		accountIDs = append(accountIDs, ticket.AccountID)
	}
	book, err := s.openBook(ctx, tx, accountIDs...)
	if err != nil {
		return nil, err
	}

	report := &domain.RefundReport{
		RaffleID:            raffle.ID,
		TotalAmountRefunded: decimal.Zero,
		Reason:              reason,
		CancelledAt:         now,
		WasAlreadyDrawn:     wasDrawn,
	}
	strict := s.opts.RefundPolicy == RefundStrict
	for i := range tickets {
		refunded, err := s.refundOne(ctx, tx, book, raffle, &tickets[i], strict)
		if err != nil {
			return nil, err
		}
		if !refunded {
			report.TicketsSkipped++
			continue
		}
		report.TicketsRefunded++
		report.TotalAmountRefunded = report.TotalAmountRefunded.Add(raffle.TicketPrice)
	}

	if err := tx.CancelRaffle(ctx, raffle.ID, reason, now); err != nil {
		return nil, err
	}

	event := settledEvent(raffle, domain.RaffleStateCancelled, now)
	event.TicketsRefunded = report.TicketsRefunded
	event.TotalRefunded = report.TotalAmountRefunded
	event.Reason = reason
	if err := s.enqueue(ctx, tx, domain.EventRaffleCancelled, event); err != nil {
		return nil, err
	}
	return report, nil
}

func alreadyCancelledReport(raffle *domain.Raffle) *domain.RefundReport {
	report := &domain.RefundReport{
		RaffleID:            raffle.ID,
		TotalAmountRefunded: decimal.Zero,
		WasAlreadyDrawn:     raffle.HasWinner(),
		AlreadyCancelled:    true,
	}
	if raffle.CancelReason != nil {
		report.Reason = *raffle.CancelReason
	}
	if raffle.CancelledAt != nil {
		report.CancelledAt = *raffle.CancelledAt
	}
	return report
}
