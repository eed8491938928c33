package app

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/ledger"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/store"
)

// ExecuteDraw picks the winner of a raffle and settles the prize. override lets
// an administrator draw before the deadline.
//
// When the prize exceeds the revenue, the organizer pays the difference into
// the clearing account first. If the organizer cannot, the raffle is cancelled
// with full refunds and a *domain.DrawAbortedError carrying the refund report
// is returned; that cancellation is committed.
func (s *Service) ExecuteDraw(ctx context.Context, raffleID uuid.UUID, override bool) (*domain.DrawReceipt, error) {
	clearingID, err := s.clearing()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var (
		receipt *domain.DrawReceipt
		aborted *domain.DrawAbortedError
	)
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		raffle, err := tx.LockRaffle(ctx, raffleID, store.LockExclusive)
		if err != nil {
			return err
		}
		tickets, err := tx.ListTickets(ctx, raffle.ID)
		if err != nil {
			return err
		}
		if err := raffle.CheckDraw(now, len(tickets), override); err != nil {
			return err
		}
		if len(tickets) == 0 {
			return domain.ErrNoTicketsSold
		}

		sold := len(tickets)
		revenue := raffle.Revenue(sold)
		deficit := decimal.Zero
		if raffle.IsMonetary() {
			if gap := raffle.PrizeAmount.Sub(revenue); gap.IsPositive() {
				deficit = gap
			}
		}

		accountIDs := make([]uuid.UUID, 0, sold+1)
		accountIDs = append(accountIDs, raffle.OrganizerAccountID)
		for _, ticket := range tickets {
			accountIDs = append(accountIDs, ticket.AccountID)
		}
		book, err := s.openBook(ctx, tx, accountIDs...)
		if err != nil {
			return err
		}

		organizerAccount := raffle.OrganizerAccountID
		if deficit.IsPositive() && !book.HasSufficient(organizerAccount, deficit) {
			organizerBalance := book.Balance(organizerAccount)
			report, err := s.cancelAndRefund(ctx, tx, raffle, reasonDeficitAbort, now)
			if err != nil {
				return err
			}
			event := settledEvent(raffle, domain.RaffleStateCancelled, now)
			event.TicketsRefunded = report.TicketsRefunded
			event.TotalRefunded = report.TotalAmountRefunded
			event.Reason = reasonDeficitAbort
			if err := s.enqueue(ctx, tx, domain.EventDrawAborted, event); err != nil {
				return err
			}
			aborted = &domain.DrawAbortedError{
				Deficit:          deficit,
				OrganizerBalance: organizerBalance,
				Revenue:          revenue,
				PrizeAmount:      raffle.PrizeAmount,
				Report:           report,
			}
			return nil
		}

		idx := s.picker.Pick(sold)
		if idx < 0 || idx >= sold {
			idx = 0
		}
		winner := tickets[idx]
		if err := tx.MarkWinner(ctx, raffle.ID, winner.ID, winner.BuyerID, now); err != nil {
			if errors.Is(err, domain.ErrAlreadyDrawn) {
				return &domain.DrawNotReadyError{Reason: domain.DrawReasonAlreadyDrawn, Detail: "the draw has already been executed"}
			}
			return err
		}
		raffle.State = domain.RaffleStateSorted
		raffle.WinnerUserID = &winner.BuyerID
		raffle.WinnerTicketID = &winner.ID
		raffle.DrawnAt = &now

		surplus := decimal.Zero
		if raffle.IsMonetary() {
			posting := func(ref domain.LedgerReference) ledger.Posting {
				return ledger.Posting{Reference: ref, RaffleID: raffle.ID, TicketID: &winner.ID}
			}
			if deficit.IsPositive() {
				if err := book.Transfer(ctx, organizerAccount, clearingID, deficit, posting(domain.RefDrawDeficit)); err != nil {
					return err
				}
			}
			if err := book.Transfer(ctx, clearingID, winner.AccountID, raffle.PrizeAmount, posting(domain.RefDrawPrize)); err != nil {
				if errors.Is(err, domain.ErrInsufficientBalance) {
					return &domain.LedgerError{Op: "prize payout", AccountID: clearingID, Err: err}
				}
				return err
			}
			if gain := revenue.Sub(raffle.PrizeAmount); gain.IsPositive() {
				if err := book.Transfer(ctx, clearingID, organizerAccount, gain, posting(domain.RefDrawSurplus)); err != nil {
					if errors.Is(err, domain.ErrInsufficientBalance) {
						return &domain.LedgerError{Op: "surplus payout", AccountID: clearingID, Err: err}
					}
					return err
				}
				surplus = gain
			}
		}

		event := settledEvent(raffle, domain.RaffleStateSorted, now)
		event.WinnerUserID = &winner.BuyerID
		event.WinningNumber = &winner.Number
		if err := s.enqueue(ctx, tx, domain.EventRaffleDrawn, event); err != nil {
			return err
		}

		receipt = &domain.DrawReceipt{
			RaffleID:        raffle.ID,
			WinnerUserID:    winner.BuyerID,
			WinnerAccountID: winner.AccountID,
			WinnerTicketID:  winner.ID,
			WinningNumber:   winner.Number,
			PrizeAmount:     raffle.PrizeAmount,
			PrizeType:       raffle.PrizeType,
			TicketsSold:     sold,
			TotalRevenue:    revenue,
			DeficitCovered:  deficit,
			SurplusPaid:     surplus,
			Status:          raffle.StatusDisplay(now, sold),
			DrawnAt:         now,
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveDraw(drawOutcome(err))
		logSettlement("draw", raffleID, err)
		return nil, err
	}

	if aborted != nil {
		s.metrics.ObserveDraw("aborted")
		s.metrics.ObserveCancellation("draw_aborted")
		s.metrics.ObserveRefunds(aborted.Report.TicketsRefunded, aborted.Report.TotalAmountRefunded)
		log.Printf("level=warn component=settlement op=draw raffle_id=%s msg=\"draw aborted, raffle cancelled\" deficit=%s organizer_balance=%s tickets_refunded=%d",
			raffleID, aborted.Deficit.StringFixed(2), aborted.OrganizerBalance.StringFixed(2), aborted.Report.TicketsRefunded)
		return nil, aborted
	}

	s.metrics.ObserveDraw("drawn")
	log.Printf("level=info component=settlement op=draw raffle_id=%s winner_ticket_id=%s winning_number=%d prize=%s revenue=%s",
		raffleID, receipt.WinnerTicketID, receipt.WinningNumber, receipt.PrizeAmount.StringFixed(2), receipt.TotalRevenue.StringFixed(2))
	return receipt, nil
}

func drawOutcome(err error) string {
	var notReady *domain.DrawNotReadyError
	switch {
	case errors.As(err, &notReady):
		return string(notReady.Reason)
	case errors.Is(err, domain.ErrNoTicketsSold):
		return "no_tickets"
	case errors.Is(err, domain.ErrPersistenceConflict):
		return "conflict"
	default:
		return "error"
	}
}
