package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/ledger"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/store"
)

// ErrRateLimited is returned when a user exceeds the purchase rate limit.
var ErrRateLimited = errors.New("too many purchase attempts")

// RateLimitError carries the number of seconds until the limit window resets.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry in %ds", ErrRateLimited.Error(), e.RetryAfterSeconds)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// PurchaseTicket buys number in a raffle for buyerID, paying from req.AccountID.
// The buyer is debited, the clearing account credited and the ticket created in
// one transaction.
func (s *Service) PurchaseTicket(ctx context.Context, buyerID uuid.UUID, req domain.PurchaseTicketRequest) (*domain.Ticket, error) {
	ticket, err := s.purchaseTicket(ctx, buyerID, req)
	s.metrics.ObservePurchase(purchaseResult(err))
	logSettlement("purchase", req.RaffleID, err)
	return ticket, err
}

func (s *Service) purchaseTicket(ctx context.Context, buyerID uuid.UUID, req domain.PurchaseTicketRequest) (*domain.Ticket, error) {
	if buyerID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "buyer_id", Message: "is required"}
	}
	if req.RaffleID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "raffle_id", Message: "is required"}
	}
	if req.AccountID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "account_id", Message: "is required"}
	}
	clearingID, err := s.clearing()
	if err != nil {
		return nil, err
	}
	if req.AccountID == clearingID {
		return nil, &domain.ValidationError{Field: "account_id", Message: "cannot be the clearing account"}
	}
	if err := s.consumePurchaseRate(ctx, buyerID, req.RaffleID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var ticket *domain.Ticket
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		raffle, err := tx.LockRaffle(ctx, req.RaffleID, store.LockShare)
		if err != nil {
			return err
		}
		book, err := s.openBook(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}

		account, _ := book.Account(req.AccountID)
		if account.UserID != buyerID {
			return domain.ErrAccountOwnershipMismatch
		}
		if !account.IsActive {
			return domain.ErrAccountInactive
		}

		sold, err := tx.CountTickets(ctx, raffle.ID)
		if err != nil {
			return err
		}
		if !raffle.IsSellable(now, sold) {
			return domain.ErrRaffleNotSellable
		}
		if req.Number < 1 || req.Number > raffle.TotalNumbers {
			return fmt.Errorf("%w: number %d is out of range 1-%d", domain.ErrNumberUnavailable, req.Number, raffle.TotalNumbers)
		}

		candidate := &domain.Ticket{
			ID:        uuid.New(),
			RaffleID:  raffle.ID,
			BuyerID:   buyerID,
			AccountID: account.ID,
			Number:    req.Number,
		}
		if err := tx.InsertTicket(ctx, candidate); err != nil {
			return err
		}
		if !book.HasSufficient(account.ID, raffle.TicketPrice) {
			return domain.ErrInsufficientBalance
		}
		posting := ledger.Posting{Reference: domain.RefTicketPurchase, RaffleID: raffle.ID, TicketID: &candidate.ID}
		if err := book.Transfer(ctx, account.ID, clearingID, raffle.TicketPrice, posting); err != nil {
			return err
		}

		if err := s.enqueue(ctx, tx, domain.EventTicketPurchased, domain.TicketEvent{
			RaffleID:   raffle.ID,
			TicketID:   candidate.ID,
			BuyerID:    buyerID,
			AccountID:  account.ID,
			Number:     candidate.Number,
			Amount:     raffle.TicketPrice,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		ticket = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=settlement op=purchase raffle_id=%s ticket_id=%s number=%d buyer_id=%s", ticket.RaffleID, ticket.ID, ticket.Number, buyerID)
	return ticket, nil
}

func (s *Service) consumePurchaseRate(ctx context.Context, buyerID, raffleID uuid.UUID) error {
	if s.limiter == nil || s.opts.PurchaseRateLimit <= 0 {
		return nil
	}
	quota, err := s.limiter.ConsumePurchase(ctx, buyerID, raffleID, s.opts.PurchaseRateLimit, purchaseRateWindow, s.clock.Now())
	if err != nil {
		log.Printf("level=warn component=settlement op=purchase msg=\"rate limiter unavailable; allowing request\" buyer_id=%s raffle_id=%s err=%v", buyerID, raffleID, err)
		return nil
	}
	if !quota.Allowed {
		return &RateLimitError{RetryAfterSeconds: retryAfterSeconds(quota.RetryAfter)}
	}
	return nil
}

// retryAfterSeconds rounds d up to whole seconds for the Retry-After header.
func retryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

func purchaseResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNumberUnavailable):
		return "number_unavailable"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrRaffleNotSellable):
		return "not_sellable"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrAccountOwnershipMismatch):
		return "rejected"
	case errors.Is(err, domain.ErrPersistenceConflict):
		return "conflict"
	default:
		return "error"
	}
}

// RefundTicket returns a single ticket's price to its buyer and deletes the
// ticket. Only the buyer may ask, and only while the raffle is still open.
func (s *Service) RefundTicket(ctx context.Context, requesterID, ticketID uuid.UUID) (*domain.TicketRefund, error) {
	if ticketID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "ticket_id", Message: "is required"}
	}
	if _, err := s.clearing(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var refund *domain.TicketRefund
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		peek, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if peek.BuyerID != requesterID {
			return domain.ErrNotTicketOwner
		}

		raffle, err := tx.LockRaffle(ctx, peek.RaffleID, store.LockShare)
		if err != nil {
			return err
		}
		if raffle.State != domain.RaffleStateActive || raffle.HasWinner() {
			return domain.ErrTicketNotRefundable
		}
		// Re-read under the raffle lock; a concurrent refund may have won.
		ticket, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}

		book, err := s.openBook(ctx, tx, ticket.AccountID)
		if err != nil {
			return err
		}
		refunded, err := s.refundOne(ctx, tx, book, raffle, ticket, true)
		if err != nil {
			return err
		}
		if !refunded {
			return domain.ErrClearingShortfall
		}
		if err := s.enqueue(ctx, tx, domain.EventTicketRefunded, domain.TicketEvent{
			RaffleID:   raffle.ID,
			TicketID:   ticket.ID,
			BuyerID:    ticket.BuyerID,
			AccountID:  ticket.AccountID,
			Number:     ticket.Number,
			Amount:     raffle.TicketPrice,
			OccurredAt: now,
		}); err != nil {
			return err
		}

		refund = &domain.TicketRefund{
			TicketID:   ticket.ID,
			RaffleID:   raffle.ID,
			AccountID:  ticket.AccountID,
			Number:     ticket.Number,
			Amount:     raffle.TicketPrice,
			RefundedAt: now,
		}
		return nil
	})
	if err != nil {
		logSettlement("refund_ticket", uuid.Nil, err)
		return nil, err
	}

	s.metrics.ObserveRefunds(1, refund.Amount)
	log.Printf("level=info component=settlement op=refund_ticket raffle_id=%s ticket_id=%s amount=%s", refund.RaffleID, refund.TicketID, refund.Amount.StringFixed(2))
	return refund, nil
}

// refundOne deletes ticket and moves its price from the clearing account back to
// the paying account. When the clearing account cannot cover the price, strict
// returns domain.ErrClearingShortfall and non-strict leaves the ticket deleted
// but unrefunded, reporting false.
func (s *Service) refundOne(ctx context.Context, tx store.Tx, book *ledger.Book, raffle *domain.Raffle, ticket *domain.Ticket, strict bool) (bool, error) {
	if err := tx.DeleteTicket(ctx, ticket.ID); err != nil {
		return false, err
	}

	price := raffle.TicketPrice
	clearingID := s.opts.ClearingAccountID
	if !book.HasSufficient(clearingID, price) {
		if strict {
			return false, fmt.Errorf("%w: ticket %s needs %s, clearing holds %s",
				domain.ErrClearingShortfall, ticket.ID, price.StringFixed(2), book.Balance(clearingID).StringFixed(2))
		}
		log.Printf("level=warn component=settlement op=refund raffle_id=%s ticket_id=%s msg=\"clearing account shortfall; ticket removed without refund\" amount=%s",
			raffle.ID, ticket.ID, price.StringFixed(2))
		return false, nil
	}

	posting := ledger.Posting{Reference: domain.RefTicketRefund, RaffleID: raffle.ID, TicketID: &ticket.ID}
	if err := book.Transfer(ctx, clearingID, ticket.AccountID, price, posting); err != nil {
		return false, err
	}
	return true, nil
}
