package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/store"
)

const defaultLedgerPageSize = 50

// CreateRaffle validates req and stores a new active raffle organized by
// organizerID. The prize account must belong to the organizer.
func (s *Service) CreateRaffle(ctx context.Context, organizerID uuid.UUID, req domain.CreateRaffleRequest) (*domain.Raffle, error) {
	if organizerID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "organizer_id", Message: "is required"}
	}
	now := s.clock.Now()
	start := now
	if req.SalesStart != nil {
		start = *req.SalesStart
	}
	if req.PrizeType == "" {
		req.PrizeType = domain.PrizeTypeMonetary
	}
	if err := req.Validate(start, now); err != nil {
		return nil, err
	}
	if req.OrganizerAccountID == s.opts.ClearingAccountID {
		return nil, &domain.ValidationError{Field: "organizer_account_id", Message: "cannot be the clearing account"}
	}

	account, err := s.repo.GetAccount(ctx, req.OrganizerAccountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != organizerID {
		return nil, domain.ErrAccountOwnershipMismatch
	}
	if !account.IsActive {
		return nil, domain.ErrAccountInactive
	}

	raffle := &domain.Raffle{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(req.Name),
		Description:        strings.TrimSpace(req.Description),
		OrganizerID:        organizerID,
		OrganizerAccountID: account.ID,
		TicketPrice:        req.TicketPrice,
		TotalNumbers:       req.TotalNumbers,
		MinimumNumbers:     req.MinimumNumbers,
		PrizeAmount:        req.PrizeAmount,
		PrizeType:          req.PrizeType,
		State:              domain.RaffleStateActive,
		SalesStart:         start,
		DrawDeadline:       req.DrawDeadline,
	}
	if err := s.repo.CreateRaffle(ctx, raffle); err != nil {
		return nil, fmt.Errorf("failed to create raffle: %w", err)
	}

	log.Printf("level=info component=settlement op=create_raffle raffle_id=%s organizer_id=%s total_numbers=%d prize=%s",
		raffle.ID, organizerID, raffle.TotalNumbers, raffle.PrizeAmount.StringFixed(2))
	return raffle, nil
}

// GetRaffle returns a raffle with its sales figures and status text.
func (s *Service) GetRaffle(ctx context.Context, raffleID uuid.UUID) (*domain.RaffleView, error) {
	raffle, err := s.repo.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	sold, err := s.repo.CountTickets(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	return s.raffleView(raffle, sold), nil
}

func (s *Service) raffleView(raffle *domain.Raffle, sold int) *domain.RaffleView {
	available := raffle.TotalNumbers - sold
	if available < 0 || raffle.State != domain.RaffleStateActive {
		available = 0
	}
	return &domain.RaffleView{
		Raffle:           *raffle,
		NumbersSold:      sold,
		NumbersAvailable: available,
		MinimumReached:   raffle.MinimumReached(sold),
		Status:           raffle.StatusDisplay(s.clock.Now(), sold),
	}
}

// ListRaffles returns raffles in the given state, soonest deadline first. An
// empty state lists every raffle.
func (s *Service) ListRaffles(ctx context.Context, state domain.RaffleState, limit, offset int) ([]domain.RaffleView, error) {
	return s.listRaffles(ctx, store.RaffleFilter{State: state, Limit: limit, Offset: offset})
}

// ListRafflesByOrganizer returns every raffle organized by organizerID.
func (s *Service) ListRafflesByOrganizer(ctx context.Context, organizerID uuid.UUID, limit, offset int) ([]domain.RaffleView, error) {
	if organizerID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "organizer_id", Message: "is required"}
	}
	return s.listRaffles(ctx, store.RaffleFilter{OrganizerID: organizerID, Limit: limit, Offset: offset})
}

func (s *Service) listRaffles(ctx context.Context, filter store.RaffleFilter) ([]domain.RaffleView, error) {
	raffles, err := s.repo.ListRaffles(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]domain.RaffleView, 0, len(raffles))
	for i := range raffles {
		sold, err := s.repo.CountTickets(ctx, raffles[i].ID)
		if err != nil {
			return nil, err
		}
		views = append(views, *s.raffleView(&raffles[i], sold))
	}
	return views, nil
}

// UpdateRaffle edits a raffle on behalf of its organizer. Once a ticket is sold
// only the name, the description and a later deadline can change.
func (s *Service) UpdateRaffle(ctx context.Context, requesterID, raffleID uuid.UUID, req domain.UpdateRaffleRequest) (*domain.RaffleView, error) {
	if req.Empty() {
		return nil, &domain.ValidationError{Field: "body", Message: "no fields to update"}
	}
	now := s.clock.Now()
	var view *domain.RaffleView
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		raffle, err := tx.LockRaffle(ctx, raffleID, store.LockExclusive)
		if err != nil {
			return err
		}
		sold, err := tx.CountTickets(ctx, raffle.ID)
		if err != nil {
			return err
		}
		if err := raffle.CheckUpdate(requesterID, now, sold, req); err != nil {
			return err
		}
		updated, err := req.Apply(*raffle, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateRaffle(ctx, updated); err != nil {
			return err
		}
		view = s.raffleView(updated, sold)
		return nil
	})
	logSettlement("update_raffle", raffleID, err)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=settlement op=update_raffle raffle_id=%s organizer_id=%s", raffleID, requesterID)
	return view, nil
}

// ListAvailableNumbers returns the unsold numbers of a raffle, or nothing once
// the raffle has left the active state.
func (s *Service) ListAvailableNumbers(ctx context.Context, raffleID uuid.UUID) ([]int, error) {
	raffle, err := s.repo.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	if raffle.State != domain.RaffleStateActive {
		return []int{}, nil
	}
	tickets, err := s.repo.ListTickets(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	sold := make([]int, 0, len(tickets))
	for _, ticket := range tickets {
		sold = append(sold, ticket.Number)
	}
	return raffle.AvailableNumbers(sold), nil
}

// ListRaffleTickets returns the sold tickets of a raffle ordered by number.
func (s *Service) ListRaffleTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error) {
	if _, err := s.repo.GetRaffle(ctx, raffleID); err != nil {
		return nil, err
	}
	return s.repo.ListTickets(ctx, raffleID)
}

func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return s.repo.GetAccount(ctx, accountID)
}

func (s *Service) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultLedgerPageSize
	}
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListLedgerEntries(ctx, accountID, limit)
}

// ListBuyerTickets returns the tickets bought by buyerID, newest first. Only
// the buyer or an admin may read them.
func (s *Service) ListBuyerTickets(ctx context.Context, requesterID, buyerID uuid.UUID, admin bool, limit, offset int) ([]domain.BuyerTicket, error) {
	if err := canReadHistory(requesterID, buyerID, admin); err != nil {
		return nil, err
	}
	return s.repo.ListTicketsByBuyer(ctx, buyerID, limit, offset)
}

// BuyerTicketStats summarizes the tickets held by buyerID under the same
// visibility rule as ListBuyerTickets.
func (s *Service) BuyerTicketStats(ctx context.Context, requesterID, buyerID uuid.UUID, admin bool) (*domain.TicketStats, error) {
	if err := canReadHistory(requesterID, buyerID, admin); err != nil {
		return nil, err
	}
	return s.repo.TicketStats(ctx, buyerID)
}

func canReadHistory(requesterID, buyerID uuid.UUID, admin bool) error {
	if buyerID == uuid.Nil {
		return &domain.ValidationError{Field: "user_id", Message: "is required"}
	}
	if requesterID != buyerID && !admin {
		return domain.ErrHistoryForbidden
	}
	return nil
}
