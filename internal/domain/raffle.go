/**
 * @description
 * Core domain models for the raffle settlement service: raffles, tickets and the
 * lifecycle guards that decide when a raffle may be sold, drawn or cancelled.
 *
 * @notes
 * - Money values use shopspring/decimal and map to NUMERIC columns.
 * - Raffle state and prize type are closed enums. Unknown values are rejected
 *   when a row is scanned instead of being guessed from labels.
 */

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RaffleState is the lifecycle state of a raffle.
type RaffleState string

const (
	RaffleStateActive    RaffleState = "active"
	RaffleStateSorted    RaffleState = "sorted"
	RaffleStateCancelled RaffleState = "cancelled"
)

// ParseRaffleState converts a stored value into a RaffleState.
func ParseRaffleState(raw string) (RaffleState, error) {
	switch RaffleState(strings.ToLower(strings.TrimSpace(raw))) {
	case RaffleStateActive:
		return RaffleStateActive, nil
	case RaffleStateSorted:
		return RaffleStateSorted, nil
	case RaffleStateCancelled:
		return RaffleStateCancelled, nil
	}
	return "", fmt.Errorf("unknown raffle state %q", raw)
}

// Terminal reports whether no further transition is allowed from s.
func (s RaffleState) Terminal() bool {
	return s == RaffleStateSorted || s == RaffleStateCancelled
}

// PrizeType classifies how a prize is delivered.
type PrizeType string

const (
	PrizeTypeMonetary    PrizeType = "monetary"
	PrizeTypeNonMonetary PrizeType = "non_monetary"
)

// ParsePrizeType converts a stored value into a PrizeType.
func ParsePrizeType(raw string) (PrizeType, error) {
	switch PrizeType(strings.ToLower(strings.TrimSpace(raw))) {
	case PrizeTypeMonetary:
		return PrizeTypeMonetary, nil
	case PrizeTypeNonMonetary:
		return PrizeTypeNonMonetary, nil
	}
	return "", fmt.Errorf("unknown prize type %q", raw)
}

// Raffle maps to the `raffles` table.
type Raffle struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	OrganizerID        uuid.UUID       `json:"organizer_id"`
	OrganizerAccountID uuid.UUID       `json:"organizer_account_id"`
	TicketPrice        decimal.Decimal `json:"ticket_price"`
	TotalNumbers       int             `json:"total_numbers"`
	MinimumNumbers     int             `json:"minimum_numbers"`
	PrizeAmount        decimal.Decimal `json:"prize_amount"`
	PrizeType          PrizeType       `json:"prize_type"`
	State              RaffleState     `json:"state"`
	SalesStart         time.Time       `json:"sales_start"`
	DrawDeadline       time.Time       `json:"draw_deadline"`
	WinnerUserID       *uuid.UUID      `json:"winner_user_id,omitempty"`
	WinnerTicketID     *uuid.UUID      `json:"winner_ticket_id,omitempty"`
	DrawnAt            *time.Time      `json:"drawn_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason       *string         `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Ticket maps to the `tickets` table. (RaffleID, Number) is unique.
type Ticket struct {
	ID        uuid.UUID `json:"id"`
	RaffleID  uuid.UUID `json:"raffle_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	AccountID uuid.UUID `json:"account_id"`
	Number    int       `json:"number"`
	IsWinner  bool      `json:"is_winner"`
	CreatedAt time.Time `json:"created_at"`
}

// HasWinner reports whether a draw has already been recorded.
func (r *Raffle) HasWinner() bool {
	return r.WinnerTicketID != nil
}

// IsMonetary reports whether the prize is settled through the ledger.
func (r *Raffle) IsMonetary() bool {
	return r.PrizeType == PrizeTypeMonetary
}

// MinimumReached reports whether sold tickets meet the draw threshold.
func (r *Raffle) MinimumReached(sold int) bool {
	return sold >= r.MinimumNumbers
}

// Revenue is the amount collected for sold tickets.
func (r *Raffle) Revenue(sold int) decimal.Decimal {
	return r.TicketPrice.Mul(decimal.NewFromInt(int64(sold)))
}

// IsSellable reports whether a new ticket can be bought at now.
func (r *Raffle) IsSellable(now time.Time, sold int) bool {
	return r.State == RaffleStateActive &&
		!r.HasWinner() &&
		!now.Before(r.SalesStart) &&
		now.Before(r.DrawDeadline) &&
		sold < r.TotalNumbers
}

// CheckDraw returns nil when the raffle can be drawn at now. override skips the
// deadline condition for administrative draws.
func (r *Raffle) CheckDraw(now time.Time, sold int, override bool) error {
	if r.HasWinner() || r.State == RaffleStateSorted {
		return &DrawNotReadyError{Reason: DrawReasonAlreadyDrawn, Detail: "the draw has already been executed"}
	}
	if r.State != RaffleStateActive {
		return &DrawNotReadyError{Reason: DrawReasonNotActive, Detail: fmt.Sprintf("raffle is %s", r.State)}
	}
	if !override && now.Before(r.DrawDeadline) {
		return &DrawNotReadyError{
			Reason: DrawReasonDeadlineNotReached,
			Detail: fmt.Sprintf("draw deadline is %s", r.DrawDeadline.UTC().Format(time.RFC3339)),
		}
	}
	if !r.MinimumReached(sold) {
		return &DrawNotReadyError{
			Reason: DrawReasonMinimumNotReached,
			Detail: fmt.Sprintf("minimum not reached, %d more numbers must be sold", r.MinimumNumbers-sold),
		}
	}
	return nil
}

// CheckOrganizerCancel returns nil when requester may cancel the raffle as its organizer.
// An already cancelled raffle yields ErrAlreadyCancelled.
func (r *Raffle) CheckOrganizerCancel(requester uuid.UUID) error {
	if requester != r.OrganizerID {
		return ErrUnauthorizedCancellation
	}
	if r.HasWinner() || r.State == RaffleStateSorted {
		return ErrRaffleSettled
	}
	if r.State == RaffleStateCancelled {
		return ErrAlreadyCancelled
	}
	return nil
}

// CheckAdminCancel applies the administrative cancellation guard. Sorted raffles
// are only accepted when allowSorted is set.
func (r *Raffle) CheckAdminCancel(allowSorted bool) error {
	if r.State == RaffleStateCancelled {
		return ErrAlreadyCancelled
	}
	if (r.HasWinner() || r.State == RaffleStateSorted) && !allowSorted {
		return ErrRaffleSettled
	}
	return nil
}

// StatusDisplay renders a human readable status for the raffle.
func (r *Raffle) StatusDisplay(now time.Time, sold int) string {
	switch {
	case r.HasWinner() || r.State == RaffleStateSorted:
		return "drawn"
	case r.State == RaffleStateCancelled:
		return "cancelled"
	case now.Before(r.SalesStart):
		return "scheduled"
	case now.Before(r.DrawDeadline):
		if !r.MinimumReached(sold) {
			return fmt.Sprintf("sales open (%d more to reach minimum)", r.MinimumNumbers-sold)
		}
		return "sales open (minimum reached)"
	case !r.MinimumReached(sold):
		return "expired (minimum not reached)"
	default:
		return "ready to draw"
	}
}

// AvailableNumbers returns the unsold numbers in ascending order.
func (r *Raffle) AvailableNumbers(sold []int) []int {
	taken := make(map[int]struct{}, len(sold))
	for _, n := range sold {
		taken[n] = struct{}{}
	}
	available := make([]int, 0, r.TotalNumbers)
	for n := 1; n <= r.TotalNumbers; n++ {
		if _, ok := taken[n]; !ok {
			available = append(available, n)
		}
	}
	return available
}

// CreateRaffleRequest is the DTO for creating a raffle.
type CreateRaffleRequest struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	OrganizerAccountID uuid.UUID       `json:"organizer_account_id"`
	TicketPrice        decimal.Decimal `json:"ticket_price"`
	TotalNumbers       int             `json:"total_numbers"`
	MinimumNumbers     int             `json:"minimum_numbers"`
	PrizeAmount        decimal.Decimal `json:"prize_amount"`
	PrizeType          PrizeType       `json:"prize_type"`
	SalesStart         *time.Time      `json:"sales_start,omitempty"`
	DrawDeadline       time.Time       `json:"draw_deadline"`
}

const (
	MinTotalNumbers   = 10
	MinMinimumNumbers = 1
)

var minMoney = decimal.NewFromFloat(0.01)

// Validate checks the request against the raffle invariants. start is the
// effective sales start and now the current time.
func (req CreateRaffleRequest) Validate(start, now time.Time) error {
	if strings.TrimSpace(req.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if len(req.Name) > 100 {
		return &ValidationError{Field: "name", Message: "must be at most 100 characters"}
	}
	if req.OrganizerAccountID == uuid.Nil {
		return &ValidationError{Field: "organizer_account_id", Message: "is required"}
	}
	if req.TotalNumbers < MinTotalNumbers {
		return &ValidationError{Field: "total_numbers", Message: fmt.Sprintf("must be at least %d", MinTotalNumbers)}
	}
	if req.MinimumNumbers < MinMinimumNumbers {
		return &ValidationError{Field: "minimum_numbers", Message: fmt.Sprintf("must be at least %d", MinMinimumNumbers)}
	}
	if req.MinimumNumbers > req.TotalNumbers {
		return &ValidationError{Field: "minimum_numbers", Message: "cannot exceed total_numbers"}
	}
	if req.TicketPrice.LessThan(minMoney) {
		return &ValidationError{Field: "ticket_price", Message: "must be at least 0.01"}
	}
	if req.PrizeAmount.LessThan(minMoney) {
		return &ValidationError{Field: "prize_amount", Message: "must be at least 0.01"}
	}
	if req.TicketPrice.Exponent() < -2 {
		return &ValidationError{Field: "ticket_price", Message: "supports at most two decimal places"}
	}
	if req.PrizeAmount.Exponent() < -2 {
		return &ValidationError{Field: "prize_amount", Message: "supports at most two decimal places"}
	}
	if _, err := ParsePrizeType(string(req.PrizeType)); err != nil {
		return &ValidationError{Field: "prize_type", Message: err.Error()}
	}
	if !start.Before(req.DrawDeadline) {
		return &ValidationError{Field: "draw_deadline", Message: "must be after the sales start"}
	}
	if !req.DrawDeadline.After(now) {
		return &ValidationError{Field: "draw_deadline", Message: "cannot be in the past"}
	}
	return nil
}

// UpdateRaffleRequest is the DTO for editing a raffle. Nil fields keep their
// current value.
type UpdateRaffleRequest struct {
	Name           *string          `json:"name,omitempty"`
	Description    *string          `json:"description,omitempty"`
	TicketPrice    *decimal.Decimal `json:"ticket_price,omitempty"`
	TotalNumbers   *int             `json:"total_numbers,omitempty"`
	MinimumNumbers *int             `json:"minimum_numbers,omitempty"`
	PrizeAmount    *decimal.Decimal `json:"prize_amount,omitempty"`
	DrawDeadline   *time.Time       `json:"draw_deadline,omitempty"`
}

// Empty reports whether the request changes nothing.
func (req UpdateRaffleRequest) Empty() bool {
	return req.Name == nil && req.Description == nil && req.TicketPrice == nil && req.TotalNumbers == nil &&
		req.MinimumNumbers == nil && req.PrizeAmount == nil && req.DrawDeadline == nil
}

// changesTerms reports whether req alters anything a buyer paid against. Moving
// the deadline later does not count.
func (req UpdateRaffleRequest) changesTerms(r *Raffle) bool {
	switch {
	case req.TicketPrice != nil && !req.TicketPrice.Equal(r.TicketPrice):
		return true
	case req.PrizeAmount != nil && !req.PrizeAmount.Equal(r.PrizeAmount):
		return true
	case req.TotalNumbers != nil && *req.TotalNumbers != r.TotalNumbers:
		return true
	case req.MinimumNumbers != nil && *req.MinimumNumbers != r.MinimumNumbers:
		return true
	case req.DrawDeadline != nil && req.DrawDeadline.Before(r.DrawDeadline):
		return true
	}
	return false
}

// CheckUpdate applies the edit guard: only the organizer may edit, only while
// the raffle is active and before its deadline, and once a ticket is sold only
// the name, the description and a later deadline may change.
func (r *Raffle) CheckUpdate(requester uuid.UUID, now time.Time, sold int, req UpdateRaffleRequest) error {
	if requester != r.OrganizerID {
		return ErrNotRaffleOrganizer
	}
	if r.HasWinner() || r.State == RaffleStateSorted {
		return ErrRaffleSettled
	}
	if r.State == RaffleStateCancelled {
		return ErrAlreadyCancelled
	}
	if !now.Before(r.DrawDeadline) {
		return ErrRaffleNotSellable
	}
	if sold > 0 && req.changesTerms(r) {
		return ErrRaffleTermsLocked
	}
	return nil
}

// Apply returns a copy of r with req applied, validated against the same rules
// as a new raffle.
func (req UpdateRaffleRequest) Apply(r Raffle, now time.Time) (*Raffle, error) {
	if req.Name != nil {
		r.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		r.Description = strings.TrimSpace(*req.Description)
	}
	if req.TicketPrice != nil {
		r.TicketPrice = *req.TicketPrice
	}
	if req.TotalNumbers != nil {
		r.TotalNumbers = *req.TotalNumbers
	}
	if req.MinimumNumbers != nil {
		r.MinimumNumbers = *req.MinimumNumbers
	}
	if req.PrizeAmount != nil {
		r.PrizeAmount = *req.PrizeAmount
	}
	if req.DrawDeadline != nil {
		r.DrawDeadline = req.DrawDeadline.UTC()
	}

	check := CreateRaffleRequest{
		Name:               r.Name,
		Description:        r.Description,
		OrganizerAccountID: r.OrganizerAccountID,
		TicketPrice:        r.TicketPrice,
		TotalNumbers:       r.TotalNumbers,
		MinimumNumbers:     r.MinimumNumbers,
		PrizeAmount:        r.PrizeAmount,
		PrizeType:          r.PrizeType,
		DrawDeadline:       r.DrawDeadline,
	}
	if err := check.Validate(r.SalesStart, now); err != nil {
		return nil, err
	}
	return &r, nil
}
