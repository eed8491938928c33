package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseTicketRequest is the DTO for buying a single numbered ticket.
type PurchaseTicketRequest struct {
	RaffleID  uuid.UUID `json:"raffle_id"`
	Number    int       `json:"number"`
	AccountID uuid.UUID `json:"account_id"`
}

// DrawReceipt summarizes a completed draw.
type DrawReceipt struct {
	RaffleID        uuid.UUID       `json:"raffle_id"`
	WinnerUserID    uuid.UUID       `json:"winner_user_id"`
	WinnerAccountID uuid.UUID       `json:"winner_account_id"`
	WinnerTicketID  uuid.UUID       `json:"winner_ticket_id"`
	WinningNumber   int             `json:"winning_number"`
	PrizeAmount     decimal.Decimal `json:"prize_amount"`
	PrizeType       PrizeType       `json:"prize_type"`
	TicketsSold     int             `json:"tickets_sold"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	DeficitCovered  decimal.Decimal `json:"deficit_covered"`
	SurplusPaid     decimal.Decimal `json:"surplus_paid"`
	Status          string          `json:"status"`
	DrawnAt         time.Time       `json:"drawn_at"`
}

// TicketRefund is the result of refunding a single ticket to its buyer.
type TicketRefund struct {
	TicketID   uuid.UUID       `json:"ticket_id"`
	RaffleID   uuid.UUID       `json:"raffle_id"`
	AccountID  uuid.UUID       `json:"account_id"`
	Number     int             `json:"number"`
	Amount     decimal.Decimal `json:"amount"`
	RefundedAt time.Time       `json:"refunded_at"`
}

// RefundReport summarizes a cancellation. A report with AlreadyCancelled set
// describes a no-op.
type RefundReport struct {
	RaffleID            uuid.UUID       `json:"raffle_id"`
	TicketsRefunded     int             `json:"tickets_refunded"`
	TotalAmountRefunded decimal.Decimal `json:"total_amount_refunded"`
	TicketsSkipped      int             `json:"tickets_skipped"`
	Reason              string          `json:"reason"`
	CancelledAt         time.Time       `json:"cancelled_at"`
	WasAlreadyDrawn     bool            `json:"was_already_drawn"`
	AlreadyCancelled    bool            `json:"already_cancelled"`
}

// RaffleView is a raffle together with its derived sales figures.
type RaffleView struct {
	Raffle
	NumbersSold      int    `json:"numbers_sold"`
	NumbersAvailable int    `json:"numbers_available"`
	MinimumReached   bool   `json:"minimum_reached"`
	Status           string `json:"status"`
}

// BuyerTicket is a ticket as its buyer sees it in their history, with the
// raffle details needed to read it on its own.
type BuyerTicket struct {
	Ticket
	RaffleName   string          `json:"raffle_name"`
	RaffleState  RaffleState     `json:"raffle_state"`
	TicketPrice  decimal.Decimal `json:"ticket_price"`
	DrawDeadline time.Time       `json:"draw_deadline"`
}

// TicketStats summarizes the tickets a buyer currently holds.
type TicketStats struct {
	BuyerID        uuid.UUID       `json:"buyer_id"`
	TotalTickets   int             `json:"total_tickets_purchased"`
	WinningTickets int             `json:"winning_tickets"`
	ActiveTickets  int             `json:"active_tickets"`
	AmountSpent    decimal.Decimal `json:"total_amount_spent"`
	WinRate        string          `json:"win_rate"`
}

// FormatWinRate renders winning over total as a one decimal percentage.
func FormatWinRate(winning, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(winning)*100/float64(total))
}

// SweepDecision is what the expiry sweep decided for one raffle.
type SweepDecision string

const (
	SweepDecisionDraw   SweepDecision = "draw"
	SweepDecisionCancel SweepDecision = "cancel"
)

// SweepOutcome is what actually happened to one raffle during a sweep.
type SweepOutcome string

const (
	SweepOutcomeDryRun    SweepOutcome = "dry_run"
	SweepOutcomeDrawn     SweepOutcome = "drawn"
	SweepOutcomeCancelled SweepOutcome = "cancelled"
	SweepOutcomeAborted   SweepOutcome = "aborted"
	SweepOutcomeSkipped   SweepOutcome = "skipped"
	SweepOutcomeFailed    SweepOutcome = "failed"
)

// SweepItem is the per-raffle line of a sweep report.
type SweepItem struct {
	RaffleID     uuid.UUID       `json:"raffle_id"`
	Name         string          `json:"name"`
	DrawDeadline time.Time       `json:"draw_deadline"`
	NumbersSold  int             `json:"numbers_sold"`
	Minimum      int             `json:"minimum"`
	Decision     SweepDecision   `json:"decision"`
	Outcome      SweepOutcome    `json:"outcome"`
	Refunded     decimal.Decimal `json:"refunded"`
	Error        string          `json:"error,omitempty"`
}

// SweepReport aggregates one sweep run.
type SweepReport struct {
	StartedAt       time.Time       `json:"started_at"`
	DryRun          bool            `json:"dry_run"`
	Force           bool            `json:"force"`
	Found           int             `json:"found"`
	Drawn           int             `json:"drawn"`
	Cancelled       int             `json:"cancelled"`
	Aborted         int             `json:"aborted"`
	Skipped         int             `json:"skipped"`
	Failed          int             `json:"failed"`
	TicketsRefunded int             `json:"tickets_refunded"`
	TotalRefunded   decimal.Decimal `json:"total_refunded"`
	Items           []SweepItem     `json:"items"`
}

// HasFailures reports whether any raffle failed to process.
func (r *SweepReport) HasFailures() bool {
	return r.Failed > 0
}

// Routing keys for settlement events published on the raffle events exchange.
const (
	EventTicketPurchased = "raffle.ticket.purchased"
	EventTicketRefunded  = "raffle.ticket.refunded"
	EventRaffleDrawn     = "raffle.drawn"
	EventRaffleCancelled = "raffle.cancelled"
	EventDrawAborted     = "raffle.draw.aborted"
)

// TicketEvent is published when a ticket is bought or refunded.
type TicketEvent struct {
	RaffleID   uuid.UUID       `json:"raffle_id"`
	TicketID   uuid.UUID       `json:"ticket_id"`
	BuyerID    uuid.UUID       `json:"buyer_id"`
	AccountID  uuid.UUID       `json:"account_id"`
	Number     int             `json:"number"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// RaffleSettledEvent is published when a raffle reaches a terminal state.
type RaffleSettledEvent struct {
	RaffleID        uuid.UUID       `json:"raffle_id"`
	State           RaffleState     `json:"state"`
	WinnerUserID    *uuid.UUID      `json:"winner_user_id,omitempty"`
	WinningNumber   *int            `json:"winning_number,omitempty"`
	PrizeAmount     decimal.Decimal `json:"prize_amount"`
	TicketsRefunded int             `json:"tickets_refunded"`
	TotalRefunded   decimal.Decimal `json:"total_refunded"`
	Reason          string          `json:"reason,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}
