package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a stored-value account owned by a single user.
// Balance is never negative.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HasSufficient reports whether the account can be debited by amount.
func (a *Account) HasSufficient(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// LedgerReference names the operation a ledger entry belongs to.
type LedgerReference string

const (
	RefTicketPurchase LedgerReference = "ticket_purchase"
	RefTicketRefund   LedgerReference = "ticket_refund"
	RefDrawDeficit    LedgerReference = "draw_deficit"
	RefDrawPrize      LedgerReference = "draw_prize"
	RefDrawSurplus    LedgerReference = "draw_surplus"
)

// LedgerEntry is an append-only posting against one account. Amount is signed:
// negative for debits, positive for credits.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Reference     LedgerReference `json:"reference"`
	RaffleID      uuid.UUID       `json:"raffle_id"`
	TicketID      *uuid.UUID      `json:"ticket_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
