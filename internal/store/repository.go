/**
 * @description
 * Repository contracts for the raffle settlement service. Reads that never move
 * money live on Repository; every money-moving flow runs through WithinTx so the
 * ledger postings, ticket rows, raffle state and outbox events of one operation
 * commit or roll back together.
 *
 * @dependencies
 * - github.com/google/uuid, github.com/shopspring/decimal
 * - internal/domain: entities and error kinds returned by implementations.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

// LockMode selects the row lock taken on a raffle inside a transaction.
type LockMode int

const (
	// LockShare lets concurrent purchases proceed while blocking settlement.
	LockShare LockMode = iota
	// LockExclusive serializes draw and cancellation.
	LockExclusive
)

// OutboxMessage is a settlement event waiting to be published.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// RaffleFilter narrows a raffle listing. Zero values match everything.
type RaffleFilter struct {
	State       domain.RaffleState
	OrganizerID uuid.UUID
	Limit       int
	Offset      int
}

// RaffleCursor is the keyset position after the last raffle of a page ordered
// by draw deadline then id.
type RaffleCursor struct {
	Deadline time.Time
	ID       uuid.UUID
}

// CursorAfter returns the cursor positioned after raffle.
func CursorAfter(raffle domain.Raffle) *RaffleCursor {
	return &RaffleCursor{Deadline: raffle.DrawDeadline, ID: raffle.ID}
}

// Repository defines the persistence operations used by the settlement service.
type Repository interface {
	// --- Accounts ---
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.LedgerEntry, error)

	// --- Raffles and tickets ---
	CreateRaffle(ctx context.Context, raffle *domain.Raffle) error
	GetRaffle(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error)
	ListRaffles(ctx context.Context, filter RaffleFilter) ([]domain.Raffle, error)
	// ListExpiredRaffles pages through active raffles without a winner whose
	// deadline is before deadlineBefore. A nil cursor starts from the beginning.
	ListExpiredRaffles(ctx context.Context, deadlineBefore time.Time, after *RaffleCursor, limit int) ([]domain.Raffle, error)
	CountTickets(ctx context.Context, raffleID uuid.UUID) (int, error)
	ListTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error)
	ListTicketsByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]domain.BuyerTicket, error)
	TicketStats(ctx context.Context, buyerID uuid.UUID) (*domain.TicketStats, error)

	// --- Unit of work ---
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// --- Outbox ---
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfter time.Duration) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfter time.Duration, reason string) error

	Close()
}

// Tx is the set of operations available inside one database transaction.
type Tx interface {
	LockRaffle(ctx context.Context, raffleID uuid.UUID, mode LockMode) (*domain.Raffle, error)
	// UpdateRaffle writes the editable columns of an active raffle without a
	// winner and returns domain.ErrRaffleSettled otherwise.
	UpdateRaffle(ctx context.Context, raffle *domain.Raffle) error
	// LockAccounts locks the given accounts in ascending id order and returns the
	// ones that exist, in that order.
	LockAccounts(ctx context.Context, accountIDs []uuid.UUID) ([]domain.Account, error)
	UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error
	InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error

	GetTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error)
	ListTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error)
	CountTickets(ctx context.Context, raffleID uuid.UUID) (int, error)
	// InsertTicket returns domain.ErrNumberUnavailable on a (raffle, number) conflict.
	InsertTicket(ctx context.Context, ticket *domain.Ticket) error
	DeleteTicket(ctx context.Context, ticketID uuid.UUID) error

	// MarkWinner records the winning ticket and moves the raffle to sorted. It only
	// succeeds while the raffle is active with no winner; otherwise it returns
	// domain.ErrAlreadyDrawn.
	MarkWinner(ctx context.Context, raffleID, ticketID, winnerID uuid.UUID, at time.Time) error
	// CancelRaffle moves the raffle to cancelled from any other state and returns
	// domain.ErrAlreadyCancelled when it is cancelled already.
	CancelRaffle(ctx context.Context, raffleID uuid.UUID, reason string, at time.Time) error

	EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error
}
