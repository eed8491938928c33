package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrAccountOwnershipMismatch = errors.New("account does not belong to user")
	ErrAccountInactive          = errors.New("account is not active")
	ErrNumberUnavailable        = errors.New("number is not available")
	ErrRaffleNotSellable        = errors.New("raffle is not open for sales")
	ErrDrawNotReady             = errors.New("draw not ready")
	ErrAlreadyDrawn             = errors.New("raffle already drawn")
	ErrDrawAborted              = errors.New("draw aborted: organizer cannot cover prize deficit")
	ErrNoTicketsSold            = errors.New("no tickets sold")
	ErrUnauthorizedCancellation = errors.New("only the organizer can cancel this raffle")
	ErrAlreadyCancelled         = errors.New("raffle already cancelled")
	ErrRaffleSettled            = errors.New("raffle has already been drawn")
	ErrMissingClearingAccount   = errors.New("clearing account is not configured")
	ErrClearingShortfall        = errors.New("clearing account cannot cover refund")
	ErrPersistenceConflict      = errors.New("concurrent update conflict, retry the operation")
	ErrLedgerInconsistent       = errors.New("ledger consistency violation")
	ErrInvalidInput             = errors.New("invalid input")
	ErrRaffleNotFound           = errors.New("raffle not found")
	ErrAccountNotFound          = errors.New("account not found")
	ErrTicketNotFound           = errors.New("ticket not found")
	ErrNotTicketOwner           = errors.New("ticket does not belong to user")
	ErrTicketNotRefundable      = errors.New("ticket can no longer be refunded")
	ErrNotRaffleOrganizer       = errors.New("only the organizer can edit this raffle")
	ErrRaffleTermsLocked        = errors.New("price, numbers, prize and an earlier deadline cannot change once tickets are sold")
	ErrHistoryForbidden         = errors.New("ticket history is only visible to its owner")
)

// DrawNotReadyReason names the guard that blocked a draw.
type DrawNotReadyReason string

const (
	DrawReasonNotActive          DrawNotReadyReason = "not_active"
	DrawReasonAlreadyDrawn       DrawNotReadyReason = "already_drawn"
	DrawReasonDeadlineNotReached DrawNotReadyReason = "deadline_not_reached"
	DrawReasonMinimumNotReached  DrawNotReadyReason = "minimum_not_reached"
)

// DrawNotReadyError is returned when the draw guard fails.
type DrawNotReadyError struct {
	Reason DrawNotReadyReason
	Detail string
}

func (e *DrawNotReadyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("draw not ready: %s", e.Reason)
	}
	return fmt.Sprintf("draw not ready: %s: %s", e.Reason, e.Detail)
}

func (e *DrawNotReadyError) Is(target error) bool {
	if target == ErrDrawNotReady {
		return true
	}
	return target == ErrAlreadyDrawn && e.Reason == DrawReasonAlreadyDrawn
}

// DrawAbortedError reports a draw that was turned into a full refund because the
// organizer could not cover the prize deficit.
type DrawAbortedError struct {
	Deficit          decimal.Decimal
	OrganizerBalance decimal.Decimal
	Revenue          decimal.Decimal
	PrizeAmount      decimal.Decimal
	Report           *RefundReport
}

func (e *DrawAbortedError) Error() string {
	return fmt.Sprintf("%s: deficit %s, revenue %s, prize %s",
		ErrDrawAborted.Error(), e.Deficit.StringFixed(2), e.Revenue.StringFixed(2), e.PrizeAmount.StringFixed(2))
}

func (e *DrawAbortedError) Is(target error) bool {
	return target == ErrDrawAborted
}

// LedgerError signals a broken ledger invariant. It is never caused by user input.
type LedgerError struct {
	Op        string
	AccountID uuid.UUID
	Err       error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s on account %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

func (e *LedgerError) Is(target error) bool {
	return target == ErrLedgerInconsistent
}

// ValidationError rejects malformed input before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
