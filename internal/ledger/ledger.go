/**
 * @description
 * Account ledger used by every money-moving flow. A Book is opened inside a
 * store transaction: it locks the accounts an operation will touch (ascending
 * id order) and then applies debits and credits against those locked rows,
 * persisting the new balance and appending a ledger entry for each posting.
 *
 * @notes
 * - Amounts are always strictly positive. The sign lives in the ledger entry.
 * - A debit that would overdraw returns domain.ErrInsufficientBalance and
 *   changes nothing, so a Transfer never credits without its debit.
 */

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

var (
	errNonPositiveAmount = errors.New("amount must be positive")
	errAccountNotLocked  = errors.New("account was not locked by this book")
)

// MissingAccountError names an account that could not be locked because it does not exist.
type MissingAccountError struct {
	AccountID uuid.UUID
}

func (e *MissingAccountError) Error() string {
	return fmt.Sprintf("account %s not found", e.AccountID)
}

func (e *MissingAccountError) Is(target error) bool {
	return target == domain.ErrAccountNotFound
}

// Store is the slice of a store transaction the ledger needs.
type Store interface {
	LockAccounts(ctx context.Context, accountIDs []uuid.UUID) ([]domain.Account, error)
	UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error
	InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error
}

// Posting identifies what a debit or credit belongs to.
type Posting struct {
	Reference domain.LedgerReference
	RaffleID  uuid.UUID
	TicketID  *uuid.UUID
}

// Book holds the locked accounts of one transaction.
type Book struct {
	store    Store
	accounts map[uuid.UUID]*domain.Account
}

// Open locks accountIDs through store and returns a Book over them. Every id
// must exist; the first missing one is reported as a *MissingAccountError.
func Open(ctx context.Context, store Store, accountIDs ...uuid.UUID) (*Book, error) {
	locked, err := store.LockAccounts(ctx, accountIDs)
	if err != nil {
		return nil, err
	}
	book := &Book{store: store, accounts: make(map[uuid.UUID]*domain.Account, len(locked))}
	for i := range locked {
		account := locked[i]
		book.accounts[account.ID] = &account
	}
	for _, id := range accountIDs {
		if id == uuid.Nil {
			continue
		}
		if _, ok := book.accounts[id]; !ok {
			return nil, &MissingAccountError{AccountID: id}
		}
	}
	return book, nil
}

// Account returns the locked snapshot of accountID.
func (b *Book) Account(accountID uuid.UUID) (*domain.Account, bool) {
	account, ok := b.accounts[accountID]
	return account, ok
}

// Balance returns the current balance of a locked account, or zero when the
// account is not part of the book.
func (b *Book) Balance(accountID uuid.UUID) decimal.Decimal {
	if account, ok := b.accounts[accountID]; ok {
		return account.Balance
	}
	return decimal.Zero
}

// HasSufficient reports whether accountID can be debited by amount.
func (b *Book) HasSufficient(accountID uuid.UUID, amount decimal.Decimal) bool {
	account, ok := b.accounts[accountID]
	return ok && account.HasSufficient(amount)
}

// Debit decrements accountID by amount. It fails with domain.ErrInsufficientBalance
// when the balance is lower than amount.
func (b *Book) Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, p Posting) error {
	account, err := b.lookup("debit", accountID, amount)
	if err != nil {
		return err
	}
	if !account.HasSufficient(amount) {
		return fmt.Errorf("%w: account %s has %s, needs %s",
			domain.ErrInsufficientBalance, accountID, account.Balance.StringFixed(2), amount.StringFixed(2))
	}
	return b.apply(ctx, account, amount.Neg(), p)
}

// Credit increments accountID by amount. It only fails on persistence errors.
func (b *Book) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, p Posting) error {
	account, err := b.lookup("credit", accountID, amount)
	if err != nil {
		return err
	}
	return b.apply(ctx, account, amount, p)
}

// Transfer moves amount from one locked account to another as a debit followed
// by a credit. When the debit fails nothing is written.
func (b *Book) Transfer(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal, p Posting) error {
	if from == to {
		return &domain.LedgerError{Op: "transfer", AccountID: from, Err: errors.New("source and destination are the same account")}
	}
	if _, err := b.lookup("transfer", to, amount); err != nil {
		return err
	}
	if err := b.Debit(ctx, from, amount, p); err != nil {
		return err
	}
	return b.Credit(ctx, to, amount, p)
}

func (b *Book) lookup(op string, accountID uuid.UUID, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, &domain.LedgerError{Op: op, AccountID: accountID, Err: errNonPositiveAmount}
	}
	account, ok := b.accounts[accountID]
	if !ok {
		return nil, &domain.LedgerError{Op: op, AccountID: accountID, Err: errAccountNotLocked}
	}
	return account, nil
}

func (b *Book) apply(ctx context.Context, account *domain.Account, delta decimal.Decimal, p Posting) error {
	before := account.Balance
	after := before.Add(delta)
	if after.IsNegative() {
		return &domain.LedgerError{Op: "apply", AccountID: account.ID, Err: fmt.Errorf("balance would become %s", after)}
	}
	if err := b.store.UpdateAccountBalance(ctx, account.ID, after); err != nil {
		return fmt.Errorf("failed to persist balance for account %s: %w", account.ID, err)
	}
	entry := &domain.LedgerEntry{
		AccountID:     account.ID,
		Amount:        delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     p.Reference,
		RaffleID:      p.RaffleID,
		TicketID:      p.TicketID,
	}
	if err := b.store.InsertLedgerEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to append ledger entry for account %s: %w", account.ID, err)
	}
	account.Balance = after
	return nil
}
