/**
 * @description
 * Embedded SQLite implementation of the Repository interface, used for single
 * node deployments (STORE_DRIVER=sqlite) and as the in-process database of the
 * settlement tests. The pool is pinned to one connection, so every transaction
 * is serialized and the row lock requests of the Tx contract are satisfied by
 * the database-wide write lock.
 *
 * @notes
 * - Decimals are stored as TEXT and timestamps as UTC unix nanoseconds.
 *
 * @dependencies
 * - modernc.org/sqlite: pure Go SQLite driver registered as "sqlite".
 */

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

// SQLiteRepository is the database/sql store backed by modernc SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate applies the embedded schema one statement at a time.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Close() {
	if err := r.db.Close(); err != nil {
		log.Printf("level=warn component=store driver=sqlite msg=\"close failed\" err=%v", err)
	}
}

func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapConflict(err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return mapConflict(err)
	}
	if err := tx.Commit(); err != nil {
		return mapConflict(err)
	}
	return nil
}

// --- Accounts ---

func (r *SQLiteRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, balance, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, account.ID.String(), account.UserID.String(), account.Balance.String(), account.IsActive, toUnix(now), toUnix(now))
	if err != nil {
		return err
	}
	account.CreatedAt, account.UpdatedAt = now, now
	return nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := scanSQLiteAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, accountID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (r *SQLiteRepository) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, amount, balance_before, balance_after, reference, raffle_id, ticket_id, created_at
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, accountID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e         domain.LedgerEntry
			ref       string
			ticketID  uuid.NullUUID
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.BalanceBefore, &e.BalanceAfter, &ref, &e.RaffleID, &ticketID, &createdAt); err != nil {
			return nil, err
		}
		e.Reference = domain.LedgerReference(ref)
		if ticketID.Valid {
			id := ticketID.UUID
			e.TicketID = &id
		}
		e.CreatedAt = fromUnix(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Raffles and tickets ---

func (r *SQLiteRepository) CreateRaffle(ctx context.Context, raffle *domain.Raffle) error {
	if raffle.ID == uuid.Nil {
		raffle.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO raffles (
			id, name, description, organizer_id, organizer_account_id, ticket_price,
			total_numbers, minimum_numbers, prize_amount, prize_type, state,
			sales_start, draw_deadline, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		raffle.ID.String(),
		raffle.Name,
		raffle.Description,
		raffle.OrganizerID.String(),
		raffle.OrganizerAccountID.String(),
		raffle.TicketPrice.String(),
		raffle.TotalNumbers,
		raffle.MinimumNumbers,
		raffle.PrizeAmount.String(),
		string(raffle.PrizeType),
		string(raffle.State),
		toUnix(raffle.SalesStart),
		toUnix(raffle.DrawDeadline),
		toUnix(now),
		toUnix(now),
	)
	if err != nil {
		return err
	}
	raffle.CreatedAt, raffle.UpdatedAt = now, now
	return nil
}

func (r *SQLiteRepository) GetRaffle(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error) {
	raffle, err := scanSQLiteRaffle(r.db.QueryRowContext(ctx, `SELECT `+raffleColumns+` FROM raffles WHERE id = ?`, raffleID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRaffleNotFound
		}
		return nil, err
	}
	return raffle, nil
}

func (r *SQLiteRepository) ListRaffles(ctx context.Context, filter RaffleFilter) ([]domain.Raffle, error) {
	var (
		where []string
		args  []any
	)
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.OrganizerID != uuid.Nil {
		where = append(where, "organizer_id = ?")
		args = append(args, filter.OrganizerID.String())
	}
	query := `SELECT ` + raffleColumns + ` FROM raffles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY draw_deadline ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, pageLimit(filter.Limit), max(filter.Offset, 0))
	return querySQLiteRaffles(ctx, r.db, query, args...)
}

func (r *SQLiteRepository) ListExpiredRaffles(ctx context.Context, deadlineBefore time.Time, after *RaffleCursor, limit int) ([]domain.Raffle, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT ` + raffleColumns + `
		FROM raffles
		WHERE state = 'active'
		  AND winner_ticket_id IS NULL
		  AND draw_deadline < ?`
	args := []any{toUnix(deadlineBefore)}
	if after != nil {
		query += `
		  AND (draw_deadline > ? OR (draw_deadline = ? AND id > ?))`
		deadline := toUnix(after.Deadline)
		args = append(args, deadline, deadline, after.ID.String())
	}
	query += `
		ORDER BY draw_deadline ASC, id ASC
		LIMIT ?`
	args = append(args, limit)
	return querySQLiteRaffles(ctx, r.db, query, args...)
}

func (r *SQLiteRepository) CountTickets(ctx context.Context, raffleID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE raffle_id = ?`, raffleID.String()).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) ListTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error) {
	return querySQLiteTickets(ctx, r.db, raffleID)
}

func (r *SQLiteRepository) GetTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	return getSQLiteTicket(ctx, r.db, ticketID)
}

func (r *SQLiteRepository) ListTicketsByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]domain.BuyerTicket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.raffle_id, t.buyer_id, t.account_id, t.number, t.is_winner, t.created_at,
		       r.name, r.state, r.ticket_price, r.draw_deadline
		FROM tickets t
		JOIN raffles r ON r.id = t.raffle_id
		WHERE t.buyer_id = ?
		ORDER BY t.created_at DESC, t.id ASC
		LIMIT ? OFFSET ?
	`, buyerID.String(), pageLimit(limit), max(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []domain.BuyerTicket{}
	for rows.Next() {
		var (
			bt                  domain.BuyerTicket
			state               string
			createdAt, deadline int64
		)
		if err := rows.Scan(&bt.ID, &bt.RaffleID, &bt.BuyerID, &bt.AccountID, &bt.Number, &bt.IsWinner, &createdAt,
			&bt.RaffleName, &state, &bt.TicketPrice, &deadline); err != nil {
			return nil, err
		}
		if bt.RaffleState, err = domain.ParseRaffleState(state); err != nil {
			return nil, err
		}
		bt.CreatedAt = fromUnix(createdAt)
		bt.DrawDeadline = fromUnix(deadline)
		tickets = append(tickets, bt)
	}
	return tickets, rows.Err()
}

func (r *SQLiteRepository) TicketStats(ctx context.Context, buyerID uuid.UUID) (*domain.TicketStats, error) {
	rows, err := r.db.QueryContext(ctx, ticketStatsQuery("?"), buyerID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := newTicketStats(buyerID)
	for rows.Next() {
		var (
			price                  decimal.Decimal
			count, winning, active int
		)
		if err := rows.Scan(&price, &count, &winning, &active); err != nil {
			return nil, err
		}
		stats.add(price, count, winning, active)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats.finish(), nil
}

// --- Transaction scoped operations ---

type sqliteTx struct {
	tx *sql.Tx
}

// LockRaffle reads the raffle inside the transaction. The single connection
// already excludes every other writer, so mode needs no SQL counterpart.
func (t *sqliteTx) LockRaffle(ctx context.Context, raffleID uuid.UUID, _ LockMode) (*domain.Raffle, error) {
	raffle, err := scanSQLiteRaffle(t.tx.QueryRowContext(ctx, `SELECT `+raffleColumns+` FROM raffles WHERE id = ?`, raffleID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRaffleNotFound
		}
		return nil, err
	}
	return raffle, nil
}

func (t *sqliteTx) UpdateRaffle(ctx context.Context, raffle *domain.Raffle) error {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx, `
		UPDATE raffles
		SET name = ?, description = ?, ticket_price = ?, total_numbers = ?, minimum_numbers = ?,
		    prize_amount = ?, draw_deadline = ?, updated_at = ?
		WHERE id = ? AND state = 'active' AND winner_ticket_id IS NULL
	`,
		raffle.Name,
		raffle.Description,
		raffle.TicketPrice.String(),
		raffle.TotalNumbers,
		raffle.MinimumNumbers,
		raffle.PrizeAmount.String(),
		toUnix(raffle.DrawDeadline),
		toUnix(now),
		raffle.ID.String(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRaffleSettled
	}
	raffle.UpdatedAt = now
	return nil
}

func (t *sqliteTx) LockAccounts(ctx context.Context, accountIDs []uuid.UUID) ([]domain.Account, error) {
	ids := SortedUniqueIDs(accountIDs)
	accounts := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		account, err := scanSQLiteAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String()))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

func (t *sqliteTx) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("balance for account %s would become negative", accountID)
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`,
		balance.String(), toUnix(time.Now().UTC()), accountID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (t *sqliteTx) InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	now := time.Now().UTC()
	var ticketID interface{}
	if entry.TicketID != nil {
		ticketID = entry.TicketID.String()
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, amount, balance_before, balance_after, reference, raffle_id, ticket_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.AccountID.String(),
		entry.Amount.String(),
		entry.BalanceBefore.String(),
		entry.BalanceAfter.String(),
		string(entry.Reference),
		entry.RaffleID.String(),
		ticketID,
		toUnix(now),
	)
	if err != nil {
		return err
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	entry.CreatedAt = now
	return nil
}

func (t *sqliteTx) GetTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	return getSQLiteTicket(ctx, t.tx, ticketID)
}

func (t *sqliteTx) ListTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error) {
	return querySQLiteTickets(ctx, t.tx, raffleID)
}

func (t *sqliteTx) CountTickets(ctx context.Context, raffleID uuid.UUID) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE raffle_id = ?`, raffleID.String()).Scan(&count)
	return count, err
}

func (t *sqliteTx) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tickets (id, raffle_id, buyer_id, account_id, number, is_winner, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, ticket.ID.String(), ticket.RaffleID.String(), ticket.BuyerID.String(), ticket.AccountID.String(), ticket.Number, toUnix(now))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrNumberUnavailable
		}
		return err
	}
	ticket.CreatedAt = now
	return nil
}

func (t *sqliteTx) DeleteTicket(ctx context.Context, ticketID uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, ticketID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func (t *sqliteTx) MarkWinner(ctx context.Context, raffleID, ticketID, winnerID uuid.UUID, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE raffles
		SET state = 'sorted', winner_user_id = ?, winner_ticket_id = ?, drawn_at = ?, updated_at = ?
		WHERE id = ? AND state = 'active' AND winner_ticket_id IS NULL
	`, winnerID.String(), ticketID.String(), toUnix(at), toUnix(at), raffleID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAlreadyDrawn
	}

	res, err = t.tx.ExecContext(ctx, `UPDATE tickets SET is_winner = 1 WHERE id = ? AND raffle_id = ?`, ticketID.String(), raffleID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func (t *sqliteTx) CancelRaffle(ctx context.Context, raffleID uuid.UUID, reason string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE raffles
		SET state = 'cancelled', cancelled_at = ?, cancel_reason = ?, updated_at = ?
		WHERE id = ? AND state <> 'cancelled'
	`, toUnix(at), reason, toUnix(at), raffleID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAlreadyCancelled
	}
	return nil
}

func (t *sqliteTx) EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	blob, err := marshalEventPayload(payload)
	if err != nil {
		return err
	}
	now := toUnix(time.Now().UTC())
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO raffle_event_outbox (exchange, routing_key, payload, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, exchange, routingKey, string(blob), now, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// --- Outbox ---

func (r *SQLiteRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfter time.Duration) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	now := time.Now().UTC()

	var messages []OutboxMessage
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, exchange, routing_key, payload, attempts
		FROM raffle_event_outbox
		WHERE (status = 'pending' AND next_attempt_at <= ?)
		   OR (status = 'processing' AND processing_started_at < ?)
		ORDER BY created_at, id
		LIMIT ?
	`, toUnix(now), toUnix(now.Add(-staleAfter)), limit)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			msg     OutboxMessage
			payload string
		)
		if err := rows.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payload, &msg.Attempts); err != nil {
			rows.Close()
			return nil, err
		}
		msg.Payload = []byte(payload)
		msg.Attempts++
		messages = append(messages, msg)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, msg := range messages {
		if _, err := tx.ExecContext(ctx, `
			UPDATE raffle_event_outbox
			SET status = 'processing', processing_started_at = ?, attempts = ?
			WHERE id = ?
		`, toUnix(now), msg.Attempts, msg.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *SQLiteRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE raffle_event_outbox
		SET status = 'published', published_at = ?, processing_started_at = NULL, last_error = NULL
		WHERE id = ?
	`, toUnix(time.Now().UTC()), id)
	return err
}

func (r *SQLiteRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfter time.Duration, reason string) error {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE raffle_event_outbox
		SET status = 'pending', next_attempt_at = ?, processing_started_at = NULL, last_error = ?
		WHERE id = ?
	`, toUnix(time.Now().UTC().Add(retryAfter)), truncateReason(reason), id)
	return err
}

// --- scanning helpers ---

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func nullableUUID(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func scanSQLiteRaffle(row rowScanner) (*domain.Raffle, error) {
	var (
		raffle                   domain.Raffle
		prizeType, state         string
		salesStart, deadline     int64
		createdAt, updatedAt     int64
		winnerUser, winnerTicket uuid.NullUUID
		drawnAt, cancelledAt     sql.NullInt64
		cancelReason             sql.NullString
	)
	err := row.Scan(
		&raffle.ID,
		&raffle.Name,
		&raffle.Description,
		&raffle.OrganizerID,
		&raffle.OrganizerAccountID,
		&raffle.TicketPrice,
		&raffle.TotalNumbers,
		&raffle.MinimumNumbers,
		&raffle.PrizeAmount,
		&prizeType,
		&state,
		&salesStart,
		&deadline,
		&winnerUser,
		&winnerTicket,
		&drawnAt,
		&cancelledAt,
		&cancelReason,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if raffle.PrizeType, err = domain.ParsePrizeType(prizeType); err != nil {
		return nil, err
	}
	if raffle.State, err = domain.ParseRaffleState(state); err != nil {
		return nil, err
	}
	raffle.SalesStart = fromUnix(salesStart)
	raffle.DrawDeadline = fromUnix(deadline)
	raffle.CreatedAt = fromUnix(createdAt)
	raffle.UpdatedAt = fromUnix(updatedAt)
	raffle.WinnerUserID = nullableUUID(winnerUser)
	raffle.WinnerTicketID = nullableUUID(winnerTicket)
	raffle.DrawnAt = nullableTime(drawnAt)
	raffle.CancelledAt = nullableTime(cancelledAt)
	if cancelReason.Valid {
		reason := cancelReason.String
		raffle.CancelReason = &reason
	}
	return &raffle, nil
}

func scanSQLiteAccount(row rowScanner) (*domain.Account, error) {
	var (
		account              domain.Account
		createdAt, updatedAt int64
	)
	if err := row.Scan(&account.ID, &account.UserID, &account.Balance, &account.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	account.CreatedAt = fromUnix(createdAt)
	account.UpdatedAt = fromUnix(updatedAt)
	return &account, nil
}

func scanSQLiteTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket    domain.Ticket
		createdAt int64
	)
	if err := row.Scan(&ticket.ID, &ticket.RaffleID, &ticket.BuyerID, &ticket.AccountID, &ticket.Number, &ticket.IsWinner, &createdAt); err != nil {
		return nil, err
	}
	ticket.CreatedAt = fromUnix(createdAt)
	return &ticket, nil
}

func getSQLiteTicket(ctx context.Context, q sqliteQuerier, ticketID uuid.UUID) (*domain.Ticket, error) {
	ticket, err := scanSQLiteTicket(q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, ticketID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

func querySQLiteRaffles(ctx context.Context, q sqliteQuerier, query string, args ...any) ([]domain.Raffle, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	raffles := []domain.Raffle{}
	for rows.Next() {
		raffle, err := scanSQLiteRaffle(rows)
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, *raffle)
	}
	return raffles, rows.Err()
}

func querySQLiteTickets(ctx context.Context, q sqliteQuerier, raffleID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE raffle_id = ? ORDER BY number`, raffleID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		ticket, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, rows.Err()
}
