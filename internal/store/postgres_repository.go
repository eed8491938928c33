/**
 * @description
 * PostgreSQL implementation of the Repository interface using pgxpool. Money
 * moving flows run inside WithinTx; rows involved in a settlement are locked with
 * SELECT ... FOR UPDATE (or FOR SHARE for purchases) so that concurrent requests
 * serialize on the raffle and account rows they touch.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: pgxpool, pgx.Tx and pgconn error codes.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

const raffleColumns = `
	id, name, description, organizer_id, organizer_account_id, ticket_price,
	total_numbers, minimum_numbers, prize_amount, prize_type, state,
	sales_start, draw_deadline, winner_user_id, winner_ticket_id,
	drawn_at, cancelled_at, cancel_reason, created_at, updated_at`

const ticketColumns = `id, raffle_id, buyer_id, account_id, number, is_winner, created_at`

const accountColumns = `id, user_id, balance, is_active, created_at, updated_at`

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

func pageLimit(limit int) int {
	if limit <= 0 || limit > maxPageLimit {
		return defaultPageLimit
	}
	return limit
}

// ticketStatsQuery groups a buyer's tickets by price so the amount spent can be
// summed exactly in decimal on either driver.
func ticketStatsQuery(placeholder string) string {
	return `
		SELECT r.ticket_price,
		       COUNT(*),
		       SUM(CASE WHEN t.is_winner THEN 1 ELSE 0 END),
		       SUM(CASE WHEN r.state = 'active' AND r.winner_ticket_id IS NULL THEN 1 ELSE 0 END)
		FROM tickets t
		JOIN raffles r ON r.id = t.raffle_id
		WHERE t.buyer_id = ` + placeholder + `
		GROUP BY r.ticket_price`
}

type ticketStatsBuilder struct {
	stats domain.TicketStats
}

func newTicketStats(buyerID uuid.UUID) *ticketStatsBuilder {
	return &ticketStatsBuilder{stats: domain.TicketStats{BuyerID: buyerID, AmountSpent: decimal.Zero}}
}

func (b *ticketStatsBuilder) add(price decimal.Decimal, count, winning, active int) {
	b.stats.TotalTickets += count
	b.stats.WinningTickets += winning
	b.stats.ActiveTickets += active
	b.stats.AmountSpent = b.stats.AmountSpent.Add(price.Mul(decimal.NewFromInt(int64(count))))
}

func (b *ticketStatsBuilder) finish() *domain.TicketStats {
	b.stats.WinRate = domain.FormatWinRate(b.stats.WinningTickets, b.stats.TotalTickets)
	return &b.stats
}

// PostgresRepository is the pgx-backed store.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository over an existing pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() {
	r.db.Close()
}

// WithinTx runs fn inside a single transaction and commits when fn returns nil.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapConflict(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return mapConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapConflict(err)
	}
	return nil
}

// --- Accounts ---

func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	query := `
		INSERT INTO accounts (id, user_id, balance, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, account.ID, account.UserID, account.Balance, account.IsActive).
		Scan(&account.CreatedAt, &account.UpdatedAt)
}

func (r *PostgresRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, account_id, amount, balance_before, balance_after, reference, raffle_id, ticket_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e   domain.LedgerEntry
			ref string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.BalanceBefore, &e.BalanceAfter, &ref, &e.RaffleID, &e.TicketID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reference = domain.LedgerReference(ref)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Raffles and tickets ---

func (r *PostgresRepository) CreateRaffle(ctx context.Context, raffle *domain.Raffle) error {
	if raffle.ID == uuid.Nil {
		raffle.ID = uuid.New()
	}
	query := `
		INSERT INTO raffles (
			id, name, description, organizer_id, organizer_account_id, ticket_price,
			total_numbers, minimum_numbers, prize_amount, prize_type, state,
			sales_start, draw_deadline
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		raffle.ID,
		raffle.Name,
		raffle.Description,
		raffle.OrganizerID,
		raffle.OrganizerAccountID,
		raffle.TicketPrice,
		raffle.TotalNumbers,
		raffle.MinimumNumbers,
		raffle.PrizeAmount,
		string(raffle.PrizeType),
		string(raffle.State),
		raffle.SalesStart,
		raffle.DrawDeadline,
	).Scan(&raffle.CreatedAt, &raffle.UpdatedAt)
}

func (r *PostgresRepository) GetRaffle(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error) {
	query := `SELECT ` + raffleColumns + ` FROM raffles WHERE id = $1`
	raffle, err := scanRaffle(r.db.QueryRow(ctx, query, raffleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRaffleNotFound
		}
		return nil, err
	}
	return raffle, nil
}

func (r *PostgresRepository) ListRaffles(ctx context.Context, filter RaffleFilter) ([]domain.Raffle, error) {
	var (
		where []string
		args  []any
	)
	if filter.State != "" {
		args = append(args, string(filter.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.OrganizerID != uuid.Nil {
		args = append(args, filter.OrganizerID)
		where = append(where, fmt.Sprintf("organizer_id = $%d", len(args)))
	}
	query := `SELECT ` + raffleColumns + ` FROM raffles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, pageLimit(filter.Limit), max(filter.Offset, 0))
	query += fmt.Sprintf(` ORDER BY draw_deadline ASC, id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return queryRaffles(ctx, r.db, query, args...)
}

// ListExpiredRaffles returns active raffles without a winner whose deadline is
// before deadlineBefore, oldest first, resuming after the cursor when one is given.
func (r *PostgresRepository) ListExpiredRaffles(ctx context.Context, deadlineBefore time.Time, after *RaffleCursor, limit int) ([]domain.Raffle, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT ` + raffleColumns + `
		FROM raffles
		WHERE state = 'active'
		  AND winner_ticket_id IS NULL
		  AND draw_deadline < $1`
	args := []any{deadlineBefore}
	if after != nil {
		query += `
		  AND (draw_deadline, id) > ($2, $3)`
		args = append(args, after.Deadline, after.ID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(`
		ORDER BY draw_deadline ASC, id ASC
		LIMIT $%d`, len(args))
	return queryRaffles(ctx, r.db, query, args...)
}

func (r *PostgresRepository) CountTickets(ctx context.Context, raffleID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE raffle_id = $1`, raffleID).Scan(&count)
	return count, err
}

func (r *PostgresRepository) ListTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error) {
	return queryTickets(ctx, r.db, `SELECT `+ticketColumns+` FROM tickets WHERE raffle_id = $1 ORDER BY number`, raffleID)
}

func (r *PostgresRepository) GetTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	return getTicket(ctx, r.db, ticketID)
}

func (r *PostgresRepository) ListTicketsByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]domain.BuyerTicket, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.raffle_id, t.buyer_id, t.account_id, t.number, t.is_winner, t.created_at,
		       r.name, r.state, r.ticket_price, r.draw_deadline
		FROM tickets t
		JOIN raffles r ON r.id = t.raffle_id
		WHERE t.buyer_id = $1
		ORDER BY t.created_at DESC, t.id ASC
		LIMIT $2 OFFSET $3
	`, buyerID, pageLimit(limit), max(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []domain.BuyerTicket{}
	for rows.Next() {
		var (
			bt    domain.BuyerTicket
			state string
		)
		if err := rows.Scan(&bt.ID, &bt.RaffleID, &bt.BuyerID, &bt.AccountID, &bt.Number, &bt.IsWinner, &bt.CreatedAt,
			&bt.RaffleName, &state, &bt.TicketPrice, &bt.DrawDeadline); err != nil {
			return nil, err
		}
		if bt.RaffleState, err = domain.ParseRaffleState(state); err != nil {
			return nil, err
		}
		tickets = append(tickets, bt)
	}
	return tickets, rows.Err()
}

func (r *PostgresRepository) TicketStats(ctx context.Context, buyerID uuid.UUID) (*domain.TicketStats, error) {
	rows, err := r.db.Query(ctx, ticketStatsQuery("$1"), buyerID)
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

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockRaffle(ctx context.Context, raffleID uuid.UUID, mode LockMode) (*domain.Raffle, error) {
	clause := "FOR SHARE"
	if mode == LockExclusive {
		clause = "FOR UPDATE"
	}
	query := `SELECT ` + raffleColumns + ` FROM raffles WHERE id = $1 ` + clause
	raffle, err := scanRaffle(t.tx.QueryRow(ctx, query, raffleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRaffleNotFound
		}
		return nil, err
	}
	return raffle, nil
}

func (t *postgresTx) UpdateRaffle(ctx context.Context, raffle *domain.Raffle) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE raffles
		SET name = $2, description = $3, ticket_price = $4, total_numbers = $5, minimum_numbers = $6,
		    prize_amount = $7, draw_deadline = $8, updated_at = NOW()
		WHERE id = $1 AND state = 'active' AND winner_ticket_id IS NULL
		RETURNING updated_at
	`,
		raffle.ID,
		raffle.Name,
		raffle.Description,
		raffle.TicketPrice,
		raffle.TotalNumbers,
		raffle.MinimumNumbers,
		raffle.PrizeAmount,
		raffle.DrawDeadline,
	).Scan(&raffle.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRaffleSettled
	}
	return err
}

func (t *postgresTx) LockAccounts(ctx context.Context, accountIDs []uuid.UUID) ([]domain.Account, error) {
	ids := SortedUniqueIDs(accountIDs)
	accounts := make([]domain.Account, 0, len(ids))
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	for _, id := range ids {
		account, err := scanAccount(t.tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

func (t *postgresTx) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (t *postgresTx) InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (account_id, amount, balance_before, balance_after, reference, raffle_id, ticket_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return t.tx.QueryRow(ctx, query,
		entry.AccountID,
		entry.Amount,
		entry.BalanceBefore,
		entry.BalanceAfter,
		string(entry.Reference),
		entry.RaffleID,
		entry.TicketID,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (t *postgresTx) GetTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	return getTicket(ctx, t.tx, ticketID)
}

func (t *postgresTx) ListTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error) {
	return queryTickets(ctx, t.tx, `SELECT `+ticketColumns+` FROM tickets WHERE raffle_id = $1 ORDER BY number`, raffleID)
}

func (t *postgresTx) CountTickets(ctx context.Context, raffleID uuid.UUID) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE raffle_id = $1`, raffleID).Scan(&count)
	return count, err
}

func (t *postgresTx) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	query := `
		INSERT INTO tickets (id, raffle_id, buyer_id, account_id, number, is_winner)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING created_at
	`
	err := t.tx.QueryRow(ctx, query, ticket.ID, ticket.RaffleID, ticket.BuyerID, ticket.AccountID, ticket.Number).
		Scan(&ticket.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("level=info component=store msg=\"ticket number taken concurrently\" raffle_id=%s number=%d", ticket.RaffleID, ticket.Number)
			return domain.ErrNumberUnavailable
		}
		return err
	}
	return nil
}

func (t *postgresTx) DeleteTicket(ctx context.Context, ticketID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, ticketID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func (t *postgresTx) MarkWinner(ctx context.Context, raffleID, ticketID, winnerID uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE raffles
		SET state = 'sorted',
			winner_user_id = $2,
			winner_ticket_id = $3,
			drawn_at = $4,
			updated_at = NOW()
		WHERE id = $1
		  AND state = 'active'
		  AND winner_ticket_id IS NULL
	`, raffleID, winnerID, ticketID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyDrawn
	}

	tag, err = t.tx.Exec(ctx, `UPDATE tickets SET is_winner = TRUE WHERE id = $1 AND raffle_id = $2`, ticketID, raffleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func (t *postgresTx) CancelRaffle(ctx context.Context, raffleID uuid.UUID, reason string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE raffles
		SET state = 'cancelled',
			cancelled_at = $2,
			cancel_reason = $3,
			updated_at = NOW()
		WHERE id = $1
		  AND state <> 'cancelled'
	`, raffleID, at, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyCancelled
	}
	return nil
}

func (t *postgresTx) EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	blob, err := marshalEventPayload(payload)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO raffle_event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, exchange, routingKey, string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// --- Outbox ---

func (r *PostgresRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfter time.Duration) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	staleAfterSeconds := int(staleAfter.Seconds())
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = 120
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM raffle_event_outbox
			WHERE (
				(status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE raffle_event_outbox AS o
		SET status = 'processing',
			processing_started_at = NOW(),
			attempts = o.attempts + 1
		FROM candidates
		WHERE o.id = candidates.id
		RETURNING o.id, o.exchange, o.routing_key, o.payload::text, o.attempts
	`
	rows, err := r.db.Query(ctx, query, limit, staleAfterSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			msg         OutboxMessage
			payloadText string
		)
		if err := rows.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payloadText, &msg.Attempts); err != nil {
			return nil, err
		}
		msg.Payload = []byte(payloadText)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE raffle_event_outbox
		SET status = 'published',
			published_at = NOW(),
			processing_started_at = NULL,
			last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

func (r *PostgresRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfter time.Duration, reason string) error {
	retryAfterSeconds := int(retryAfter.Seconds())
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	_, err := r.db.Exec(ctx, `
		UPDATE raffle_event_outbox
		SET status = 'pending',
			next_attempt_at = NOW() + ($2 * INTERVAL '1 second'),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1
	`, id, retryAfterSeconds, truncateReason(reason))
	return err
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanRaffle(row rowScanner) (*domain.Raffle, error) {
	var (
		raffle    domain.Raffle
		prizeType string
		state     string
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
		&raffle.SalesStart,
		&raffle.DrawDeadline,
		&raffle.WinnerUserID,
		&raffle.WinnerTicketID,
		&raffle.DrawnAt,
		&raffle.CancelledAt,
		&raffle.CancelReason,
		&raffle.CreatedAt,
		&raffle.UpdatedAt,
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
	return &raffle, nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(&account.ID, &account.UserID, &account.Balance, &account.IsActive, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return nil, err
	}
	return &account, nil
}

func getTicket(ctx context.Context, q pgQuerier, ticketID uuid.UUID) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := q.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, ticketID).
		Scan(&ticket.ID, &ticket.RaffleID, &ticket.BuyerID, &ticket.AccountID, &ticket.Number, &ticket.IsWinner, &ticket.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func queryRaffles(ctx context.Context, q pgQuerier, query string, args ...any) ([]domain.Raffle, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	raffles := []domain.Raffle{}
	for rows.Next() {
		raffle, err := scanRaffle(rows)
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, *raffle)
	}
	return raffles, rows.Err()
}

func queryTickets(ctx context.Context, q pgQuerier, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(&ticket.ID, &ticket.RaffleID, &ticket.BuyerID, &ticket.AccountID, &ticket.Number, &ticket.IsWinner, &ticket.CreatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}
