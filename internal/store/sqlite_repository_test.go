package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

func TestSortedUniqueIDs(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	b := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	c := uuid.MustParse("ff000000-0000-0000-0000-000000000000")

	got := SortedUniqueIDs([]uuid.UUID{c, a, uuid.Nil, b, a, c})
	want := []uuid.UUID{a, b, c}
	if len(got) != len(want) {
		t.Fatalf("expected %d ids, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected ids[%d]=%s, got %s", i, want[i], got[i])
		}
	}
}

func TestMapConflict(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantConflict bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, wantConflict: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, wantConflict: true},
		{name: "lock not available", err: &pgconn.PgError{Code: "55P03"}, wantConflict: true},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, wantConflict: false},
		{name: "plain error", err: errors.New("boom"), wantConflict: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapConflict(tt.err)
			if errors.Is(got, domain.ErrPersistenceConflict) != tt.wantConflict {
				t.Fatalf("expected conflict=%t, got %v", tt.wantConflict, got)
			}
		})
	}

	if mapConflict(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected 23503 not to be a unique violation")
	}
}

func newSQLiteFixture(t *testing.T) (*SQLiteRepository, *domain.Account, *domain.Raffle) {
	t.Helper()
	ctx := context.Background()

	repo, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("expected sqlite to open, got %v", err)
	}
	t.Cleanup(repo.Close)

	organizer := &domain.Account{UserID: uuid.New(), Balance: decimal.RequireFromString("500.00"), IsActive: true}
	if err := repo.CreateAccount(ctx, organizer); err != nil {
		t.Fatalf("expected account insert to succeed, got %v", err)
	}

	now := time.Now().UTC()
	raffle := &domain.Raffle{
		Name:               "Bicycle",
		OrganizerID:        organizer.UserID,
		OrganizerAccountID: organizer.ID,
		TicketPrice:        decimal.RequireFromString("5.00"),
		TotalNumbers:       10,
		MinimumNumbers:     2,
		PrizeAmount:        decimal.RequireFromString("20.00"),
		PrizeType:          domain.PrizeTypeMonetary,
		State:              domain.RaffleStateActive,
		SalesStart:         now.Add(-time.Hour),
		DrawDeadline:       now.Add(time.Hour),
	}
	if err := repo.CreateRaffle(ctx, raffle); err != nil {
		t.Fatalf("expected raffle insert to succeed, got %v", err)
	}
	return repo, organizer, raffle
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, organizer, raffle := newSQLiteFixture(t)

	got, err := repo.GetRaffle(ctx, raffle.ID)
	if err != nil {
		t.Fatalf("expected raffle lookup to succeed, got %v", err)
	}
	if got.Name != raffle.Name || !got.TicketPrice.Equal(raffle.TicketPrice) || got.State != domain.RaffleStateActive {
		t.Fatalf("expected stored raffle to match, got %+v", got)
	}
	if !got.DrawDeadline.Equal(raffle.DrawDeadline) {
		t.Fatalf("expected deadline %s, got %s", raffle.DrawDeadline, got.DrawDeadline)
	}

	account, err := repo.GetAccount(ctx, organizer.ID)
	if err != nil {
		t.Fatalf("expected account lookup to succeed, got %v", err)
	}
	if !account.Balance.Equal(decimal.RequireFromString("500")) || !account.IsActive {
		t.Fatalf("expected active account with 500, got %+v", account)
	}

	if _, err := repo.GetRaffle(ctx, uuid.New()); !errors.Is(err, domain.ErrRaffleNotFound) {
		t.Fatalf("expected ErrRaffleNotFound, got %v", err)
	}
	if _, err := repo.GetAccount(ctx, uuid.New()); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSQLiteInsertTicketRejectsDuplicateNumber(t *testing.T) {
	ctx := context.Background()
	repo, organizer, raffle := newSQLiteFixture(t)

	insert := func() error {
		return repo.WithinTx(ctx, func(tx Tx) error {
			return tx.InsertTicket(ctx, &domain.Ticket{
				RaffleID:  raffle.ID,
				BuyerID:   organizer.UserID,
				AccountID: organizer.ID,
				Number:    7,
			})
		})
	}

	if err := insert(); err != nil {
		t.Fatalf("expected first insert to succeed, got %v", err)
	}
	if err := insert(); !errors.Is(err, domain.ErrNumberUnavailable) {
		t.Fatalf("expected ErrNumberUnavailable, got %v", err)
	}

	count, err := repo.CountTickets(ctx, raffle.ID)
	if err != nil {
		t.Fatalf("expected count to succeed, got %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 ticket, got %d", count)
	}
}

func TestSQLiteMarkWinnerIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo, organizer, raffle := newSQLiteFixture(t)

	ticket := &domain.Ticket{RaffleID: raffle.ID, BuyerID: organizer.UserID, AccountID: organizer.ID, Number: 3}
	if err := repo.WithinTx(ctx, func(tx Tx) error { return tx.InsertTicket(ctx, ticket) }); err != nil {
		t.Fatalf("expected ticket insert to succeed, got %v", err)
	}

	at := time.Now().UTC()
	mark := func() error {
		return repo.WithinTx(ctx, func(tx Tx) error {
			return tx.MarkWinner(ctx, raffle.ID, ticket.ID, ticket.BuyerID, at)
		})
	}
	if err := mark(); err != nil {
		t.Fatalf("expected first draw to succeed, got %v", err)
	}
	if err := mark(); !errors.Is(err, domain.ErrAlreadyDrawn) {
		t.Fatalf("expected ErrAlreadyDrawn, got %v", err)
	}

	got, err := repo.GetRaffle(ctx, raffle.ID)
	if err != nil {
		t.Fatalf("expected raffle lookup to succeed, got %v", err)
	}
	if got.State != domain.RaffleStateSorted || got.WinnerTicketID == nil || *got.WinnerTicketID != ticket.ID {
		t.Fatalf("expected sorted raffle with winner %s, got %+v", ticket.ID, got)
	}
	stored, err := repo.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("expected ticket lookup to succeed, got %v", err)
	}
	if !stored.IsWinner {
		t.Fatalf("expected ticket to be flagged as winner")
	}
}

func TestSQLiteCancelRaffleIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo, _, raffle := newSQLiteFixture(t)

	cancel := func() error {
		return repo.WithinTx(ctx, func(tx Tx) error {
			return tx.CancelRaffle(ctx, raffle.ID, "organizer request", time.Now().UTC())
		})
	}
	if err := cancel(); err != nil {
		t.Fatalf("expected first cancel to succeed, got %v", err)
	}
	if err := cancel(); !errors.Is(err, domain.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}

	got, err := repo.GetRaffle(ctx, raffle.ID)
	if err != nil {
		t.Fatalf("expected raffle lookup to succeed, got %v", err)
	}
	if got.State != domain.RaffleStateCancelled || got.CancelReason == nil || *got.CancelReason != "organizer request" {
		t.Fatalf("expected cancelled raffle with reason, got %+v", got)
	}
}

func TestSQLiteTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo, organizer, raffle := newSQLiteFixture(t)

	errBoom := errors.New("boom")
	err := repo.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpdateAccountBalance(ctx, organizer.ID, decimal.RequireFromString("1.00")); err != nil {
			return err
		}
		if err := tx.InsertLedgerEntry(ctx, &domain.LedgerEntry{
			AccountID:     organizer.ID,
			Amount:        decimal.RequireFromString("-499.00"),
			BalanceBefore: decimal.RequireFromString("500.00"),
			BalanceAfter:  decimal.RequireFromString("1.00"),
			Reference:     domain.RefTicketPurchase,
			RaffleID:      raffle.ID,
		}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}

	account, err := repo.GetAccount(ctx, organizer.ID)
	if err != nil {
		t.Fatalf("expected account lookup to succeed, got %v", err)
	}
	if !account.Balance.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("expected balance to be rolled back to 500, got %s", account.Balance)
	}
	entries, err := repo.ListLedgerEntries(ctx, organizer.ID, 10)
	if err != nil {
		t.Fatalf("expected ledger listing to succeed, got %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no ledger entries after rollback, got %d", len(entries))
	}
}

func TestSQLiteOutboxClaimAndRetry(t *testing.T) {
	ctx := context.Background()
	repo, _, raffle := newSQLiteFixture(t)

	err := repo.WithinTx(ctx, func(tx Tx) error {
		return tx.EnqueueEvent(ctx, "raffle.events", domain.EventRaffleCancelled, map[string]string{"raffle_id": raffle.ID.String()})
	})
	if err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}

	claimed, err := repo.ClaimOutboxMessages(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("expected claim to succeed, got %v", err)
	}
	if len(claimed) != 1 || claimed[0].RoutingKey != domain.EventRaffleCancelled || claimed[0].Attempts != 1 {
		t.Fatalf("expected one claimed message on first attempt, got %+v", claimed)
	}

	again, err := repo.ClaimOutboxMessages(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("expected second claim to succeed, got %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected in-flight message not to be reclaimed, got %d", len(again))
	}

	if err := repo.MarkOutboxFailed(ctx, claimed[0].ID, time.Hour, "broker down"); err != nil {
		t.Fatalf("expected mark failed to succeed, got %v", err)
	}
	if backoff, _ := repo.ClaimOutboxMessages(ctx, 10, time.Minute); len(backoff) != 0 {
		t.Fatalf("expected message to wait for its retry window, got %d", len(backoff))
	}
	if err := repo.MarkOutboxPublished(ctx, claimed[0].ID); err != nil {
		t.Fatalf("expected mark published to succeed, got %v", err)
	}
}

func addSQLiteRaffle(t *testing.T, repo *SQLiteRepository, organizer *domain.Account, price string, deadline time.Time) *domain.Raffle {
	t.Helper()
	raffle := &domain.Raffle{
		Name:               "Raffle",
		OrganizerID:        organizer.UserID,
		OrganizerAccountID: organizer.ID,
		TicketPrice:        decimal.RequireFromString(price),
		TotalNumbers:       10,
		MinimumNumbers:     1,
		PrizeAmount:        decimal.RequireFromString("10.00"),
		PrizeType:          domain.PrizeTypeMonetary,
		State:              domain.RaffleStateActive,
		SalesStart:         deadline.Add(-24 * time.Hour),
		DrawDeadline:       deadline,
	}
	if err := repo.CreateRaffle(context.Background(), raffle); err != nil {
		t.Fatalf("expected raffle insert to succeed, got %v", err)
	}
	return raffle
}

func TestSQLiteListExpiredRafflesPagesByCursor(t *testing.T) {
	ctx := context.Background()
	repo, organizer, _ := newSQLiteFixture(t)

	now := time.Now().UTC()
	tie := now.Add(-2 * time.Hour)
	want := map[uuid.UUID]bool{
		addSQLiteRaffle(t, repo, organizer, "1", now.Add(-3*time.Hour)).ID: true,
		addSQLiteRaffle(t, repo, organizer, "1", tie).ID:                   true,
		addSQLiteRaffle(t, repo, organizer, "1", tie).ID:                   true,
	}

	seen := map[uuid.UUID]bool{}
	var cursor *RaffleCursor
	pages := 0
	for {
		page, err := repo.ListExpiredRaffles(ctx, now, cursor, 2)
		if err != nil {
			t.Fatalf("expected page to load, got %v", err)
		}
		pages++
		for _, raffle := range page {
			if seen[raffle.ID] {
				t.Fatalf("expected raffle %s once, got it again on page %d", raffle.ID, pages)
			}
			seen[raffle.ID] = true
		}
		if len(page) < 2 {
			break
		}
		cursor = CursorAfter(page[len(page)-1])
	}

	if pages != 2 || len(seen) != len(want) {
		t.Fatalf("expected 3 raffles over 2 pages, got %d over %d", len(seen), pages)
	}
	for id := range want {
		if !seen[id] {
			t.Fatalf("expected expired raffle %s to be listed", id)
		}
	}
}

func TestSQLiteListRafflesFilters(t *testing.T) {
	ctx := context.Background()
	repo, organizer, first := newSQLiteFixture(t)

	other := &domain.Account{UserID: uuid.New(), Balance: decimal.Zero, IsActive: true}
	if err := repo.CreateAccount(ctx, other); err != nil {
		t.Fatalf("expected account insert to succeed, got %v", err)
	}
	now := time.Now().UTC()
	cancelled := addSQLiteRaffle(t, repo, organizer, "1", now.Add(2*time.Hour))
	foreign := addSQLiteRaffle(t, repo, other, "1", now.Add(3*time.Hour))
	if err := repo.WithinTx(ctx, func(tx Tx) error {
		return tx.CancelRaffle(ctx, cancelled.ID, "organizer request", now)
	}); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}

	tests := []struct {
		name   string
		filter RaffleFilter
		want   []uuid.UUID
	}{
		{name: "active only", filter: RaffleFilter{State: domain.RaffleStateActive}, want: []uuid.UUID{first.ID, foreign.ID}},
		{name: "by organizer", filter: RaffleFilter{OrganizerID: organizer.UserID}, want: []uuid.UUID{first.ID, cancelled.ID}},
		{name: "organizer and state", filter: RaffleFilter{OrganizerID: organizer.UserID, State: domain.RaffleStateCancelled}, want: []uuid.UUID{cancelled.ID}},
		{name: "paged", filter: RaffleFilter{Limit: 1, Offset: 1}, want: []uuid.UUID{cancelled.ID}},
		{name: "nothing matches", filter: RaffleFilter{OrganizerID: uuid.New()}, want: []uuid.UUID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListRaffles(ctx, tt.filter)
			if err != nil {
				t.Fatalf("expected listing to succeed, got %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d raffles, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Fatalf("expected raffle %s at %d, got %s", id, i, got[i].ID)
				}
			}
		})
	}
}

func TestSQLiteBuyerTicketsAndStats(t *testing.T) {
	ctx := context.Background()
	repo, organizer, first := newSQLiteFixture(t)
	second := addSQLiteRaffle(t, repo, organizer, "2.50", time.Now().UTC().Add(2*time.Hour))

	buyer := uuid.New()
	insert := func(raffle *domain.Raffle, number int) *domain.Ticket {
		t.Helper()
		ticket := &domain.Ticket{RaffleID: raffle.ID, BuyerID: buyer, AccountID: organizer.ID, Number: number}
		if err := repo.WithinTx(ctx, func(tx Tx) error { return tx.InsertTicket(ctx, ticket) }); err != nil {
			t.Fatalf("expected ticket insert to succeed, got %v", err)
		}
		return ticket
	}
	winner := insert(first, 1)
	insert(first, 2)
	insert(second, 5)

	empty, err := repo.TicketStats(ctx, uuid.New())
	if err != nil {
		t.Fatalf("expected stats to succeed, got %v", err)
	}
	if empty.TotalTickets != 0 || !empty.AmountSpent.IsZero() || empty.WinRate != "0.0%" {
		t.Fatalf("expected empty stats, got %+v", empty)
	}

	if err := repo.WithinTx(ctx, func(tx Tx) error {
		return tx.MarkWinner(ctx, first.ID, winner.ID, buyer, time.Now().UTC())
	}); err != nil {
		t.Fatalf("expected draw to succeed, got %v", err)
	}

	tickets, err := repo.ListTicketsByBuyer(ctx, buyer, 0, 0)
	if err != nil {
		t.Fatalf("expected buyer tickets, got %v", err)
	}
	if len(tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(tickets))
	}
	for _, ticket := range tickets {
		wantState := domain.RaffleStateActive
		if ticket.RaffleID == first.ID {
			wantState = domain.RaffleStateSorted
		}
		if ticket.RaffleState != wantState || ticket.RaffleName == "" {
			t.Fatalf("expected raffle details with state %s, got %+v", wantState, ticket)
		}
	}
	if page, _ := repo.ListTicketsByBuyer(ctx, buyer, 2, 2); len(page) != 1 {
		t.Fatalf("expected the second page to hold 1 ticket, got %d", len(page))
	}

	stats, err := repo.TicketStats(ctx, buyer)
	if err != nil {
		t.Fatalf("expected stats to succeed, got %v", err)
	}
	if stats.TotalTickets != 3 || stats.WinningTickets != 1 || stats.ActiveTickets != 1 {
		t.Fatalf("expected 3 total, 1 winning, 1 active, got %+v", stats)
	}
	if !stats.AmountSpent.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected 12.50 spent, got %s", stats.AmountSpent)
	}
	if stats.WinRate != "33.3%" {
		t.Fatalf("expected win rate 33.3%%, got %s", stats.WinRate)
	}
}

func TestSQLiteUpdateRaffle(t *testing.T) {
	ctx := context.Background()
	repo, _, raffle := newSQLiteFixture(t)

	update := func(r *domain.Raffle) error {
		return repo.WithinTx(ctx, func(tx Tx) error { return tx.UpdateRaffle(ctx, r) })
	}

	edited := *raffle
	edited.Name = "Mountain bike"
	edited.TicketPrice = decimal.RequireFromString("7.50")
	edited.DrawDeadline = raffle.DrawDeadline.Add(time.Hour)
	if err := update(&edited); err != nil {
		t.Fatalf("expected update to succeed, got %v", err)
	}
	got, err := repo.GetRaffle(ctx, raffle.ID)
	if err != nil {
		t.Fatalf("expected raffle lookup to succeed, got %v", err)
	}
	if got.Name != "Mountain bike" || !got.TicketPrice.Equal(edited.TicketPrice) || !got.DrawDeadline.Equal(edited.DrawDeadline) {
		t.Fatalf("expected edited raffle, got %+v", got)
	}

	if err := repo.WithinTx(ctx, func(tx Tx) error {
		return tx.CancelRaffle(ctx, raffle.ID, "organizer request", time.Now().UTC())
	}); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if err := update(&edited); !errors.Is(err, domain.ErrRaffleSettled) {
		t.Fatalf("expected ErrRaffleSettled for a cancelled raffle, got %v", err)
	}
}
