package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

func TestExecuteDraw_HappyPath(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	alice := h.account("50")
	bob := h.account("50")
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "20", total: 10, minimum: 2})

	h.buy(alice, raffle, 3)
	h.buy(bob, raffle, 8)
	before := h.total(organizer, alice, bob, h.clearing)

	h.clock.Advance(2 * time.Hour)
	receipt, err := h.svc.ExecuteDraw(h.ctx, raffle.ID, false)
	if err != nil {
		t.Fatalf("expected draw to succeed, got %v", err)
	}

	if receipt.WinnerUserID != alice.UserID || receipt.WinningNumber != 3 || receipt.WinnerAccountID != alice.ID {
		t.Fatalf("expected alice to win with number 3, got %+v", receipt)
	}
	if receipt.TicketsSold != 2 || !receipt.TotalRevenue.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("expected 2 tickets and revenue 20, got %d and %s", receipt.TicketsSold, receipt.TotalRevenue)
	}
	if !receipt.DeficitCovered.IsZero() || !receipt.SurplusPaid.IsZero() {
		t.Fatalf("expected no deficit or surplus, got %s and %s", receipt.DeficitCovered, receipt.SurplusPaid)
	}
	if receipt.Status != "drawn" {
		t.Fatalf("expected status drawn, got %q", receipt.Status)
	}

	h.expectBalance(alice, "60")
	h.expectBalance(bob, "40")
	h.expectBalance(organizer, "0")
	h.expectBalance(h.clearing, "0")
	if after := h.total(organizer, alice, bob, h.clearing); !after.Equal(before) {
		t.Fatalf("expected total %s to be conserved, got %s", before, after)
	}

	stored := h.state(raffle)
	if stored.State != domain.RaffleStateSorted || stored.WinnerTicketID == nil || *stored.WinnerTicketID != receipt.WinnerTicketID {
		t.Fatalf("expected sorted raffle with recorded winner, got %+v", stored)
	}
}

func TestExecuteDraw_PaysSurplusToOrganizer(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	buyers := []*domain.Account{h.account("10"), h.account("10"), h.account("10")}
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "20", minimum: 2})
	for i, buyer := range buyers {
		h.buy(buyer, raffle, i+1)
	}
	h.svc.SetWinnerPicker(fixedPicker{idx: 2})

	h.clock.Advance(2 * time.Hour)
	receipt, err := h.svc.ExecuteDraw(h.ctx, raffle.ID, false)
	if err != nil {
		t.Fatalf("expected draw to succeed, got %v", err)
	}
	if receipt.WinningNumber != 3 {
		t.Fatalf("expected number 3 to win, got %d", receipt.WinningNumber)
	}
	if !receipt.SurplusPaid.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected surplus 10, got %s", receipt.SurplusPaid)
	}
	h.expectBalance(buyers[2], "20")
	h.expectBalance(organizer, "10")
	h.expectBalance(h.clearing, "0")
}

func TestExecuteDraw_OrganizerCoversDeficit(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("100")
	alice := h.account("10")
	bob := h.account("10")
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "50", minimum: 2})
	h.buy(alice, raffle, 1)
	h.buy(bob, raffle, 2)

	h.clock.Advance(2 * time.Hour)
	receipt, err := h.svc.ExecuteDraw(h.ctx, raffle.ID, false)
	if err != nil {
		t.Fatalf("expected draw to succeed, got %v", err)
	}
	if !receipt.DeficitCovered.Equal(decimal.RequireFromString("30")) {
		t.Fatalf("expected deficit 30, got %s", receipt.DeficitCovered)
	}
	h.expectBalance(organizer, "70")
	h.expectBalance(alice, "50")
	h.expectBalance(bob, "0")
	h.expectBalance(h.clearing, "0")
}

func TestExecuteDraw_AbortsWhenOrganizerCannotCoverDeficit(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	alice := h.account("10")
	bob := h.account("10")
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "500", minimum: 2})
	h.buy(alice, raffle, 1)
	h.buy(bob, raffle, 2)

	h.clock.Advance(2 * time.Hour)
	receipt, err := h.svc.ExecuteDraw(h.ctx, raffle.ID, false)
	if receipt != nil {
		t.Fatalf("expected no receipt, got %+v", receipt)
	}
	var aborted *domain.DrawAbortedError
	if !errors.As(err, &aborted) || !errors.Is(err, domain.ErrDrawAborted) {
		t.Fatalf("expected DrawAbortedError, got %v", err)
	}
	if !aborted.Deficit.Equal(decimal.RequireFromString("480")) {
		t.Fatalf("expected deficit 480, got %s", aborted.Deficit)
	}
	if aborted.Report == nil || aborted.Report.TicketsRefunded != 2 || !aborted.Report.TotalAmountRefunded.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("expected 2 refunds totalling 20, got %+v", aborted.Report)
	}

	h.expectBalance(alice, "10")
	h.expectBalance(bob, "10")
	h.expectBalance(organizer, "0")
	h.expectBalance(h.clearing, "0")

	stored := h.state(raffle)
	if stored.State != domain.RaffleStateCancelled || stored.HasWinner() {
		t.Fatalf("expected cancelled raffle without winner, got %+v", stored)
	}
	if n := h.soldCount(raffle); n != 0 {
		t.Fatalf("expected tickets to be removed, got %d", n)
	}
}

func TestExecuteDraw_AtMostOnce(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	alice := h.account("10")
	bob := h.account("10")
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "20", minimum: 2})
	h.buy(alice, raffle, 1)
	h.buy(bob, raffle, 2)

	h.clock.Advance(2 * time.Hour)
	if _, err := h.svc.ExecuteDraw(h.ctx, raffle.ID, false); err != nil {
		t.Fatalf("expected first draw to succeed, got %v", err)
	}
	snapshot := []decimal.Decimal{h.balance(organizer), h.balance(alice), h.balance(bob), h.balance(h.clearing)}

	h.svc.SetWinnerPicker(fixedPicker{idx: 1})
	_, err := h.svc.ExecuteDraw(h.ctx, raffle.ID, true)
	if !errors.Is(err, domain.ErrAlreadyDrawn) {
		t.Fatalf("expected ErrAlreadyDrawn, got %v", err)
	}

	after := []decimal.Decimal{h.balance(organizer), h.balance(alice), h.balance(bob), h.balance(h.clearing)}
	for i := range snapshot {
		if !snapshot[i].Equal(after[i]) {
			t.Fatalf("expected balance %d unchanged at %s, got %s", i, snapshot[i], after[i])
		}
	}
	if stored := h.state(raffle); stored.WinnerUserID == nil || *stored.WinnerUserID != alice.UserID {
		t.Fatalf("expected the first winner to stand, got %+v", stored.WinnerUserID)
	}
}

func TestExecuteDraw_NotReady(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	buyer := h.account("100")

	early := h.raffle(organizer, raffleParams{price: "10", prize: "10", minimum: 1})
	h.buy(buyer, early, 1)
	short := h.raffle(organizer, raffleParams{price: "10", prize: "10", minimum: 3})
	h.buy(buyer, short, 1)
	cancelled := h.raffle(organizer, raffleParams{price: "10", prize: "10", minimum: 1})
	if _, err := h.svc.CancelRaffle(h.ctx, organizer.UserID, cancelled.ID, ""); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}

	tests := []struct {
		name       string
		raffle     *domain.Raffle
		override   bool
		wantReason domain.DrawNotReadyReason
	}{
		{name: "before deadline", raffle: early, wantReason: domain.DrawReasonDeadlineNotReached},
		{name: "minimum not reached", raffle: short, override: true, wantReason: domain.DrawReasonMinimumNotReached},
		{name: "cancelled", raffle: cancelled, override: true, wantReason: domain.DrawReasonNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.ExecuteDraw(h.ctx, tt.raffle.ID, tt.override)
			var notReady *domain.DrawNotReadyError
			if !errors.As(err, &notReady) {
				t.Fatalf("expected DrawNotReadyError, got %v", err)
			}
			if notReady.Reason != tt.wantReason {
				t.Fatalf("expected reason %s, got %s", tt.wantReason, notReady.Reason)
			}
		})
	}

	if _, err := h.svc.ExecuteDraw(h.ctx, early.ID, true); err != nil {
		t.Fatalf("expected override to draw before the deadline, got %v", err)
	}
}

func TestExecuteDraw_NonMonetaryPrizeMovesNoMoney(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	alice := h.account("10")
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "900", minimum: 1, prizeType: domain.PrizeTypeNonMonetary})
	h.buy(alice, raffle, 4)

	h.clock.Advance(2 * time.Hour)
	receipt, err := h.svc.ExecuteDraw(h.ctx, raffle.ID, false)
	if err != nil {
		t.Fatalf("expected draw to succeed, got %v", err)
	}
	if receipt.WinnerUserID != alice.UserID || receipt.PrizeType != domain.PrizeTypeNonMonetary {
		t.Fatalf("expected alice to win a non-monetary prize, got %+v", receipt)
	}
	if !receipt.DeficitCovered.IsZero() || !receipt.SurplusPaid.IsZero() {
		t.Fatalf("expected no money settlement, got deficit %s surplus %s", receipt.DeficitCovered, receipt.SurplusPaid)
	}
	h.expectBalance(alice, "0")
	h.expectBalance(organizer, "0")
	h.expectBalance(h.clearing, "10")
}

func TestExecuteDraw_UnknownRaffle(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.svc.ExecuteDraw(h.ctx, h.clearing.ID, true); !errors.Is(err, domain.ErrRaffleNotFound) {
		t.Fatalf("expected ErrRaffleNotFound, got %v", err)
	}
}

func TestExecuteDraw_Concurrent(t *testing.T) {
	h := newHarness(t, Options{})
	organizer := h.account("0")
	alice := h.account("10")
	bob := h.account("10")
	raffle := h.raffle(organizer, raffleParams{price: "10", prize: "20", minimum: 2})
	h.buy(alice, raffle, 1)
	h.buy(bob, raffle, 2)
	h.clock.Advance(2 * time.Hour)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.ExecuteDraw(h.ctx, raffle.ID, false)
		}(i)
	}
	wg.Wait()

	var drawn, already int
	for i, err := range errs {
		switch {
		case err == nil:
			drawn++
		case errors.Is(err, domain.ErrAlreadyDrawn):
			already++
		default:
			t.Errorf("expected ErrAlreadyDrawn from worker %d, got %v", i, err)
		}
	}
	if drawn != 1 || already != workers-1 {
		t.Fatalf("expected drawn=1 already=%d, got drawn=%d already=%d", workers-1, drawn, already)
	}
	if stored := h.state(raffle); stored.State != domain.RaffleStateSorted {
		t.Fatalf("expected sorted raffle, got %s", stored.State)
	}
	h.expectBalance(alice, "20")
	h.expectBalance(h.clearing, "0")
}

func TestExecuteDraw_RacesCancel(t *testing.T) {
	for i := 0; i < 5; i++ {
		h := newHarness(t, Options{})
		organizer := h.account("0")
		alice := h.account("10")
		bob := h.account("10")
		raffle := h.raffle(organizer, raffleParams{price: "10", prize: "20", minimum: 2})
		h.buy(alice, raffle, 1)
		h.buy(bob, raffle, 2)
		before := h.total(organizer, alice, bob, h.clearing)

		var drawErr, cancelErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, drawErr = h.svc.ExecuteDraw(h.ctx, raffle.ID, true)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = h.svc.CancelRaffle(h.ctx, organizer.UserID, raffle.ID, "changed plans")
		}()
		wg.Wait()

		switch h.state(raffle).State {
		case domain.RaffleStateSorted:
			if drawErr != nil || !errors.Is(cancelErr, domain.ErrRaffleSettled) {
				t.Fatalf("expected draw to win and cancel to fail with ErrRaffleSettled, got draw=%v cancel=%v", drawErr, cancelErr)
			}
			h.expectBalance(alice, "20")
		case domain.RaffleStateCancelled:
			if cancelErr != nil || !errors.Is(drawErr, domain.ErrDrawNotReady) {
				t.Fatalf("expected cancel to win and draw to fail with ErrDrawNotReady, got draw=%v cancel=%v", drawErr, cancelErr)
			}
			h.expectBalance(alice, "10")
			h.expectBalance(bob, "10")
		default:
			t.Fatalf("expected the raffle to be settled one way, got %s", h.state(raffle).State)
		}
		h.expectBalance(h.clearing, "0")
		if after := h.total(organizer, alice, bob, h.clearing); !after.Equal(before) {
			t.Fatalf("expected total %s to be conserved, got %s", before, after)
		}
	}
}
