package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

type sweeperStub struct {
	report   *domain.SweepReport
	err      error
	calls    int
	dryRun   bool
	force    bool
	deadline bool
}

func (s *sweeperStub) SweepExpiredRaffles(ctx context.Context, dryRun, force bool) (*domain.SweepReport, error) {
	s.calls++
	s.dryRun, s.force = dryRun, force
	_, s.deadline = ctx.Deadline()
	return s.report, s.err
}

func TestProcessRaffleExpiry_RunsRealSweep(t *testing.T) {
	var buf bytes.Buffer
	sweeper := &sweeperStub{report: &domain.SweepReport{
		Found:         2,
		Drawn:         1,
		Failed:        1,
		TotalRefunded: decimal.Zero,
		Items: []domain.SweepItem{
			{RaffleID: uuid.New(), Decision: domain.SweepDecisionDraw, Outcome: domain.SweepOutcomeDrawn, Refunded: decimal.Zero},
			{RaffleID: uuid.New(), Decision: domain.SweepDecisionCancel, Outcome: domain.SweepOutcomeFailed, Error: "boom", Refunded: decimal.Zero},
		},
	}}
	jobs := NewJobs(sweeper, slog.New(slog.NewJSONHandler(&buf, nil)), time.Minute)

	jobs.ProcessRaffleExpiry()

	if sweeper.calls != 1 || sweeper.dryRun || sweeper.force {
		t.Fatalf("expected one real, unforced sweep, got calls=%d dryRun=%t force=%t", sweeper.calls, sweeper.dryRun, sweeper.force)
	}
	if !sweeper.deadline {
		t.Fatalf("expected the sweep to run under a timeout")
	}
	out := buf.String()
	if !strings.Contains(out, "failed to settle expired raffle") || !strings.Contains(out, "raffle expiry job finished") {
		t.Fatalf("expected per-raffle failure and summary logs, got %s", out)
	}
}

func TestProcessRaffleExpiry_LogsSweepError(t *testing.T) {
	var buf bytes.Buffer
	sweeper := &sweeperStub{err: errors.New("database unavailable")}
	jobs := NewJobs(sweeper, slog.New(slog.NewJSONHandler(&buf, nil)), 0)

	jobs.ProcessRaffleExpiry()

	if sweeper.deadline {
		t.Fatalf("expected no timeout when none is configured")
	}
	if !strings.Contains(buf.String(), "raffle expiry sweep failed") {
		t.Fatalf("expected error log, got %s", buf.String())
	}
}

func TestSchedulerStart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := NewJobs(&sweeperStub{report: &domain.SweepReport{}}, logger, 0)

	bad := NewScheduler(jobs, logger, "every now and then")
	if err := bad.Start(); err == nil {
		t.Fatalf("expected invalid schedule to be rejected")
	}

	good := NewScheduler(jobs, logger, "*/5 * * * *")
	if err := good.Start(); err != nil {
		t.Fatalf("expected valid schedule to start, got %v", err)
	}
	if entries := good.cron.Entries(); len(entries) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(entries))
	}
	<-good.Stop().Done()
}
