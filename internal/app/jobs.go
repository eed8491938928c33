/**
 * @description
 * Scheduled job implementations for the raffle scheduler.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

// Sweeper settles expired raffles.
type Sweeper interface {
	SweepExpiredRaffles(ctx context.Context, dryRun, force bool) (*domain.SweepReport, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	sweeper Sweeper
	logger  *slog.Logger
	timeout time.Duration
}

// NewJobs creates a new Jobs runner. timeout bounds one sweep run; zero means no bound.
func NewJobs(sweeper Sweeper, logger *slog.Logger, timeout time.Duration) *Jobs {
	return &Jobs{
		sweeper: sweeper,
		logger:  logger,
		timeout: timeout,
	}
}

// ProcessRaffleExpiry draws or cancels every raffle past its deadline.
func (j *Jobs) ProcessRaffleExpiry() {
	j.logger.Info("starting raffle expiry job")
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	report, err := j.sweeper.SweepExpiredRaffles(ctx, false, false)
	if err != nil {
		j.logger.Error("raffle expiry sweep failed", "error", err)
		return
	}

	if report.Found == 0 {
		j.logger.Info("no expired raffles to process")
		return
	}

	for _, item := range report.Items {
		if item.Outcome == domain.SweepOutcomeFailed {
			j.logger.Error("failed to settle expired raffle", "raffle_id", item.RaffleID, "decision", item.Decision, "error", item.Error)
			continue
		}
		j.logger.Info("settled expired raffle", "raffle_id", item.RaffleID, "decision", item.Decision, "outcome", item.Outcome, "refunded", item.Refunded.StringFixed(2))
	}

	j.logger.Info("raffle expiry job finished",
		"found", report.Found,
		"drawn", report.Drawn,
		"cancelled", report.Cancelled,
		"aborted", report.Aborted,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"total_refunded", report.TotalRefunded.StringFixed(2),
	)
}
