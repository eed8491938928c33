/**
 * @description
 * One-shot expiry sweep. Draws or cancels every raffle whose deadline has
 * passed, prints a summary and exits 1 when any raffle could not be settled.
 *
 * Usage:
 *   raffle-sweep [--dry-run] [--force] [--now 2026-03-01T12:00:00Z] [--refund-policy strict|tolerant]
 *
 * @dependencies
 * - github.com/spf13/pflag: command line flags, bound into viper keys.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/bootstrap"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/clock"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/config"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

type options struct {
	dryRun    bool
	force     bool
	now       string
	configDir string
}

func parseFlags(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	flags := pflag.NewFlagSet("raffle-sweep", pflag.ContinueOnError)
	flags.BoolVar(&opts.dryRun, "dry-run", false, "report what would happen without changing anything")
	flags.BoolVar(&opts.force, "force", false, "ignore the sweep grace period")
	flags.StringVar(&opts.now, "now", "", "evaluate deadlines at this RFC3339 instant instead of the current time")
	flags.StringVar(&opts.configDir, "config-dir", ".", "directory holding the optional .env file")
	flags.String("refund-policy", config.RefundPolicyStrict, "refund shortfall policy: strict or tolerant")
	flags.Duration("grace", time.Hour, "sweep grace period")
	if err := flags.Parse(args); err != nil {
		return options{}, nil, err
	}
	return opts, flags, nil
}

func main() {
	opts, flags, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}
	_ = viper.BindPFlag("REFUND_SHORTFALL_POLICY", flags.Lookup("refund-policy"))
	_ = viper.BindPFlag("SWEEP_GRACE_PERIOD", flags.Lookup("grace"))

	cfg, err := config.LoadConfig(opts.configDir)
	if err != nil {
		log.Fatalf("level=fatal component=sweep msg=\"config load failed\" err=%v", err)
	}

	var clk clock.Clock
	if opts.now != "" {
		at, err := time.Parse(time.RFC3339, opts.now)
		if err != nil {
			log.Fatalf("level=fatal component=sweep msg=\"invalid --now value\" value=%q err=%v", opts.now, err)
		}
		clk = clock.Fixed(at)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repository, err := bootstrap.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("level=fatal component=sweep msg=\"store open failed\" err=%v", err)
	}
	defer repository.Close()

	redisClient := bootstrap.OpenRedis(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	svc, err := bootstrap.NewService(ctx, cfg, repository, clk, nil, redisClient)
	if err != nil {
		log.Fatalf("level=fatal component=sweep msg=\"settlement service init failed\" err=%v", err)
	}

	report, err := svc.SweepExpiredRaffles(ctx, opts.dryRun, opts.force)
	if err != nil {
		log.Printf("level=error component=sweep msg=\"sweep failed\" err=%v", err)
		repository.Close()
		os.Exit(1)
	}

	printReport(os.Stdout, report)
	if code := exitCode(report); code != 0 {
		repository.Close()
		os.Exit(code)
	}
}

func exitCode(report *domain.SweepReport) int {
	if report.HasFailures() {
		return 1
	}
	return 0
}

func printReport(w io.Writer, report *domain.SweepReport) {
	mode := "live"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "Sweep at %s (%s, force=%t)\n", report.StartedAt.UTC().Format(time.RFC3339), mode, report.Force)

	if len(report.Items) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RAFFLE\tNAME\tSOLD/MIN\tDECISION\tOUTCOME\tREFUNDED\tERROR")
		for _, item := range report.Items {
			fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\t%s\n",
				item.RaffleID, item.Name, item.NumbersSold, item.Minimum,
				describeDecision(item, report.DryRun), item.Outcome, item.Refunded.StringFixed(2), item.Error)
		}
		tw.Flush()
	}

	fmt.Fprintf(w, "Found: %d  Drawn: %d  Cancelled: %d  Aborted: %d  Skipped: %d  Failed: %d\n",
		report.Found, report.Drawn, report.Cancelled, report.Aborted, report.Skipped, report.Failed)
	fmt.Fprintf(w, "Tickets refunded: %d  Total refunded: %s\n", report.TicketsRefunded, report.TotalRefunded.StringFixed(2))
}

func describeDecision(item domain.SweepItem, dryRun bool) string {
	if dryRun {
		return "would " + string(item.Decision)
	}
	return string(item.Decision)
}
