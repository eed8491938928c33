/**
 * @description
 * Operator tool for the raffle service.
 *
 * Usage:
 *   raffle-admin cancel <raffle-id> [--reason "venue closed"] [--yes]
 *   raffle-admin create-account --user <user-id> [--balance 0]
 *
 * `cancel` shows the raffle first and asks for confirmation before refunding
 * every ticket. `create-account` provisions an account, typically the clearing
 * account referenced by CLEARING_ACCOUNT_ID.
 *
 * @dependencies
 * - github.com/joho/godotenv: picks up ../.env and .env when present.
 * - github.com/spf13/pflag: flags.
 * - golang.org/x/term: refuses to prompt when stdin is not a terminal.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/bootstrap"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/config"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  raffle-admin cancel <raffle-id> [--reason text] [--yes]")
	fmt.Println("  raffle-admin create-account --user <user-id> [--balance amount]")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	loadEnvFiles("../.env", ".env")

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=admin msg=\"config load failed\" err=%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "cancel":
		err = runCancel(ctx, cfg, os.Args[2:])
	case "create-account":
		err = runCreateAccount(ctx, cfg, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCancel(ctx context.Context, cfg config.Config, args []string) error {
	flags := pflag.NewFlagSet("cancel", pflag.ContinueOnError)
	reason := flags.String("reason", "", "cancellation reason recorded on the raffle")
	yes := flags.Bool("yes", false, "skip the confirmation prompt")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("cancel expects exactly one raffle id")
	}
	raffleID, err := uuid.Parse(flags.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid raffle id %q: %w", flags.Arg(0), err)
	}

	repository, err := bootstrap.OpenRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repository.Close()

	svc, err := bootstrap.NewService(ctx, cfg, repository, nil, nil, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Fetching raffle %s\n", raffleID)
	view, err := svc.GetRaffle(ctx, raffleID)
	if err != nil {
		return err
	}
	describeRaffle(os.Stdout, view)

	if !*yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("stdin is not a terminal; pass --yes to cancel without a prompt")
		}
		if !confirm(os.Stdin, os.Stdout, "Are you sure you want to cancel this raffle and refund every ticket?") {
			fmt.Println("Cancellation aborted.")
			return nil
		}
	}

	report, err := svc.AdminCancelRaffle(ctx, raffleID, *reason)
	if err != nil {
		return err
	}
	if report.AlreadyCancelled {
		fmt.Printf("Raffle %s was already cancelled. Nothing to do.\n", raffleID)
		return nil
	}
	fmt.Printf("Cancelled raffle %s\n", raffleID)
	fmt.Printf("  Tickets refunded: %d (%s)\n", report.TicketsRefunded, report.TotalAmountRefunded.StringFixed(2))
	if report.TicketsSkipped > 0 {
		fmt.Printf("  Tickets removed without refund: %d\n", report.TicketsSkipped)
	}
	if report.WasAlreadyDrawn {
		fmt.Println("  Warning: the raffle had been drawn; the prize payout was not reversed.")
	}
	return nil
}

func runCreateAccount(ctx context.Context, cfg config.Config, args []string) error {
	flags := pflag.NewFlagSet("create-account", pflag.ContinueOnError)
	user := flags.String("user", "", "owner user id")
	balance := flags.String("balance", "0", "opening balance")
	if err := flags.Parse(args); err != nil {
		return err
	}
	userID, err := uuid.Parse(*user)
	if err != nil || userID == uuid.Nil {
		return fmt.Errorf("invalid --user %q", *user)
	}
	opening, err := decimal.NewFromString(*balance)
	if err != nil || opening.IsNegative() {
		return fmt.Errorf("invalid --balance %q", *balance)
	}

	repository, err := bootstrap.OpenRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repository.Close()

	account := &domain.Account{UserID: userID, Balance: opening, IsActive: true}
	if err := repository.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	fmt.Printf("Created account %s for user %s with balance %s\n", account.ID, userID, opening.StringFixed(2))
	return nil
}

func describeRaffle(w io.Writer, view *domain.RaffleView) {
	fmt.Fprintf(w, "Raffle Details:\n")
	fmt.Fprintf(w, "  ID: %s\n", view.ID)
	fmt.Fprintf(w, "  Name: %s\n", view.Name)
	fmt.Fprintf(w, "  State: %s (%s)\n", view.State, view.Status)
	fmt.Fprintf(w, "  Tickets sold: %d of %d (minimum %d)\n", view.NumbersSold, view.TotalNumbers, view.MinimumNumbers)
	fmt.Fprintf(w, "  Refund due: %s\n", view.Revenue(view.NumbersSold).StringFixed(2))
	fmt.Fprintf(w, "  Draw deadline: %s\n", view.DrawDeadline.UTC().Format(time.RFC3339))
}

// loadEnvFiles loads each file that exists. Variables already set in the
// environment win.
func loadEnvFiles(filenames ...string) {
	for _, filename := range filenames {
		if _, err := os.Stat(filename); err != nil {
			continue
		}
		if err := godotenv.Load(filename); err != nil {
			log.Printf("level=warn component=admin msg=\"could not read env file\" file=%s err=%v", filename, err)
		}
	}
}

// confirm asks prompt on out and reports whether the operator typed "yes".
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "\n%s (yes/no): ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes")
}
