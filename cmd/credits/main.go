package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/infra"
)

func main() {
	var (
		userFlag  string
		grantFlag int
		noteFlag  string
	)
	flag.StringVar(&userFlag, "user", "", "owner ID to credit")
	flag.IntVar(&grantFlag, "grant", 0, "credits to add (omit or 0 to only print the balance)")
	flag.StringVar(&noteFlag, "note", "manual grant", "description recorded on the transaction")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if grantFlag < 0 {
		exitWithError(errors.New("-grant must not be negative"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "credits").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	provisioner := repo.NewOwnerProvisioner(runner)
	ledger := repo.NewCreditLedger(runner)

	if err := provisioner.EnsureOwner(ctx, userID); err != nil {
		exitWithError(fmt.Errorf("failed to provision owner: %w", err))
	}

	if grantFlag > 0 {
		if err := ledger.Grant(ctx, userID, grantFlag, strings.TrimSpace(noteFlag)); err != nil {
			exitWithError(fmt.Errorf("failed to grant credits: %w", err))
		}
	}

	balance, err := ledger.Balance(ctx, userID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to read balance: %w", err))
	}

	if grantFlag > 0 {
		fmt.Printf("granted %d credits to %s\n", grantFlag, userID)
	}
	fmt.Printf("balance=%d\n", balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
