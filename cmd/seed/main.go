package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/minseo/accountd/internal/config"
	"github.com/minseo/accountd/internal/domain"
	"github.com/minseo/accountd/internal/logging"
	"github.com/minseo/accountd/internal/service"
	"github.com/minseo/accountd/internal/store"
)

// Loads a handful of demo users and accounts into Postgres so the server
// can be exercised locally without a provisioning flow.
func main() {
	var (
		users    = flag.Int("users", 3, "Number of demo users to create")
		accounts = flag.Int("accounts-per-user", 2, "Accounts opened for each user")
		balance  = flag.Int64("balance", 10000, "Initial balance per account, in minor units")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "seed")
	ctx := context.Background()

	pg, err := store.NewPostgres(ctx, store.PostgresOptions{
		URL:      cfg.Postgres.URL,
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	svc := service.NewAccountService(pg, pg, pg)
	now := time.Now().UTC()

	for i := 1; i <= *users; i++ {
		user := domain.User{
			ID:        fmt.Sprintf("USR-%03d", i),
			Name:      fmt.Sprintf("Demo User %d", i),
			CreatedAt: now,
		}
		if err := pg.UpsertUser(ctx, user); err != nil {
			logger.Error("failed to seed user", "user", user.ID, "error", err)
			os.Exit(1)
		}

		for j := 0; j < *accounts; j++ {
			acct, err := svc.CreateAccount(ctx, user.ID, *balance)
			if err != nil {
				logger.Error("failed to open account", "user", user.ID, "error", err)
				os.Exit(1)
			}
			logger.Info("opened account", "user", user.ID, "account", acct.Number, "balance", acct.Balance)
		}
	}

	logger.Info("seed complete", "users", *users, "accountsPerUser", *accounts)
}
