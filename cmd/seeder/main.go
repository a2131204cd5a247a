package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/ledgerbank/internal/auth"
	"github.com/punchamoorthee/ledgerbank/internal/config"
	"github.com/punchamoorthee/ledgerbank/internal/service"
	"github.com/punchamoorthee/ledgerbank/internal/store"
)

// InitialBalance is in currency units.
const InitialBalance = 100.0

func main() {
	users := flag.Int("users", 1000, "Number of users to seed, one current account each")
	tokens := flag.Int("tokens", 5, "Print bearer tokens for the first N users")
	ttl := flag.Duration("ttl", 24*time.Hour, "Lifetime of printed tokens")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.StoreDriver != config.DriverPostgres {
		slog.Error("Seeder requires STORE_DRIVER=postgres")
		os.Exit(1)
	}

	ctx := context.Background()
	pg, err := store.NewPostgres(ctx, cfg.DBSource, cfg.DBMaxConns)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}

	slog.Info("--- Seeding Database ---")

	var count int
	if err := pg.Db.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		slog.Error("Unable to count accounts", "error", err)
		os.Exit(1)
	}
	if count >= *users {
		slog.Info("Database already seeded, skipping", "accounts", count)
		return
	}

	taken, err := existingNumbers(ctx, pg)
	if err != nil {
		slog.Error("Unable to load account numbers", "error", err)
		os.Exit(1)
	}
	numbers, err := drawNumbers(*users, taken, service.NewAccountNumber)
	if err != nil {
		slog.Error("Unable to draw account numbers", "error", err)
		os.Exit(1)
	}

	now := time.Now()
	userIDs := make([]uuid.UUID, *users)
	profiles := make([][]any, 0, *users)
	accounts := make([][]any, 0, *users)
	for i := range userIDs {
		userIDs[i] = uuid.New()
		profiles = append(profiles, []any{userIDs[i], fmt.Sprintf("Demo User %d", i+1), fmt.Sprintf("user%d@example.com", i+1), now})
		accounts = append(accounts, []any{
			uuid.New(), userIDs[i], numbers[i], "current", "Current Account",
			InitialBalance, "USD", "active", int64(1), now, now,
		})
	}

	// Bulk Insert using CopyFrom (Fastest method)
	n, err := pg.Db.CopyFrom(ctx, pgx.Identifier{"profiles"},
		[]string{"user_id", "full_name", "email", "created_at"},
		pgx.CopyFromRows(profiles))
	if err != nil {
		slog.Error("Profile bulk insert failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Seeded profiles", "count", n)

	n, err = pg.Db.CopyFrom(ctx, pgx.Identifier{"accounts"},
		[]string{"id", "user_id", "account_number", "account_type", "name", "balance", "currency", "status", "version", "created_at", "updated_at"},
		pgx.CopyFromRows(accounts))
	if err != nil {
		slog.Error("Account bulk insert failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Seeded accounts", "count", n)

	verifier := auth.NewVerifier(cfg.AuthSecret)
	for i := 0; i < *tokens && i < len(userIDs); i++ {
		token, err := verifier.IssueToken(userIDs[i], *ttl)
		if err != nil {
			slog.Error("Unable to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s %s\n", userIDs[i], token)
	}
}

func existingNumbers(ctx context.Context, pg *store.Postgres) (map[string]struct{}, error) {
	rows, err := pg.Db.Query(ctx, "SELECT account_number FROM accounts")
	if err != nil {
		return nil, err
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		taken[n] = struct{}{}
	}
	return taken, nil
}

// drawNumbers returns n account numbers that are unique among themselves and
// absent from taken, drawn the same way the API assigns them.
func drawNumbers(n int, taken map[string]struct{}, draw func() (string, error)) ([]string, error) {
	out := make([]string, 0, n)
	for len(out) < n {
		number, err := draw()
		if err != nil {
			return nil, err
		}
		if _, dup := taken[number]; dup {
			continue
		}
		taken[number] = struct{}{}
		out = append(out, number)
	}
	return out, nil
}
