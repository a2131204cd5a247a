package store

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	Db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string, maxConns int32) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{Db: pool}, nil
}

// Migrate creates the tables if they do not exist yet.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

func (s *Postgres) Close() {
	s.Db.Close()
}

// mapErr turns driver errors into domain errors. Serialization failures and
// deadlocks surface as version conflicts so callers retry them.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return domain.ErrVersionConflict
		case "23505":
			if pgErr.ConstraintName == "accounts_account_number_key" {
				return domain.ErrDuplicateNumber
			}
		case "23514":
			if pgErr.TableName == "accounts" {
				return domain.ErrInsufficientBalance
			}
		}
	}
	return domain.StoreError(op, err)
}

const accountColumns = `id, user_id, account_number, account_type, name, balance::text, currency,
	status, daily_limit::text, monthly_limit::text, version, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var balance string
	var daily, monthly *string
	err := row.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.Type, &a.Name, &balance, &a.Currency,
		&a.Status, &daily, &monthly, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, err
	}
	if a.DailyLimit, err = parseOptional(daily); err != nil {
		return nil, err
	}
	if a.MonthlyLimit, err = parseOptional(monthly); err != nil {
		return nil, err
	}
	return &a, nil
}

func parseOptional(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatOptional(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// GetAccount retrieves a single account by ID.
func (s *Postgres) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := scanAccount(s.Db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, mapErr("get account", err)
	}
	return a, nil
}

// GetAccountForOwner is GetAccount restricted to the owning user.
func (s *Postgres) GetAccountForOwner(ctx context.Context, id, userID uuid.UUID) (*domain.Account, error) {
	a, err := scanAccount(s.Db.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 AND user_id = $2", id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, mapErr("get account", err)
	}
	return a, nil
}

func (s *Postgres) ListAccountsForUser(ctx context.Context, userID uuid.UUID, status domain.AccountStatus) ([]domain.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE user_id = $1"
	args := []any{userID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.Db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list accounts", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, mapErr("scan account", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list accounts", err)
	}
	return accounts, nil
}

// CreateAccount inserts the account with version 1.
func (s *Postgres) CreateAccount(ctx context.Context, a *domain.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := s.Db.QueryRow(ctx, `
		INSERT INTO accounts (id, user_id, account_number, account_type, name, balance, currency, status, daily_limit, monthly_limit)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8, $9::text::numeric, $10::text::numeric)
		RETURNING version, created_at, updated_at`,
		a.ID, a.UserID, a.AccountNumber, string(a.Type), a.Name, a.Balance.String(), a.Currency,
		string(a.Status), formatOptional(a.DailyLimit), formatOptional(a.MonthlyLimit),
	).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
	return mapErr("create account", err)
}

const transactionColumns = `id, reference, user_id, source_account_id, destination_account_id, type,
	amount::text, currency, status, description, category, created_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var amount string
	err := row.Scan(&t.ID, &t.Reference, &t.UserID, &t.SourceAccountID, &t.DestinationAccountID, &t.Type,
		&amount, &t.Currency, &t.Status, &t.Description, &t.Category, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Postgres) GetTransaction(ctx context.Context, id, userID uuid.UUID) (*domain.Transaction, error) {
	t, err := scanTransaction(s.Db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1 AND user_id = $2", id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, mapErr("get transaction", err)
	}
	return t, nil
}

// QueryTransactions builds the WHERE clause from the filter and pages the
// result newest first.
func (s *Postgres) QueryTransactions(ctx context.Context, f TransactionFilter, p Page) ([]domain.Transaction, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "user_id = "+arg(f.UserID))
	if f.AccountID != nil {
		n := arg(*f.AccountID)
		where = append(where, fmt.Sprintf("(source_account_id = %s OR destination_account_id = %s)", n, n))
	}
	if f.From != nil {
		where = append(where, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "created_at <= "+arg(*f.To))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Type != "" {
		where = append(where, "type = "+arg(string(f.Type)))
	}

	query := "SELECT " + transactionColumns + " FROM transactions WHERE " +
		strings.Join(where, " AND ") + " ORDER BY created_at DESC, id DESC"
	if p.Limit > 0 {
		query += " LIMIT " + arg(p.Limit)
	}
	if p.Offset > 0 {
		query += " OFFSET " + arg(p.Offset)
	}

	rows, err := s.Db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr("query transactions", err)
	}
	defer rows.Close()

	txns := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, mapErr("scan transaction", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("query transactions", err)
	}
	return txns, nil
}

func (s *Postgres) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	var p domain.Profile
	err := s.Db.QueryRow(ctx, "SELECT user_id, full_name, email FROM profiles WHERE user_id = $1", userID).
		Scan(&p.UserID, &p.FullName, &p.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, mapErr("get profile", err)
	}
	return &p, nil
}

func (s *Postgres) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	_, err := s.Db.Exec(ctx, `
		INSERT INTO profiles (user_id, full_name, email) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET full_name = EXCLUDED.full_name, email = EXCLUDED.email`,
		p.UserID, p.FullName, p.Email)
	return mapErr("upsert profile", err)
}

func (s *Postgres) InsertNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = domain.NotificationUnread
	}
	var data []byte
	if len(n.Data) > 0 {
		data = []byte(n.Data)
	}
	err := s.Db.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, data, string(n.Status),
	).Scan(&n.CreatedAt)
	return mapErr("insert notification", err)
}

func (s *Postgres) ListNotifications(ctx context.Context, userID uuid.UUID, status domain.NotificationStatus, limit int) ([]domain.Notification, error) {
	query := "SELECT id, user_id, type, title, message, data, status, created_at FROM notifications WHERE user_id = $1"
	args := []any{userID}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.Db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list notifications", err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var data []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &n.Status, &n.CreatedAt); err != nil {
			return nil, mapErr("scan notification", err)
		}
		if len(data) > 0 {
			n.Data = bytes.Clone(data)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list notifications", err)
	}
	return out, nil
}

func (s *Postgres) SetNotificationStatus(ctx context.Context, id, userID uuid.UUID, status domain.NotificationStatus) error {
	tag, err := s.Db.Exec(ctx, "UPDATE notifications SET status = $1 WHERE id = $2 AND user_id = $3",
		string(status), id, userID)
	if err != nil {
		return mapErr("update notification", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (s *Postgres) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.Db.Exec(ctx, "UPDATE notifications SET status = 'read' WHERE user_id = $1 AND status = 'unread'", userID)
	if err != nil {
		return 0, mapErr("mark notifications read", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) DeleteNotification(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := s.Db.Exec(ctx, "DELETE FROM notifications WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return mapErr("delete notification", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (s *Postgres) UnbalancedTransfers(ctx context.Context) ([]string, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT reference FROM transactions
		WHERE type IN ('transfer_out', 'transfer_in')
		GROUP BY reference
		HAVING count(*) FILTER (WHERE type = 'transfer_out') <> 1
		    OR count(*) FILTER (WHERE type = 'transfer_in') <> 1
		    OR min(amount) <> max(amount)
		    OR count(DISTINCT currency) <> 1
		ORDER BY reference`)
	if err != nil {
		return nil, mapErr("audit transfers", err)
	}
	refs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapErr("audit transfers", err)
	}
	return refs, nil
}

func (s *Postgres) NegativeBalances(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.Db.Query(ctx, "SELECT id FROM accounts WHERE balance < 0 ORDER BY id")
	if err != nil {
		return nil, mapErr("audit balances", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, mapErr("audit balances", err)
	}
	return ids, nil
}

// WithTx runs fn inside a READ COMMITTED transaction. Accounts touched by fn
// are locked with SELECT ... FOR UPDATE, so the isolation level does not
// need to be higher.
func (s *Postgres) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr("commit transaction", err)
	}
	return nil
}

type pgTx struct {
	q querier
}

// LockAccounts acquires row locks in ascending id order so two transfers
// over the same pair of accounts cannot deadlock.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	out := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		if _, done := out[id]; done {
			continue
		}
		a, err := scanAccount(t.q.QueryRow(ctx,
			"SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, mapErr("lock acquisition failed", err)
		}
		out[id] = a
	}
	return out, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE accounts SET balance = $1::text::numeric, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3`,
		newBalance.String(), id, expectedVersion)
	if err != nil {
		return mapErr("update balance", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (t *pgTx) UpdateAccount(ctx context.Context, a *domain.Account) error {
	err := t.q.QueryRow(ctx, `
		UPDATE accounts
		SET name = $1, daily_limit = $2::text::numeric, monthly_limit = $3::text::numeric, status = $4,
		    version = version + 1, updated_at = now()
		WHERE id = $5 AND version = $6
		RETURNING version, updated_at`,
		a.Name, formatOptional(a.DailyLimit), formatOptional(a.MonthlyLimit), string(a.Status), a.ID, a.Version,
	).Scan(&a.Version, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrVersionConflict
	}
	return mapErr("update account", err)
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) (uuid.UUID, error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO transactions (id, reference, user_id, source_account_id, destination_account_id, type,
			amount, currency, status, description, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9, $10, $11, $12)`,
		txn.ID, txn.Reference, txn.UserID, txn.SourceAccountID, txn.DestinationAccountID, string(txn.Type),
		txn.Amount.String(), txn.Currency, string(txn.Status), txn.Description, txn.Category, txn.CreatedAt)
	if err != nil {
		return uuid.Nil, mapErr("insert transaction", err)
	}
	return txn.ID, nil
}

func (t *pgTx) SetTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE transactions SET status = $1 WHERE id = $2 AND status = 'pending'", string(status), id)
	if err != nil {
		return mapErr("update transaction status", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var current string
	err = t.q.QueryRow(ctx, "SELECT status FROM transactions WHERE id = $1", id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrTransactionNotFound
	}
	if err != nil {
		return mapErr("update transaction status", err)
	}
	return domain.ErrEntryFinalized
}

func (t *pgTx) SumDebits(ctx context.Context, accountID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var expense []string
	for typ, dir := range domain.Classification {
		if dir == domain.DirectionExpense {
			expense = append(expense, string(typ))
		}
	}
	var sum string
	err := t.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM transactions
		WHERE source_account_id = $1 AND status = 'completed' AND type = ANY($2) AND created_at >= $3`,
		accountID, expense, since).Scan(&sum)
	if err != nil {
		return decimal.Zero, mapErr("sum debits", err)
	}
	return decimal.NewFromString(sum)
}
