package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minseo/accountd/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// PostgresOptions configures the connection pool.
type PostgresOptions struct {
	URL      string
	MaxConns int32
}

// ErrMissingDatabaseURL indicates the Postgres URL is not provided.
var ErrMissingDatabaseURL = errors.New("database URL is required")

// Postgres implements AccountStore, TransactionLog, and UserDirectory on a
// pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects the pool and verifies connectivity.
func NewPostgres(ctx context.Context, opts PostgresOptions) (*Postgres, error) {
	if opts.URL == "" {
		return nil, ErrMissingDatabaseURL
	}

	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the tables and the numbering counter if absent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity; used by the health probe.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Get(ctx context.Context, accountNumber string) (domain.Account, error) {
	const query = `
		SELECT number, user_id, status, balance, registered_at, closed_at
		FROM accounts WHERE number = $1`

	var acct domain.Account
	err := p.pool.QueryRow(ctx, query, accountNumber).Scan(
		&acct.Number, &acct.UserID, &acct.Status, &acct.Balance, &acct.RegisteredAt, &acct.ClosedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.E(domain.KindNotFound, fmt.Sprintf("account %s not found", accountNumber))
	}
	if err != nil {
		return domain.Account{}, domain.Wrap(domain.KindInfrastructure, "account store get", err)
	}
	return acct, nil
}

func (p *Postgres) Put(ctx context.Context, account domain.Account) error {
	const query = `
		INSERT INTO accounts (number, user_id, status, balance, registered_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (number) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    status = EXCLUDED.status,
		    balance = EXCLUDED.balance,
		    registered_at = EXCLUDED.registered_at,
		    closed_at = EXCLUDED.closed_at`

	_, err := p.pool.Exec(ctx, query,
		account.Number, account.UserID, account.Status, account.Balance, account.RegisteredAt, account.ClosedAt,
	)
	if err != nil {
		return domain.Wrap(domain.KindInfrastructure, "account store put", err)
	}
	return nil
}

func (p *Postgres) NextAccountNumber(ctx context.Context) (string, error) {
	const query = `UPDATE account_counter SET next = next + 1 WHERE id = 1 RETURNING next - 1`

	var next int64
	if err := p.pool.QueryRow(ctx, query).Scan(&next); err != nil {
		return "", domain.Wrap(domain.KindInfrastructure, "allocate account number", err)
	}
	return fmt.Sprintf("%010d", next), nil
}

func (p *Postgres) ListByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	const query = `
		SELECT number, user_id, status, balance, registered_at, closed_at
		FROM accounts WHERE user_id = $1 ORDER BY number`

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, domain.Wrap(domain.KindInfrastructure, "account store list", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acct domain.Account
		if err := rows.Scan(&acct.Number, &acct.UserID, &acct.Status, &acct.Balance, &acct.RegisteredAt, &acct.ClosedAt); err != nil {
			return nil, domain.Wrap(domain.KindInfrastructure, "account store scan", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.KindInfrastructure, "account store list", err)
	}
	return accounts, nil
}

func (p *Postgres) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, domain.Wrap(domain.KindInfrastructure, "account store count", err)
	}
	return count, nil
}

func (p *Postgres) Append(ctx context.Context, tx domain.Transaction) error {
	const query = `
		INSERT INTO transactions (id, account_number, type, result, amount, balance_snapshot, transacted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.pool.Exec(ctx, query,
		tx.ID, tx.AccountNumber, tx.Type, tx.Result, tx.Amount, tx.BalanceSnapshot, tx.TransactedAt,
	)
	if err != nil {
		return domain.Wrap(domain.KindInfrastructure, "transaction log append", err)
	}
	return nil
}

func (p *Postgres) ByID(ctx context.Context, transactionID string) (domain.Transaction, error) {
	const query = `
		SELECT id, account_number, type, result, amount, balance_snapshot, transacted_at
		FROM transactions WHERE id = $1`

	var tx domain.Transaction
	err := p.pool.QueryRow(ctx, query, transactionID).Scan(
		&tx.ID, &tx.AccountNumber, &tx.Type, &tx.Result, &tx.Amount, &tx.BalanceSnapshot, &tx.TransactedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, domain.E(domain.KindNotFound, fmt.Sprintf("transaction %s not found", transactionID))
	}
	if err != nil {
		return domain.Transaction{}, domain.Wrap(domain.KindInfrastructure, "transaction log get", err)
	}
	return tx, nil
}

func (p *Postgres) ListByAccount(ctx context.Context, accountNumber string) ([]domain.Transaction, error) {
	const query = `
		SELECT id, account_number, type, result, amount, balance_snapshot, transacted_at
		FROM transactions WHERE account_number = $1 ORDER BY transacted_at`

	rows, err := p.pool.Query(ctx, query, accountNumber)
	if err != nil {
		return nil, domain.Wrap(domain.KindInfrastructure, "transaction log list", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.AccountNumber, &tx.Type, &tx.Result, &tx.Amount, &tx.BalanceSnapshot, &tx.TransactedAt); err != nil {
			return nil, domain.Wrap(domain.KindInfrastructure, "transaction log scan", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.KindInfrastructure, "transaction log list", err)
	}
	return txs, nil
}

func (p *Postgres) Lookup(ctx context.Context, userID string) (domain.User, error) {
	const query = `SELECT id, name, created_at FROM users WHERE id = $1`

	var user domain.User
	err := p.pool.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.E(domain.KindNotFound, fmt.Sprintf("user %s not found", userID))
	}
	if err != nil {
		return domain.User{}, domain.Wrap(domain.KindInfrastructure, "user directory get", err)
	}
	return user, nil
}

// UpsertUser inserts or updates a directory entry; used by cmd/seed.
func (p *Postgres) UpsertUser(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, name, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	if _, err := p.pool.Exec(ctx, query, user.ID, user.Name, user.CreatedAt); err != nil {
		return domain.Wrap(domain.KindInfrastructure, "user directory upsert", err)
	}
	return nil
}

var (
	_ AccountStore   = (*Postgres)(nil)
	_ TransactionLog = (*Postgres)(nil)
	_ UserDirectory  = (*Postgres)(nil)
)
