package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whoknowsmann/trust-net/internal/model"
)

// Postgres is the production Ledger backend. Each transition is one
// transaction: rows are locked in address order with FOR UPDATE, versions
// compared, then upserted, so conflicting transitions serialize on the
// shared rows rather than deadlocking.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	address TEXT PRIMARY KEY,
	balance BIGINT NOT NULL,
	data    BYTEA NOT NULL,
	version BIGINT NOT NULL
);`

// NewPostgres connects a pool to dsn and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse postgres DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ledger: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close shuts down the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ReadAccount implements Ledger.
func (p *Postgres) ReadAccount(ctx context.Context, addr model.Address) (Account, error) {
	var acc Account
	acc.Address = addr
	var balance, version int64
	err := p.pool.QueryRow(ctx,
		`SELECT balance, data, version FROM accounts WHERE address = $1`, addr.String(),
	).Scan(&balance, &acc.Data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("ledger: account %s: %w", addr, model.ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("ledger: read %s: %w", addr, err)
	}
	acc.Balance = uint64(balance)
	acc.Version = uint64(version)
	return acc, nil
}

// Apply implements Ledger.
func (p *Postgres) Apply(ctx context.Context, tr Transition) (Receipt, error) {
	writes := append([]Write(nil), tr.Writes...)
	sort.Slice(writes, func(i, j int) bool {
		return writes[i].Address.String() < writes[j].Address.String()
	})

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, w := range writes {
		var version int64
		err := tx.QueryRow(ctx,
			`SELECT version FROM accounts WHERE address = $1 FOR UPDATE`, w.Address.String(),
		).Scan(&version)
		exists := err == nil
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, fmt.Errorf("ledger: read %s: %w", w.Address, err)
		}
		if err := checkVersion(w, exists, uint64(version)); err != nil {
			return Receipt{}, err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO accounts (address, balance, data, version) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (address) DO UPDATE SET balance = EXCLUDED.balance,
			 data = EXCLUDED.data, version = EXCLUDED.version`,
			w.Address.String(), int64(w.Balance), nonNil(w.Data), int64(w.Expected+1),
		); err != nil {
			return Receipt{}, fmt.Errorf("ledger: write %s: %w", w.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, fmt.Errorf("ledger: commit: %w", err)
	}
	return newReceipt(), nil
}

// Fund implements Funder.
func (p *Postgres) Fund(ctx context.Context, addr model.Address, amount uint64) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO accounts (address, balance, data, version) VALUES ($1, $2, ''::bytea, 1)
		 ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance,
		 version = accounts.version + 1`,
		addr.String(), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("ledger: fund %s: %w", addr, err)
	}
	return nil
}
