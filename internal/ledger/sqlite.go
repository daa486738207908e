package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/whoknowsmann/trust-net/internal/model"
)

// SQLite is an embedded single-file Ledger backend. Transitions run inside
// an immediate transaction, so version checks and writes share one
// serialization point.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	address TEXT PRIMARY KEY,
	balance INTEGER NOT NULL,
	data    BLOB NOT NULL,
	version INTEGER NOT NULL
);`

// OpenSQLite opens (creating if needed) a SQLite-backed ledger at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY between transitions.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}
	return &SQLite{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ReadAccount implements Ledger.
func (s *SQLite) ReadAccount(ctx context.Context, addr model.Address) (Account, error) {
	var acc Account
	acc.Address = addr
	err := s.db.QueryRowContext(ctx,
		`SELECT balance, data, version FROM accounts WHERE address = ?`, addr.String(),
	).Scan(&acc.Balance, &acc.Data, &acc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("ledger: account %s: %w", addr, model.ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("ledger: read %s: %w", addr, err)
	}
	return acc, nil
}

// Apply implements Ledger.
func (s *SQLite) Apply(ctx context.Context, tr Transition) (Receipt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range tr.Writes {
		var version uint64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM accounts WHERE address = ?`, w.Address.String(),
		).Scan(&version)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Receipt{}, fmt.Errorf("ledger: read %s: %w", w.Address, err)
		}
		if err := checkVersion(w, exists, version); err != nil {
			return Receipt{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (address, balance, data, version) VALUES (?, ?, ?, ?)
			 ON CONFLICT (address) DO UPDATE SET balance = excluded.balance,
			 data = excluded.data, version = excluded.version`,
			w.Address.String(), w.Balance, nonNil(w.Data), w.Expected+1,
		); err != nil {
			return Receipt{}, fmt.Errorf("ledger: write %s: %w", w.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Receipt{}, fmt.Errorf("ledger: commit: %w", err)
	}
	return newReceipt(), nil
}

// Fund implements Funder.
func (s *SQLite) Fund(ctx context.Context, addr model.Address, amount uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (address, balance, data, version) VALUES (?, ?, X'', 1)
		 ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + excluded.balance,
		 version = accounts.version + 1`,
		addr.String(), amount,
	)
	if err != nil {
		return fmt.Errorf("ledger: fund %s: %w", addr, err)
	}
	return nil
}

// checkVersion maps an observed (exists, version) pair against a declared
// write to the shared conflict taxonomy.
func checkVersion(w Write, exists bool, version uint64) error {
	switch {
	case w.Expected == 0 && exists:
		return fmt.Errorf("ledger: account %s already exists: %w", w.Address, model.ErrStateConflict)
	case w.Expected != 0 && !exists:
		return fmt.Errorf("ledger: account %s vanished: %w", w.Address, model.ErrStateConflict)
	case w.Expected != 0 && version != w.Expected:
		return fmt.Errorf("ledger: account %s at version %d, expected %d: %w",
			w.Address, version, w.Expected, model.ErrStateConflict)
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
