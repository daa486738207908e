package trustnet

import (
	"context"
	"log/slog"
	"time"

	"github.com/whoknowsmann/trust-net/internal/ledger"
)

// Option configures a Client.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	openLedger func(context.Context, *slog.Logger) (ledger.Ledger, func() error, error)
	logger     *slog.Logger
	clock      func() time.Time
	params     Params
}

// WithMemoryLedger selects the in-memory ledger backend (the default).
// State is lost when the Client goes away.
func WithMemoryLedger() Option {
	return func(o *resolvedOptions) {
		o.openLedger = func(context.Context, *slog.Logger) (ledger.Ledger, func() error, error) {
			return ledger.NewMemory(), nil, nil
		}
	}
}

// WithSQLiteLedger selects the embedded SQLite ledger backend at the given
// database path.
func WithSQLiteLedger(path string) Option {
	return func(o *resolvedOptions) {
		o.openLedger = func(ctx context.Context, logger *slog.Logger) (ledger.Ledger, func() error, error) {
			db, err := ledger.OpenSQLite(ctx, path, logger)
			if err != nil {
				return nil, nil, err
			}
			return db, db.Close, nil
		}
	}
}

// WithPostgresLedger selects the Postgres ledger backend at the given DSN.
func WithPostgresLedger(dsn string) Option {
	return func(o *resolvedOptions) {
		o.openLedger = func(ctx context.Context, logger *slog.Logger) (ledger.Ledger, func() error, error) {
			pg, err := ledger.NewPostgres(ctx, dsn, logger)
			if err != nil {
				return nil, nil, err
			}
			return pg, func() error { pg.Close(); return nil }, nil
		}
	}
}

// WithLogger sets the structured logger for the Client.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithClock replaces the time source. Deadline and window checks read it;
// tests use a fixed or stepped clock.
func WithClock(clock func() time.Time) Option {
	return func(o *resolvedOptions) { o.clock = clock }
}

// WithParams overrides the protocol parameters. Start from DefaultParams.
func WithParams(p Params) Option {
	return func(o *resolvedOptions) { o.params = p }
}
