// Package ledger is the consumed ledger capability of the protocol core: a
// store of named accounts keyed by deterministic addresses, mutated only by
// atomic, serializable transitions.
//
// Every transition declares the full post-state of each account it touches
// together with the account version it observed when reading. A transition
// either fully applies or fully fails; a version mismatch means a concurrent
// transition won the race and the caller must re-read before deciding
// whether to retry.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/whoknowsmann/trust-net/internal/model"
)

// Account is the ledger-held state of one address.
type Account struct {
	Address model.Address
	Balance uint64
	Data    []byte
	// Version increments on every applied write; it is the optimistic
	// concurrency token carried back in Write.Expected.
	Version uint64
}

// Write is the declared post-state of one account within a transition.
// Expected is the version observed when the account was read, or zero to
// create an account that must not yet exist.
type Write struct {
	Address  model.Address
	Balance  uint64
	Data     []byte
	Expected uint64
}

// Transition is an atomic batch of writes.
type Transition struct {
	Writes []Write
}

// Receipt identifies an applied transition.
type Receipt struct {
	ID        uuid.UUID
	AppliedAt time.Time
}

// Ledger reads accounts and applies transitions. Implementations must
// guarantee that Apply is atomic and that version checks are evaluated
// under the same isolation as the writes.
type Ledger interface {
	// ReadAccount returns the current state of an address, or an error
	// wrapping model.ErrNotFound.
	ReadAccount(ctx context.Context, addr model.Address) (Account, error)
	// Apply checks every write's expected version and applies all writes,
	// or fails with an error wrapping model.ErrStateConflict and leaves
	// every account exactly as before.
	Apply(ctx context.Context, tr Transition) (Receipt, error)
}

// Funder credits an address out of thin air. Backends implement it for
// tests and demos; it is deliberately not part of Ledger.
type Funder interface {
	Fund(ctx context.Context, addr model.Address, amount uint64) error
}

func newReceipt() Receipt {
	return Receipt{ID: uuid.New(), AppliedAt: time.Now().UTC()}
}
