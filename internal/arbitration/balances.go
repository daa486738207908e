package arbitration

import (
	"context"
	"errors"
	"fmt"

	"github.com/whoknowsmann/trust-net/internal/ledger"
	"github.com/whoknowsmann/trust-net/internal/model"
)

// balanceBook accumulates balance movements for one transition. Resolution
// touches the treasury and arbiter wallets several times; the book reads
// each account once and folds repeated movements into a single write, so
// the transition never carries two conflicting writes for one address.
type balanceBook struct {
	ledger ledger.Ledger
	order  []model.Address
	open   map[model.Address]*ledger.Write
}

func newBalanceBook(l ledger.Ledger) *balanceBook {
	return &balanceBook{ledger: l, open: make(map[model.Address]*ledger.Write)}
}

func (b *balanceBook) load(ctx context.Context, addr model.Address) (*ledger.Write, error) {
	if w, ok := b.open[addr]; ok {
		return w, nil
	}
	w := &ledger.Write{Address: addr}
	acc, err := b.ledger.ReadAccount(ctx, addr)
	switch {
	case errors.Is(err, model.ErrNotFound):
		// Expected 0 creates the account.
	case err != nil:
		return nil, err
	default:
		w.Balance = acc.Balance
		w.Data = acc.Data
		w.Expected = acc.Version
	}
	b.open[addr] = w
	b.order = append(b.order, addr)
	return w, nil
}

func (b *balanceBook) credit(ctx context.Context, addr model.Address, amount uint64) error {
	w, err := b.load(ctx, addr)
	if err != nil {
		return err
	}
	w.Balance += amount
	return nil
}

func (b *balanceBook) debit(ctx context.Context, addr model.Address, amount uint64) error {
	w, err := b.load(ctx, addr)
	if err != nil {
		return err
	}
	if w.Balance < amount {
		return fmt.Errorf("arbitration: account %s cannot cover %d: %w",
			addr, amount, model.ErrInsufficientFunds)
	}
	w.Balance -= amount
	return nil
}

// drain zeroes an account and returns what it held.
func (b *balanceBook) drain(ctx context.Context, addr model.Address) (uint64, error) {
	w, err := b.load(ctx, addr)
	if err != nil {
		return 0, err
	}
	held := w.Balance
	w.Balance = 0
	return held, nil
}

// writes returns the accumulated writes in first-touch order.
func (b *balanceBook) writes() []ledger.Write {
	out := make([]ledger.Write, 0, len(b.order))
	for _, addr := range b.order {
		out = append(out, *b.open[addr])
	}
	return out
}
