package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/whoknowsmann/trust-net/internal/model"
)

// Memory is an in-process Ledger used by tests and the demo CLI. It
// implements the same account-read/transition-apply contract as the
// durable backends; it never fabricates results.
type Memory struct {
	mu       sync.Mutex
	accounts map[model.Address]Account
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{accounts: make(map[model.Address]Account)}
}

// ReadAccount implements Ledger.
func (m *Memory) ReadAccount(_ context.Context, addr model.Address) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[addr]
	if !ok {
		return Account{}, fmt.Errorf("ledger: account %s: %w", addr, model.ErrNotFound)
	}
	return cloneAccount(acc), nil
}

// Apply implements Ledger. All version checks happen under one lock, so a
// losing racer observes a clean conflict and no partial write.
func (m *Memory) Apply(_ context.Context, tr Transition) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range tr.Writes {
		cur, exists := m.accounts[w.Address]
		if err := checkVersion(w, exists, cur.Version); err != nil {
			return Receipt{}, err
		}
	}

	for _, w := range tr.Writes {
		m.accounts[w.Address] = Account{
			Address: w.Address,
			Balance: w.Balance,
			Data:    append([]byte(nil), w.Data...),
			Version: w.Expected + 1,
		}
	}
	return newReceipt(), nil
}

// Fund implements Funder.
func (m *Memory) Fund(_ context.Context, addr model.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[addr]
	if !ok {
		acc = Account{Address: addr}
	}
	acc.Balance += amount
	acc.Version++
	m.accounts[addr] = acc
	return nil
}

func cloneAccount(acc Account) Account {
	acc.Data = append([]byte(nil), acc.Data...)
	return acc
}
