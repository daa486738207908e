package reputation

import (
	"context"
	"errors"

	"github.com/whoknowsmann/trust-net/internal/codec"
	"github.com/whoknowsmann/trust-net/internal/keys"
	"github.com/whoknowsmann/trust-net/internal/ledger"
	"github.com/whoknowsmann/trust-net/internal/model"
)

// Load reads and decodes an agent's reputation account, returning the
// account version for a later conditional write.
func Load(ctx context.Context, l ledger.Ledger, agent model.Address) (*model.AgentReputation, uint64, error) {
	acc, err := l.ReadAccount(ctx, keys.Reputation(agent))
	if err != nil {
		return nil, 0, err
	}
	rep, err := codec.DecodeReputation(acc.Data)
	if err != nil {
		return nil, 0, err
	}
	return rep, acc.Version, nil
}

// LoadOrNew reads an agent's reputation or builds a fresh zero-stake record
// when the agent never registered, so settlement paths can always credit
// outcomes. Version 0 signals a create to the ledger.
func LoadOrNew(ctx context.Context, l ledger.Ledger, agent model.Address, now int64) (*model.AgentReputation, uint64, error) {
	rep, version, err := Load(ctx, l, agent)
	if errors.Is(err, model.ErrNotFound) {
		return NewAgent(agent, 0, nil, now), 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return rep, version, nil
}

// SaveWrite returns the ledger write that persists a reputation record at
// the version observed by Load/LoadOrNew.
func SaveWrite(rep *model.AgentReputation, version uint64) ledger.Write {
	return ledger.Write{
		Address:  keys.Reputation(rep.Agent),
		Data:     codec.EncodeReputation(rep),
		Expected: version,
	}
}
