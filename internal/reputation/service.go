package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/whoknowsmann/trust-net/internal/codec"
	"github.com/whoknowsmann/trust-net/internal/keys"
	"github.com/whoknowsmann/trust-net/internal/ledger"
	"github.com/whoknowsmann/trust-net/internal/model"
)

// Service handles agent and arbiter registration, stake top-ups, and
// one-shot job ratings against the ledger.
type Service struct {
	ledger ledger.Ledger
	params model.Params
	clock  func() time.Time
	logger *slog.Logger
}

// NewService wires a reputation service over a ledger.
func NewService(l ledger.Ledger, params model.Params, clock func() time.Time, logger *slog.Logger) *Service {
	return &Service{ledger: l, params: params, clock: clock, logger: logger}
}

// RegisterAgent creates an agent's reputation account, locking stake into
// the reputation vault. Stake must meet the registration minimum.
func (s *Service) RegisterAgent(ctx context.Context, agent model.Address, stake uint64, specializations []byte) (model.Address, ledger.Receipt, error) {
	if stake < s.params.MinAgentStake {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: stake %d below minimum %d: %w",
			stake, s.params.MinAgentStake, model.ErrInsufficientStake)
	}
	if err := model.ValidateByteField("specializations", specializations, s.params.MaxSpecializationsLen); err != nil {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: %w", err)
	}

	repAddr := keys.Reputation(agent)
	if _, err := s.ledger.ReadAccount(ctx, repAddr); err == nil {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: agent %s already registered: %w",
			agent, model.ErrStateConflict)
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Address{}, ledger.Receipt{}, err
	}

	wallet, err := s.debitWallet(ctx, agent, stake)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	vault, err := s.creditVault(ctx, keys.ReputationVault(agent), stake)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}

	now := s.clock().Unix()
	rep := NewAgent(agent, stake, specializations, now)
	receipt, err := s.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		wallet,
		vault,
		{Address: repAddr, Data: codec.EncodeReputation(rep), Expected: 0},
	}})
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	s.logger.Info("reputation: agent registered", "agent", agent, "stake", stake)
	return repAddr, receipt, nil
}

// TopUpStake adds stake to an already registered agent.
func (s *Service) TopUpStake(ctx context.Context, agent model.Address, add uint64) (ledger.Receipt, error) {
	if add == 0 {
		return ledger.Receipt{}, fmt.Errorf("reputation: zero stake top-up: %w", model.ErrInvalidAmount)
	}
	rep, version, err := Load(ctx, s.ledger, agent)
	if err != nil {
		return ledger.Receipt{}, err
	}
	wallet, err := s.debitWallet(ctx, agent, add)
	if err != nil {
		return ledger.Receipt{}, err
	}
	vault, err := s.creditVault(ctx, keys.ReputationVault(agent), add)
	if err != nil {
		return ledger.Receipt{}, err
	}

	rep.StakeAmount += add
	rep.LastActive = s.clock().Unix()
	return s.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		wallet,
		vault,
		SaveWrite(rep, version),
	}})
}

// RegisterArbiter creates an arbiter registration account, locking stake
// into the arbiter vault. Stake must meet the arbiter minimum.
func (s *Service) RegisterArbiter(ctx context.Context, authority model.Address, stake uint64, specializations []byte) (model.Address, ledger.Receipt, error) {
	if stake < s.params.MinArbiterStake {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: arbiter stake %d below minimum %d: %w",
			stake, s.params.MinArbiterStake, model.ErrInsufficientStake)
	}
	if err := model.ValidateByteField("specializations", specializations, s.params.MaxSpecializationsLen); err != nil {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: %w", err)
	}

	arbAddr := keys.Arbiter(authority)
	if _, err := s.ledger.ReadAccount(ctx, arbAddr); err == nil {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: arbiter %s already registered: %w",
			authority, model.ErrStateConflict)
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Address{}, ledger.Receipt{}, err
	}

	wallet, err := s.debitWallet(ctx, authority, stake)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	vault, err := s.creditVault(ctx, keys.ArbiterVault(authority), stake)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}

	now := s.clock().Unix()
	arb := &model.Arbiter{
		Authority:       authority,
		Stake:           stake,
		AccuracyScore:   500,
		Specializations: specializations,
		Active:          true,
		CreatedAt:       now,
		LastCase:        now,
	}
	receipt, err := s.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		wallet,
		vault,
		{Address: arbAddr, Data: codec.EncodeArbiter(arb), Expected: 0},
	}})
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	s.logger.Info("reputation: arbiter registered", "authority", authority, "stake", stake)
	return arbAddr, receipt, nil
}

// RateJob records a one-shot rating of the counterparty for a terminal job
// and folds it into the ratee's running average. A second rating for the
// same (job, rater) pair fails with AlreadyRated, enforced by the derived
// rating address rather than a runtime check.
func (s *Service) RateJob(ctx context.Context, rater, jobAddr model.Address, score uint8, tags []byte, commentHash model.Hash) (model.Address, ledger.Receipt, error) {
	if err := model.ValidateScore(score); err != nil {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: %w", err)
	}
	if err := model.ValidateByteField("tags", tags, s.params.MaxTagsLen); err != nil {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: %w", err)
	}

	jobAcc, err := s.ledger.ReadAccount(ctx, jobAddr)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	job, err := codec.DecodeJob(jobAcc.Data)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	if !job.Status.Terminal() {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: job is %s, not terminal: %w",
			job.Status, model.ErrWrongState)
	}
	if !job.IsParty(rater) {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: %w", model.ErrNotParty)
	}
	ratee := job.Counterparty(rater)

	ratingAddr := keys.Rating(job.JobID, rater)
	if _, err := s.ledger.ReadAccount(ctx, ratingAddr); err == nil {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: job %s by %s: %w",
			jobAddr, rater, model.ErrAlreadyRated)
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Address{}, ledger.Receipt{}, err
	}

	now := s.clock().Unix()
	rep, repVersion, err := LoadOrNew(ctx, s.ledger, ratee, now)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	ApplyRating(rep, score, now)

	rating := &model.Rating{
		JobID:       job.JobID,
		Rater:       rater,
		Ratee:       ratee,
		Score:       score,
		Tags:        tags,
		CommentHash: commentHash,
		Timestamp:   now,
	}
	receipt, err := s.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		{Address: ratingAddr, Data: codec.EncodeRating(rating), Expected: 0},
		SaveWrite(rep, repVersion),
	}})
	if err != nil {
		// A concurrent rating for the same pair loses the create race;
		// surface it under the same error as the pre-check.
		if errors.Is(err, model.ErrStateConflict) {
			return model.Address{}, ledger.Receipt{}, fmt.Errorf("reputation: job %s by %s: %w",
				jobAddr, rater, model.ErrAlreadyRated)
		}
		return model.Address{}, ledger.Receipt{}, err
	}
	s.logger.Info("reputation: job rated", "job", jobAddr, "rater", rater, "ratee", ratee, "score", score)
	return ratingAddr, receipt, nil
}

// GetReputation returns the decoded reputation account for an agent.
func (s *Service) GetReputation(ctx context.Context, agent model.Address) (*model.AgentReputation, error) {
	rep, _, err := Load(ctx, s.ledger, agent)
	return rep, err
}

// GetArbiter returns the decoded arbiter account for an authority.
func (s *Service) GetArbiter(ctx context.Context, authority model.Address) (*model.Arbiter, error) {
	acc, err := s.ledger.ReadAccount(ctx, keys.Arbiter(authority))
	if err != nil {
		return nil, err
	}
	return codec.DecodeArbiter(acc.Data)
}

// debitWallet returns the write that takes amount out of a wallet.
func (s *Service) debitWallet(ctx context.Context, wallet model.Address, amount uint64) (ledger.Write, error) {
	acc, err := s.ledger.ReadAccount(ctx, wallet)
	if errors.Is(err, model.ErrNotFound) || (err == nil && acc.Balance < amount) {
		return ledger.Write{}, fmt.Errorf("reputation: wallet %s cannot cover %d: %w",
			wallet, amount, model.ErrInsufficientFunds)
	}
	if err != nil {
		return ledger.Write{}, err
	}
	return ledger.Write{Address: wallet, Balance: acc.Balance - amount, Data: acc.Data, Expected: acc.Version}, nil
}

// creditVault returns the write that adds amount to a (possibly new) vault.
func (s *Service) creditVault(ctx context.Context, vault model.Address, amount uint64) (ledger.Write, error) {
	acc, err := s.ledger.ReadAccount(ctx, vault)
	if errors.Is(err, model.ErrNotFound) {
		return ledger.Write{Address: vault, Balance: amount, Expected: 0}, nil
	}
	if err != nil {
		return ledger.Write{}, err
	}
	return ledger.Write{Address: vault, Balance: acc.Balance + amount, Data: acc.Data, Expected: acc.Version}, nil
}
