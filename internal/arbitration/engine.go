// Package arbitration runs the commit-reveal dispute process: raising a
// dispute against a live job, arbiter vote commitments, reveals, and the
// permissionless resolution that tallies votes, moves funds, slashes, and
// rewards.
package arbitration

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/whoknowsmann/trust-net/internal/codec"
	"github.com/whoknowsmann/trust-net/internal/keys"
	"github.com/whoknowsmann/trust-net/internal/ledger"
	"github.com/whoknowsmann/trust-net/internal/model"
	"github.com/whoknowsmann/trust-net/internal/reputation"
)

// Engine applies dispute transitions against a ledger.
type Engine struct {
	ledger ledger.Ledger
	params model.Params
	clock  func() time.Time
	logger *slog.Logger
}

// NewEngine wires an arbitration engine over a ledger.
func NewEngine(l ledger.Ledger, params model.Params, clock func() time.Time, logger *slog.Logger) *Engine {
	return &Engine{ledger: l, params: params, clock: clock, logger: logger}
}

// HashVote computes the binding vote commitment
// SHA-256(arbiter ‖ dispute ‖ voteByte ‖ salt). Folding the arbiter and
// dispute addresses in makes commitments non-transferable across arbiters
// and non-replayable across disputes.
func HashVote(arbiter, dispute model.Address, vote bool, salt []byte) model.Hash {
	var voteByte byte
	if vote {
		voteByte = 1
	}
	h := sha256.New()
	h.Write(arbiter[:])
	h.Write(dispute[:])
	h.Write([]byte{voteByte})
	h.Write(salt)
	var out model.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// RaiseDispute contests an Active or Submitted job. Only a party may raise,
// and only once per job. The dispute fee moves from the job vault into the
// dispute vault, where it funds arbiter rewards.
func (e *Engine) RaiseDispute(ctx context.Context, raiser, jobAddr model.Address, reason []byte, evidenceHash model.Hash) (model.Address, ledger.Receipt, error) {
	now := e.clock()
	jobAcc, err := e.ledger.ReadAccount(ctx, jobAddr)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	job, err := codec.DecodeJob(jobAcc.Data)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	if job.Status != model.JobActive && job.Status != model.JobSubmitted {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("arbitration: job is %s: %w",
			job.Status, model.ErrWrongState)
	}
	if !job.IsParty(raiser) {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("arbitration: %w", model.ErrNotParty)
	}

	disputeAddr := keys.Dispute(jobAddr)
	if _, err := e.ledger.ReadAccount(ctx, disputeAddr); err == nil {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("arbitration: job %s: %w",
			jobAddr, model.ErrDisputeExists)
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Address{}, ledger.Receipt{}, err
	}

	vault, err := e.ledger.ReadAccount(ctx, keys.JobVault(jobAddr))
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	fee := model.Fee(job.Amount, e.params.DisputeFeeBps)

	commitDeadline := now.Add(e.params.CommitWindow)
	dispute := &model.Dispute{
		Job:            jobAddr,
		Client:         job.Client,
		Provider:       job.Provider,
		Raiser:         raiser,
		ReasonHash:     sha256.Sum256(reason),
		EvidenceHash:   evidenceHash,
		Status:         model.DisputeCommitting,
		CommitDeadline: commitDeadline.Unix(),
		RevealDeadline: commitDeadline.Add(e.params.RevealWindow).Unix(),
	}
	job.Status = model.JobDisputed
	receipt, err := e.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		{Address: vault.Address, Balance: vault.Balance - fee, Expected: vault.Version},
		{Address: keys.DisputeVault(disputeAddr), Balance: fee, Expected: 0},
		{Address: disputeAddr, Data: codec.EncodeDispute(dispute), Expected: 0},
		{Address: jobAddr, Data: codec.EncodeJob(job), Expected: jobAcc.Version},
	}})
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	e.logger.Info("arbitration: dispute raised",
		"dispute", disputeAddr, "job", jobAddr, "raiser", raiser, "fee", fee)
	return disputeAddr, receipt, nil
}

// CommitVote joins the dispute's arbiter panel with a hidden vote
// commitment. Only registered, active arbiters meeting the stake minimum
// may commit, once each, while the commit window is open. The disputing
// parties themselves may not sit on the panel.
func (e *Engine) CommitVote(ctx context.Context, arbiter, disputeAddr model.Address, commitment model.Hash) (ledger.Receipt, error) {
	now := e.clock()
	dispute, disputeVersion, err := e.loadDispute(ctx, disputeAddr)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if dispute.Status != model.DisputeCommitting {
		return ledger.Receipt{}, wrongPhase(dispute.Status)
	}
	if now.Unix() > dispute.CommitDeadline {
		return ledger.Receipt{}, fmt.Errorf("arbitration: commit window closed: %w", model.ErrDeadlinePassed)
	}
	if arbiter == dispute.Client || arbiter == dispute.Provider {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %s: %w", arbiter, model.ErrInterestedArbiter)
	}

	arbAcc, err := e.ledger.ReadAccount(ctx, keys.Arbiter(arbiter))
	if errors.Is(err, model.ErrNotFound) {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %s: %w", arbiter, model.ErrNotArbiter)
	}
	if err != nil {
		return ledger.Receipt{}, err
	}
	arb, err := codec.DecodeArbiter(arbAcc.Data)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if !arb.Active {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %s is inactive: %w", arbiter, model.ErrNotArbiter)
	}
	if arb.Stake < e.params.MinArbiterStake {
		return ledger.Receipt{}, fmt.Errorf("arbitration: stake %d below minimum %d: %w",
			arb.Stake, e.params.MinArbiterStake, model.ErrInsufficientStake)
	}
	if dispute.HasArbiter(arbiter) {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %s: %w", arbiter, model.ErrAlreadyCommitted)
	}
	if len(dispute.Arbiters) >= model.MaxDisputeArbiters {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %w", model.ErrPanelFull)
	}

	vote := &model.VoteCommitment{
		Dispute:    disputeAddr,
		Arbiter:    arbiter,
		CommitHash: commitment,
	}
	dispute.Arbiters = append(dispute.Arbiters, arbiter)
	receipt, err := e.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		{Address: keys.VoteCommitment(disputeAddr, arbiter), Data: codec.EncodeVote(vote), Expected: 0},
		{Address: disputeAddr, Data: codec.EncodeDispute(dispute), Expected: disputeVersion},
	}})
	if err != nil {
		return ledger.Receipt{}, err
	}
	e.logger.Info("arbitration: vote committed", "dispute", disputeAddr, "arbiter", arbiter)
	return receipt, nil
}

// RevealVote discloses a committed vote once the commit window has closed.
// The reveal must re-derive the stored commitment exactly; a mismatch
// discards the attempt. True favors the provider, false the client.
func (e *Engine) RevealVote(ctx context.Context, arbiter, disputeAddr model.Address, vote bool, salt []byte) (ledger.Receipt, error) {
	now := e.clock()
	dispute, disputeVersion, err := e.loadDispute(ctx, disputeAddr)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if dispute.Status == model.DisputeResolved {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %w", model.ErrAlreadyResolved)
	}
	if now.Unix() <= dispute.CommitDeadline {
		// Early reveals would leak votes into the commit phase.
		return ledger.Receipt{}, wrongPhase(dispute.Status)
	}
	if now.Unix() > dispute.RevealDeadline {
		return ledger.Receipt{}, fmt.Errorf("arbitration: reveal window closed: %w", model.ErrDeadlinePassed)
	}

	voteAddr := keys.VoteCommitment(disputeAddr, arbiter)
	voteAcc, err := e.ledger.ReadAccount(ctx, voteAddr)
	if errors.Is(err, model.ErrNotFound) {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %s: %w", arbiter, model.ErrNoCommitment)
	}
	if err != nil {
		return ledger.Receipt{}, err
	}
	vc, err := codec.DecodeVote(voteAcc.Data)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if vc.Revealed {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %s: %w", arbiter, model.ErrAlreadyRevealed)
	}
	if HashVote(arbiter, disputeAddr, vote, salt) != vc.CommitHash {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %s: %w", arbiter, model.ErrCommitmentMismatch)
	}

	vc.Revealed = true
	vc.Vote = &vote
	writes := []ledger.Write{
		{Address: voteAddr, Data: codec.EncodeVote(vc), Expected: voteAcc.Version},
	}
	if dispute.Status == model.DisputeCommitting {
		dispute.Status = model.DisputeRevealing
		writes = append(writes, ledger.Write{
			Address: disputeAddr, Data: codec.EncodeDispute(dispute), Expected: disputeVersion,
		})
	}
	receipt, err := e.ledger.Apply(ctx, ledger.Transition{Writes: writes})
	if err != nil {
		return ledger.Receipt{}, err
	}
	e.logger.Info("arbitration: vote revealed", "dispute", disputeAddr, "arbiter", arbiter, "vote", vote)
	return receipt, nil
}

// ResolveDispute tallies revealed votes and settles everything in one
// atomic transition: fund release to the winning party, equal reward split
// of the dispute vault among majority arbiters, slashing of dissenters and
// no-shows, and reputation updates for both parties and every panelist.
//
// Resolution is permissionless once every panelist has revealed or the
// reveal deadline has passed; unrevealed commitments count as abstentions
// and draw the heavier slash. A tie, including zero revealed votes,
// resolves for the client.
func (e *Engine) ResolveDispute(ctx context.Context, disputeAddr model.Address) (ledger.Receipt, error) {
	now := e.clock()
	dispute, disputeVersion, err := e.loadDispute(ctx, disputeAddr)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if dispute.Status == model.DisputeResolved {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %w", model.ErrAlreadyResolved)
	}

	votes := make(map[model.Address]*model.VoteCommitment, len(dispute.Arbiters))
	voteVersions := make(map[model.Address]uint64, len(dispute.Arbiters))
	allRevealed := len(dispute.Arbiters) > 0
	var forProvider, forClient int
	for _, a := range dispute.Arbiters {
		acc, err := e.ledger.ReadAccount(ctx, keys.VoteCommitment(disputeAddr, a))
		if err != nil {
			return ledger.Receipt{}, err
		}
		vc, err := codec.DecodeVote(acc.Data)
		if err != nil {
			return ledger.Receipt{}, err
		}
		votes[a] = vc
		voteVersions[a] = acc.Version
		if !vc.Revealed {
			allRevealed = false
			continue
		}
		if *vc.Vote {
			forProvider++
		} else {
			forClient++
		}
	}
	if !allRevealed && now.Unix() <= dispute.RevealDeadline {
		return ledger.Receipt{}, fmt.Errorf("arbitration: %w", model.ErrVotingNotComplete)
	}

	providerWins := forProvider > forClient
	winner, loser := dispute.Client, dispute.Provider
	if providerWins {
		winner, loser = dispute.Provider, dispute.Client
	}

	jobAcc, err := e.ledger.ReadAccount(ctx, dispute.Job)
	if err != nil {
		return ledger.Receipt{}, err
	}
	job, err := codec.DecodeJob(jobAcc.Data)
	if err != nil {
		return ledger.Receipt{}, err
	}

	book := newBalanceBook(e.ledger)

	// The winning party takes the whole job vault; a provider win pays the
	// protocol fee like any successful payout.
	jobVault, err := book.drain(ctx, keys.JobVault(dispute.Job))
	if err != nil {
		return ledger.Receipt{}, err
	}
	payout := jobVault
	if providerWins {
		fee := model.Fee(job.Amount, e.params.ProtocolFeeBps)
		payout -= fee
		if err := book.credit(ctx, keys.Treasury(), fee); err != nil {
			return ledger.Receipt{}, err
		}
	}
	if err := book.credit(ctx, winner, payout); err != nil {
		return ledger.Receipt{}, err
	}

	// Majority arbiters split the dispute vault equally; the remainder and
	// every slash go to the treasury.
	reward, err := book.drain(ctx, keys.DisputeVault(disputeAddr))
	if err != nil {
		return ledger.Receipt{}, err
	}
	majority := forClient
	if providerWins {
		majority = forProvider
	}
	var perArbiter uint64
	if majority > 0 {
		perArbiter = reward / uint64(majority)
	}
	if err := book.credit(ctx, keys.Treasury(), reward-perArbiter*uint64(majority)); err != nil {
		return ledger.Receipt{}, err
	}

	var dataWrites []ledger.Write
	for _, a := range dispute.Arbiters {
		vc := votes[a]
		arbAcc, err := e.ledger.ReadAccount(ctx, keys.Arbiter(a))
		if err != nil {
			return ledger.Receipt{}, err
		}
		arb, err := codec.DecodeArbiter(arbAcc.Data)
		if err != nil {
			return ledger.Receipt{}, err
		}

		agreed := vc.Revealed && *vc.Vote == providerWins
		var slash uint64
		switch {
		case !vc.Revealed:
			slash = model.Fee(arb.Stake, e.params.NoRevealSlashBps)
		case !agreed:
			slash = model.Fee(arb.Stake, e.params.WrongVoteSlashBps)
		}
		if slash > 0 {
			if err := book.debit(ctx, keys.ArbiterVault(a), slash); err != nil {
				return ledger.Receipt{}, err
			}
			if err := book.credit(ctx, keys.Treasury(), slash); err != nil {
				return ledger.Receipt{}, err
			}
			arb.Stake -= slash
		}
		if agreed && perArbiter > 0 {
			if err := book.credit(ctx, a, perArbiter); err != nil {
				return ledger.Receipt{}, err
			}
		}
		reputation.JudgeCase(arb, agreed, now.Unix())
		dataWrites = append(dataWrites,
			ledger.Write{
				Address: keys.Arbiter(a), Data: codec.EncodeArbiter(arb), Expected: arbAcc.Version,
			},
			// Rewriting each vote at the version the tally read makes a
			// racing reveal conflict the resolution instead of losing its
			// vote to a stale snapshot.
			ledger.Write{
				Address:  keys.VoteCommitment(disputeAddr, a),
				Data:     codec.EncodeVote(vc),
				Expected: voteVersions[a],
			},
		)
	}

	winnerRep, winnerVersion, err := reputation.LoadOrNew(ctx, e.ledger, winner, now.Unix())
	if err != nil {
		return ledger.Receipt{}, err
	}
	reputation.CreditDisputeWon(winnerRep, now.Unix())
	loserRep, loserVersion, err := reputation.LoadOrNew(ctx, e.ledger, loser, now.Unix())
	if err != nil {
		return ledger.Receipt{}, err
	}
	reputation.CreditDisputeLost(loserRep, now.Unix())

	clientWon := !providerWins
	dispute.Status = model.DisputeResolved
	dispute.ResolvedInFavorOfClient = &clientWon
	resolvedAt := now.Unix()
	job.Status = model.JobResolved
	job.CompletedAt = &resolvedAt

	writes := book.writes()
	writes = append(writes, dataWrites...)
	writes = append(writes,
		reputation.SaveWrite(winnerRep, winnerVersion),
		reputation.SaveWrite(loserRep, loserVersion),
		ledger.Write{Address: dispute.Job, Data: codec.EncodeJob(job), Expected: jobAcc.Version},
		ledger.Write{Address: disputeAddr, Data: codec.EncodeDispute(dispute), Expected: disputeVersion},
	)
	receipt, err := e.ledger.Apply(ctx, ledger.Transition{Writes: writes})
	if err != nil {
		return ledger.Receipt{}, err
	}
	e.logger.Info("arbitration: dispute resolved",
		"dispute", disputeAddr, "job", dispute.Job,
		"for_provider", forProvider, "for_client", forClient, "winner", winner)
	return receipt, nil
}

// GetDispute returns the decoded dispute account.
func (e *Engine) GetDispute(ctx context.Context, disputeAddr model.Address) (*model.Dispute, error) {
	dispute, _, err := e.loadDispute(ctx, disputeAddr)
	return dispute, err
}

func (e *Engine) loadDispute(ctx context.Context, disputeAddr model.Address) (*model.Dispute, uint64, error) {
	acc, err := e.ledger.ReadAccount(ctx, disputeAddr)
	if err != nil {
		return nil, 0, err
	}
	dispute, err := codec.DecodeDispute(acc.Data)
	if err != nil {
		return nil, 0, err
	}
	return dispute, acc.Version, nil
}

func wrongPhase(s model.DisputeStatus) error {
	return fmt.Errorf("arbitration: dispute is %s: %w", s, model.ErrWrongPhase)
}
