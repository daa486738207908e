// Package trustnet is the public API of the trust-minimized marketplace
// core: job escrow, commit-reveal dispute arbitration, and reputation
// scoring over a pluggable ledger.
//
// Embedders construct a Client and drive the protocol through it:
//
//	tn, err := trustnet.New(
//	    trustnet.WithSQLiteLedger("trustnet.db"),
//	    trustnet.WithLogger(logger),
//	)
//	if err != nil { ... }
//	defer tn.Close()
//
// The import graph enforces a strict no-cycle rule: trustnet (root) imports
// internal/*, but internal/* never imports the root. Public view types are
// standalone structs; the converters live here because this is the only
// file that sees both sides of the boundary.
package trustnet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/whoknowsmann/trust-net/internal/arbitration"
	"github.com/whoknowsmann/trust-net/internal/escrow"
	"github.com/whoknowsmann/trust-net/internal/keys"
	"github.com/whoknowsmann/trust-net/internal/ledger"
	"github.com/whoknowsmann/trust-net/internal/model"
	"github.com/whoknowsmann/trust-net/internal/reputation"
)

// Address identifies a wallet or derived protocol account. The String form
// is base58 with the protocol prefix.
type Address = model.Address

// Hash is a 32-byte commitment (terms, evidence, submissions, votes).
type Hash = model.Hash

// JobID is the caller-chosen fixed-length job identifier.
type JobID = model.JobID

// Params are the protocol parameters; see DefaultParams.
type Params = model.Params

// DefaultParams returns the protocol defaults.
func DefaultParams() Params { return model.DefaultParams() }

// Receipt acknowledges one applied ledger transition.
type Receipt struct {
	ID        string
	AppliedAt time.Time
}

// Client is the protocol entry point. Construct with New().
type Client struct {
	ledger      ledger.Ledger
	closeLedger func() error
	escrow      *escrow.Engine
	arbitration *arbitration.Engine
	reputation  *reputation.Service
	clock       func() time.Time
	logger      *slog.Logger
}

// New wires a Client over the configured ledger backend. The default is an
// in-memory ledger suitable for tests and demos.
func New(opts ...Option) (*Client, error) {
	o := resolvedOptions{
		params: model.DefaultParams(),
		clock:  time.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		l           ledger.Ledger
		closeLedger func() error
	)
	switch {
	case o.openLedger != nil:
		var err error
		l, closeLedger, err = o.openLedger(context.Background(), logger)
		if err != nil {
			return nil, fmt.Errorf("trustnet: open ledger: %w", err)
		}
	default:
		l = ledger.NewMemory()
	}

	return &Client{
		ledger:      l,
		closeLedger: closeLedger,
		escrow:      escrow.NewEngine(l, o.params, o.clock, logger),
		arbitration: arbitration.NewEngine(l, o.params, o.clock, logger),
		reputation:  reputation.NewService(l, o.params, o.clock, logger),
		clock:       o.clock,
		logger:      logger,
	}, nil
}

// Close releases the ledger backend, if it holds resources.
func (c *Client) Close() error {
	if c.closeLedger != nil {
		return c.closeLedger()
	}
	return nil
}

// Fund credits a wallet out of thin air on backends that allow it (all
// bundled backends do). Meant for demos and tests; a production ledger
// would gate issuance elsewhere.
func (c *Client) Fund(ctx context.Context, wallet Address, amount uint64) error {
	f, ok := c.ledger.(ledger.Funder)
	if !ok {
		return fmt.Errorf("trustnet: ledger backend cannot issue funds")
	}
	return f.Fund(ctx, wallet, amount)
}

// Balance reads a wallet or vault balance.
func (c *Client) Balance(ctx context.Context, addr Address) (uint64, error) {
	acc, err := c.ledger.ReadAccount(ctx, addr)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Treasury returns the protocol treasury address.
func (c *Client) Treasury() Address { return keys.Treasury() }

// CreateJob escrows amount from the client wallet against a new job.
func (c *Client) CreateJob(ctx context.Context, client, provider Address, id JobID, amount uint64, deadline time.Time, vt VerifyType, verificationData [64]byte, termsHash Hash) (Address, Receipt, error) {
	addr, r, err := c.escrow.CreateJob(ctx, client, provider, id, amount, deadline, model.VerifyType(vt), verificationData, termsHash)
	return addr, publicReceipt(r), err
}

// AcceptJob locks the provider's collateral and activates the job.
func (c *Client) AcceptJob(ctx context.Context, provider, job Address, stake uint64) (Receipt, error) {
	r, err := c.escrow.AcceptJob(ctx, provider, job, stake)
	return publicReceipt(r), err
}

// SubmitCompletion records the provider's deliverable hash.
func (c *Client) SubmitCompletion(ctx context.Context, provider, job Address, submissionHash Hash) (Receipt, error) {
	r, err := c.escrow.SubmitCompletion(ctx, provider, job, submissionHash)
	return publicReceipt(r), err
}

// ApproveCompletion releases the vault to the provider minus the protocol fee.
func (c *Client) ApproveCompletion(ctx context.Context, client, job Address) (Receipt, error) {
	r, err := c.escrow.ApproveCompletion(ctx, client, job)
	return publicReceipt(r), err
}

// OracleVerify settles an oracle-verified job on the oracle's verdict.
func (c *Client) OracleVerify(ctx context.Context, oracle, job Address, approved bool, notesHash Hash) (Receipt, error) {
	r, err := c.escrow.OracleVerify(ctx, oracle, job, approved, notesHash)
	return publicReceipt(r), err
}

// ExpireJob is the permissionless past-deadline cleanup path.
func (c *Client) ExpireJob(ctx context.Context, job Address) (Receipt, error) {
	r, err := c.escrow.ExpireJob(ctx, job)
	return publicReceipt(r), err
}

// GetJob returns the job view.
func (c *Client) GetJob(ctx context.Context, job Address) (JobView, error) {
	j, err := c.escrow.GetJob(ctx, job)
	if err != nil {
		return JobView{}, err
	}
	return toJobView(job, j), nil
}

// RaiseDispute contests an Active or Submitted job.
func (c *Client) RaiseDispute(ctx context.Context, raiser, job Address, reason []byte, evidenceHash Hash) (Address, Receipt, error) {
	addr, r, err := c.arbitration.RaiseDispute(ctx, raiser, job, reason, evidenceHash)
	return addr, publicReceipt(r), err
}

// CommitVote publishes a hidden vote commitment; see HashVote.
func (c *Client) CommitVote(ctx context.Context, arbiter, dispute Address, commitment Hash) (Receipt, error) {
	r, err := c.arbitration.CommitVote(ctx, arbiter, dispute, commitment)
	return publicReceipt(r), err
}

// RevealVote discloses a committed vote. True favors the provider.
func (c *Client) RevealVote(ctx context.Context, arbiter, dispute Address, vote bool, salt []byte) (Receipt, error) {
	r, err := c.arbitration.RevealVote(ctx, arbiter, dispute, vote, salt)
	return publicReceipt(r), err
}

// ResolveDispute tallies revealed votes and settles the dispute.
func (c *Client) ResolveDispute(ctx context.Context, dispute Address) (Receipt, error) {
	r, err := c.arbitration.ResolveDispute(ctx, dispute)
	return publicReceipt(r), err
}

// GetDispute returns the dispute view.
func (c *Client) GetDispute(ctx context.Context, dispute Address) (DisputeView, error) {
	d, err := c.arbitration.GetDispute(ctx, dispute)
	if err != nil {
		return DisputeView{}, err
	}
	return toDisputeView(dispute, d), nil
}

// HashVote computes the commit-reveal vote commitment for CommitVote.
func HashVote(arbiter, dispute Address, vote bool, salt []byte) Hash {
	return arbitration.HashVote(arbiter, dispute, vote, salt)
}

// RegisterAgent locks stake and opens the agent's reputation account.
func (c *Client) RegisterAgent(ctx context.Context, agent Address, stake uint64, specializations []byte) (Address, Receipt, error) {
	addr, r, err := c.reputation.RegisterAgent(ctx, agent, stake, specializations)
	return addr, publicReceipt(r), err
}

// TopUpStake adds stake to a registered agent.
func (c *Client) TopUpStake(ctx context.Context, agent Address, add uint64) (Receipt, error) {
	r, err := c.reputation.TopUpStake(ctx, agent, add)
	return publicReceipt(r), err
}

// RegisterArbiter locks stake and opens an arbiter registration.
func (c *Client) RegisterArbiter(ctx context.Context, authority Address, stake uint64, specializations []byte) (Address, Receipt, error) {
	addr, r, err := c.reputation.RegisterArbiter(ctx, authority, stake, specializations)
	return addr, publicReceipt(r), err
}

// RateJob records a one-shot rating of the counterparty on a settled job.
func (c *Client) RateJob(ctx context.Context, rater, job Address, score uint8, tags []byte, commentHash Hash) (Address, Receipt, error) {
	addr, r, err := c.reputation.RateJob(ctx, rater, job, score, tags, commentHash)
	return addr, publicReceipt(r), err
}

// GetReputation returns the agent's reputation view, including the derived
// trust score at the current time.
func (c *Client) GetReputation(ctx context.Context, agent Address) (ReputationView, error) {
	rep, err := c.reputation.GetReputation(ctx, agent)
	if err != nil {
		return ReputationView{}, err
	}
	return toReputationView(rep, c.clock()), nil
}

// GetArbiter returns the arbiter view for an authority.
func (c *Client) GetArbiter(ctx context.Context, authority Address) (ArbiterView, error) {
	arb, err := c.reputation.GetArbiter(ctx, authority)
	if err != nil {
		return ArbiterView{}, err
	}
	return toArbiterView(arb), nil
}

func publicReceipt(r ledger.Receipt) Receipt {
	return Receipt{ID: r.ID.String(), AppliedAt: r.AppliedAt}
}
