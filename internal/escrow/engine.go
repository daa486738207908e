// Package escrow drives the per-job state machine: creation, acceptance,
// submission, and the resolution paths that release the vault. Every
// operation is a single atomic ledger transition; a conflicting concurrent
// transition loses the version check and surfaces as a state conflict.
package escrow

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
	"github.com/whoknowsmann/trust-net/internal/reputation"
)

// Engine applies job-escrow transitions against a ledger.
type Engine struct {
	ledger ledger.Ledger
	params model.Params
	clock  func() time.Time
	logger *slog.Logger
}

// NewEngine wires an escrow engine over a ledger.
func NewEngine(l ledger.Ledger, params model.Params, clock func() time.Time, logger *slog.Logger) *Engine {
	return &Engine{ledger: l, params: params, clock: clock, logger: logger}
}

// CreateJob escrows amount from the client into the job vault and records
// the job in Created. The job id is caller-chosen and must be unused.
func (e *Engine) CreateJob(ctx context.Context, client, provider model.Address, id model.JobID, amount uint64, deadline time.Time, vt model.VerifyType, verificationData [64]byte, termsHash model.Hash) (model.Address, ledger.Receipt, error) {
	now := e.clock()
	if amount == 0 {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("escrow: %w", model.ErrInvalidAmount)
	}
	if client == provider {
		// Refund paths split funds between the two wallets; one address on
		// both sides would need two writes to the same account in one
		// transition.
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("escrow: %w", model.ErrSelfDeal)
	}
	if !deadline.After(now) {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("escrow: deadline %s is not in the future: %w",
			deadline.UTC().Format(time.RFC3339), model.ErrInvalidDeadline)
	}
	if !vt.Valid() {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("escrow: %w", model.ErrInvalidVerifyType)
	}

	jobAddr := keys.Job(id)
	if _, err := e.ledger.ReadAccount(ctx, jobAddr); err == nil {
		return model.Address{}, ledger.Receipt{}, fmt.Errorf("escrow: job %s: %w", jobAddr, model.ErrDuplicateJob)
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Address{}, ledger.Receipt{}, err
	}

	wallet, err := e.debit(ctx, client, amount)
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}

	job := &model.JobEscrow{
		JobID:            id,
		Client:           client,
		Provider:         provider,
		Amount:           amount,
		Deadline:         deadline.Unix(),
		Status:           model.JobCreated,
		VerificationType: vt,
		VerificationData: verificationData,
		CreatedAt:        now.Unix(),
		TermsHash:        termsHash,
	}
	receipt, err := e.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		wallet,
		{Address: keys.JobVault(jobAddr), Balance: amount, Expected: 0},
		{Address: jobAddr, Data: codec.EncodeJob(job), Expected: 0},
	}})
	if err != nil {
		return model.Address{}, ledger.Receipt{}, err
	}
	e.logger.Info("escrow: job created",
		"job", jobAddr, "client", client, "provider", provider,
		"amount", amount, "verification", vt)
	return jobAddr, receipt, nil
}

// AcceptJob locks the provider's collateral into the vault and activates
// the job. Only the designated provider may accept.
func (e *Engine) AcceptJob(ctx context.Context, provider, jobAddr model.Address, stake uint64) (ledger.Receipt, error) {
	job, jobVersion, err := e.loadJob(ctx, jobAddr)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if job.Status != model.JobCreated {
		return ledger.Receipt{}, wrongState(job.Status)
	}
	if provider != job.Provider {
		return ledger.Receipt{}, fmt.Errorf("escrow: %w", model.ErrNotProvider)
	}
	if stake < e.params.MinProviderStake {
		return ledger.Receipt{}, fmt.Errorf("escrow: stake %d below minimum %d: %w",
			stake, e.params.MinProviderStake, model.ErrInsufficientStake)
	}

	wallet, err := e.debit(ctx, provider, stake)
	if err != nil {
		return ledger.Receipt{}, err
	}
	vault, err := e.credit(ctx, keys.JobVault(jobAddr), stake)
	if err != nil {
		return ledger.Receipt{}, err
	}

	job.ProviderStake = stake
	job.Status = model.JobActive
	receipt, err := e.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		wallet,
		vault,
		{Address: jobAddr, Data: codec.EncodeJob(job), Expected: jobVersion},
	}})
	if err != nil {
		return ledger.Receipt{}, err
	}
	e.logger.Info("escrow: job accepted", "job", jobAddr, "provider", provider, "stake", stake)
	return receipt, nil
}

// SubmitCompletion records the provider's deliverable hash before the
// deadline and moves the job to Submitted.
func (e *Engine) SubmitCompletion(ctx context.Context, provider, jobAddr model.Address, submissionHash model.Hash) (ledger.Receipt, error) {
	now := e.clock()
	job, jobVersion, err := e.loadJob(ctx, jobAddr)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if job.Status != model.JobActive {
		return ledger.Receipt{}, wrongState(job.Status)
	}
	if provider != job.Provider {
		return ledger.Receipt{}, fmt.Errorf("escrow: %w", model.ErrNotProvider)
	}
	if now.Unix() > job.Deadline {
		return ledger.Receipt{}, fmt.Errorf("escrow: %w", model.ErrDeadlinePassed)
	}

	job.SetAttestation(submissionHash)
	submittedAt := now.Unix()
	job.SubmittedAt = &submittedAt
	job.Status = model.JobSubmitted
	receipt, err := e.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		{Address: jobAddr, Data: codec.EncodeJob(job), Expected: jobVersion},
	}})
	if err != nil {
		return ledger.Receipt{}, err
	}
	e.logger.Info("escrow: completion submitted", "job", jobAddr, "provider", provider)
	return receipt, nil
}

// ApproveCompletion releases amount plus provider stake to the provider,
// minus the protocol fee routed to the treasury. Submission is mandatory:
// only a Submitted job can be approved, and only by the client.
func (e *Engine) ApproveCompletion(ctx context.Context, client, jobAddr model.Address) (ledger.Receipt, error) {
	job, jobVersion, err := e.loadJob(ctx, jobAddr)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if job.Status != model.JobSubmitted {
		return ledger.Receipt{}, wrongState(job.Status)
	}
	if client != job.Client {
		return ledger.Receipt{}, fmt.Errorf("escrow: %w", model.ErrNotClient)
	}
	receipt, err := e.settleForProvider(ctx, job, jobAddr, jobVersion)
	if err != nil {
		return ledger.Receipt{}, err
	}
	e.logger.Info("escrow: job approved", "job", jobAddr, "provider", job.Provider)
	return receipt, nil
}

// OracleVerify settles a Submitted oracle-verified job on the designated
// oracle's verdict. Approval pays the provider like client approval; a
// rejection refunds the client and returns the stake, counting a failed job
// for the provider. The job completes either way, with the oracle's notes
// hash recorded alongside the verdict.
func (e *Engine) OracleVerify(ctx context.Context, oracle, jobAddr model.Address, approved bool, notesHash model.Hash) (ledger.Receipt, error) {
	job, jobVersion, err := e.loadJob(ctx, jobAddr)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if job.Status != model.JobSubmitted {
		return ledger.Receipt{}, wrongState(job.Status)
	}
	if job.VerificationType != model.VerifyOracle || oracle != job.Oracle() {
		return ledger.Receipt{}, fmt.Errorf("escrow: %w", model.ErrNotOracle)
	}

	job.SetAttestation(notesHash)
	var receipt ledger.Receipt
	if approved {
		receipt, err = e.settleForProvider(ctx, job, jobAddr, jobVersion)
	} else {
		receipt, err = e.refund(ctx, job, jobAddr, jobVersion, model.JobCompleted, true)
	}
	if err != nil {
		return ledger.Receipt{}, err
	}
	e.logger.Info("escrow: oracle verdict", "job", jobAddr, "oracle", oracle, "approved", approved)
	return receipt, nil
}

// ExpireJob is the permissionless cleanup path once the deadline has
// passed. An Active job refunds the client and returns the stake, counting
// a failed job for the provider. A Submitted DeadlineAuto job auto-approves
// after the grace period. Any other pre-terminal job refunds without a
// reputation penalty. Disputed jobs settle through dispute resolution only.
func (e *Engine) ExpireJob(ctx context.Context, jobAddr model.Address) (ledger.Receipt, error) {
	now := e.clock()
	job, jobVersion, err := e.loadJob(ctx, jobAddr)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if job.Status.Terminal() {
		return ledger.Receipt{}, fmt.Errorf("escrow: job is %s: %w", job.Status, model.ErrAlreadyTerminal)
	}
	if job.Status == model.JobDisputed {
		return ledger.Receipt{}, wrongState(job.Status)
	}
	if now.Unix() <= job.Deadline {
		return ledger.Receipt{}, fmt.Errorf("escrow: deadline %d not reached at %d: %w",
			job.Deadline, now.Unix(), model.ErrNotYetExpired)
	}

	var receipt ledger.Receipt
	switch {
	case job.Status == model.JobSubmitted && job.VerificationType == model.VerifyDeadlineAuto:
		// The grace period gives the client time to contest before funds
		// auto-release.
		if now.Unix() <= job.Deadline+int64(e.params.GracePeriod.Seconds()) {
			return ledger.Receipt{}, fmt.Errorf("escrow: grace period still running: %w", model.ErrNotYetExpired)
		}
		receipt, err = e.settleForProvider(ctx, job, jobAddr, jobVersion)
	case job.Status == model.JobActive:
		receipt, err = e.refund(ctx, job, jobAddr, jobVersion, model.JobExpired, true)
	default:
		receipt, err = e.refund(ctx, job, jobAddr, jobVersion, model.JobExpired, false)
	}
	if err != nil {
		return ledger.Receipt{}, err
	}
	e.logger.Info("escrow: job expired", "job", jobAddr, "status", job.Status)
	return receipt, nil
}

// GetJob returns the decoded job account.
func (e *Engine) GetJob(ctx context.Context, jobAddr model.Address) (*model.JobEscrow, error) {
	job, _, err := e.loadJob(ctx, jobAddr)
	return job, err
}

// settleForProvider drains the vault to the provider minus the protocol
// fee, credits the provider's reputation, and completes the job.
func (e *Engine) settleForProvider(ctx context.Context, job *model.JobEscrow, jobAddr model.Address, jobVersion uint64) (ledger.Receipt, error) {
	now := e.clock().Unix()
	vault, err := e.ledger.ReadAccount(ctx, keys.JobVault(jobAddr))
	if err != nil {
		return ledger.Receipt{}, err
	}

	fee := model.Fee(job.Amount, e.params.ProtocolFeeBps)
	payout := vault.Balance - fee
	providerWallet, err := e.credit(ctx, job.Provider, payout)
	if err != nil {
		return ledger.Receipt{}, err
	}
	treasury, err := e.credit(ctx, keys.Treasury(), fee)
	if err != nil {
		return ledger.Receipt{}, err
	}

	rep, repVersion, err := reputation.LoadOrNew(ctx, e.ledger, job.Provider, now)
	if err != nil {
		return ledger.Receipt{}, err
	}
	reputation.CreditCompleted(rep, job.Amount, now)

	job.Status = model.JobCompleted
	job.CompletedAt = &now
	return e.ledger.Apply(ctx, ledger.Transition{Writes: []ledger.Write{
		{Address: vault.Address, Balance: 0, Expected: vault.Version},
		providerWallet,
		treasury,
		reputation.SaveWrite(rep, repVersion),
		{Address: jobAddr, Data: codec.EncodeJob(job), Expected: jobVersion},
	}})
}

// refund returns the escrowed amount to the client and the stake to the
// provider, optionally counting a failed job against the provider.
func (e *Engine) refund(ctx context.Context, job *model.JobEscrow, jobAddr model.Address, jobVersion uint64, terminal model.JobStatus, providerFailed bool) (ledger.Receipt, error) {
	now := e.clock().Unix()
	vault, err := e.ledger.ReadAccount(ctx, keys.JobVault(jobAddr))
	if err != nil {
		return ledger.Receipt{}, err
	}

	clientWallet, err := e.credit(ctx, job.Client, vault.Balance-job.ProviderStake)
	if err != nil {
		return ledger.Receipt{}, err
	}
	writes := []ledger.Write{
		{Address: vault.Address, Balance: 0, Expected: vault.Version},
		clientWallet,
	}
	if job.ProviderStake > 0 {
		providerWallet, err := e.credit(ctx, job.Provider, job.ProviderStake)
		if err != nil {
			return ledger.Receipt{}, err
		}
		writes = append(writes, providerWallet)
	}
	if providerFailed {
		rep, repVersion, err := reputation.LoadOrNew(ctx, e.ledger, job.Provider, now)
		if err != nil {
			return ledger.Receipt{}, err
		}
		reputation.CreditFailed(rep, now)
		writes = append(writes, reputation.SaveWrite(rep, repVersion))
	}

	job.Status = terminal
	job.CompletedAt = &now
	writes = append(writes, ledger.Write{Address: jobAddr, Data: codec.EncodeJob(job), Expected: jobVersion})
	return e.ledger.Apply(ctx, ledger.Transition{Writes: writes})
}

func (e *Engine) loadJob(ctx context.Context, jobAddr model.Address) (*model.JobEscrow, uint64, error) {
	acc, err := e.ledger.ReadAccount(ctx, jobAddr)
	if err != nil {
		return nil, 0, err
	}
	job, err := codec.DecodeJob(acc.Data)
	if err != nil {
		return nil, 0, err
	}
	return job, acc.Version, nil
}

func (e *Engine) debit(ctx context.Context, wallet model.Address, amount uint64) (ledger.Write, error) {
	acc, err := e.ledger.ReadAccount(ctx, wallet)
	if errors.Is(err, model.ErrNotFound) || (err == nil && acc.Balance < amount) {
		return ledger.Write{}, fmt.Errorf("escrow: wallet %s cannot cover %d: %w",
			wallet, amount, model.ErrInsufficientFunds)
	}
	if err != nil {
		return ledger.Write{}, err
	}
	return ledger.Write{Address: wallet, Balance: acc.Balance - amount, Data: acc.Data, Expected: acc.Version}, nil
}

func (e *Engine) credit(ctx context.Context, addr model.Address, amount uint64) (ledger.Write, error) {
	acc, err := e.ledger.ReadAccount(ctx, addr)
	if errors.Is(err, model.ErrNotFound) {
		return ledger.Write{Address: addr, Balance: amount, Expected: 0}, nil
	}
	if err != nil {
		return ledger.Write{}, err
	}
	return ledger.Write{Address: addr, Balance: acc.Balance + amount, Data: acc.Data, Expected: acc.Version}, nil
}

func wrongState(s model.JobStatus) error {
	return fmt.Errorf("escrow: job is %s: %w", s, model.ErrWrongState)
}
