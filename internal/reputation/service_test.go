package reputation

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whoknowsmann/trust-net/internal/codec"
	"github.com/whoknowsmann/trust-net/internal/keys"
	"github.com/whoknowsmann/trust-net/internal/ledger"
	"github.com/whoknowsmann/trust-net/internal/model"
)

var testNow = time.Unix(1_700_000_000, 0)

func newTestService(t *testing.T) (*Service, *ledger.Memory) {
	t.Helper()
	mem := ledger.NewMemory()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc := NewService(mem, model.DefaultParams(), func() time.Time { return testNow }, logger)
	return svc, mem
}

func fund(t *testing.T, mem *ledger.Memory, addr model.Address, amount uint64) {
	t.Helper()
	require.NoError(t, mem.Fund(context.Background(), addr, amount))
}

func TestRegisterAgent(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	agent := model.Address{1}
	fund(t, mem, agent, 500_000_000)

	repAddr, _, err := svc.RegisterAgent(ctx, agent, 200_000_000, []byte("translation"))
	require.NoError(t, err)
	assert.Equal(t, keys.Reputation(agent), repAddr)

	rep, err := svc.GetReputation(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000_000), rep.StakeAmount)
	assert.Equal(t, []byte("translation"), rep.Specializations)
	assert.Equal(t, testNow.Unix(), rep.CreatedAt)

	wallet, err := mem.ReadAccount(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, uint64(300_000_000), wallet.Balance)

	vault, err := mem.ReadAccount(ctx, keys.ReputationVault(agent))
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000_000), vault.Balance)
}

func TestRegisterAgentBelowMinimum(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	agent := model.Address{1}
	fund(t, mem, agent, 500_000_000)

	_, _, err := svc.RegisterAgent(ctx, agent, model.DefaultParams().MinAgentStake-1, nil)
	assert.ErrorIs(t, err, model.ErrInsufficientStake)
}

func TestRegisterAgentInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	agent := model.Address{1}
	fund(t, mem, agent, 50_000_000)

	_, _, err := svc.RegisterAgent(ctx, agent, 100_000_000, nil)
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
}

func TestRegisterAgentTwice(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	agent := model.Address{1}
	fund(t, mem, agent, 1_000_000_000)

	_, _, err := svc.RegisterAgent(ctx, agent, 100_000_000, nil)
	require.NoError(t, err)
	_, _, err = svc.RegisterAgent(ctx, agent, 100_000_000, nil)
	assert.ErrorIs(t, err, model.ErrStateConflict)
}

func TestTopUpStake(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	agent := model.Address{1}
	fund(t, mem, agent, 1_000_000_000)

	_, _, err := svc.RegisterAgent(ctx, agent, 100_000_000, nil)
	require.NoError(t, err)

	_, err = svc.TopUpStake(ctx, agent, 400_000_000)
	require.NoError(t, err)

	rep, err := svc.GetReputation(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), rep.StakeAmount)

	vault, err := mem.ReadAccount(ctx, keys.ReputationVault(agent))
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), vault.Balance)

	_, err = svc.TopUpStake(ctx, agent, 0)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = svc.TopUpStake(ctx, model.Address{9}, 100)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRegisterArbiter(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	authority := model.Address{2}
	fund(t, mem, authority, 2_000_000_000)

	arbAddr, _, err := svc.RegisterArbiter(ctx, authority, 1_000_000_000, []byte("smart-contracts"))
	require.NoError(t, err)
	assert.Equal(t, keys.Arbiter(authority), arbAddr)

	arb, err := svc.GetArbiter(ctx, authority)
	require.NoError(t, err)
	assert.True(t, arb.Active)
	assert.Equal(t, uint16(500), arb.AccuracyScore)
	assert.Equal(t, uint64(0), arb.CasesJudged)

	vault, err := mem.ReadAccount(ctx, keys.ArbiterVault(authority))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), vault.Balance)

	_, _, err = svc.RegisterArbiter(ctx, model.Address{3}, 999_999_999, nil)
	assert.ErrorIs(t, err, model.ErrInsufficientStake)
}

// writeTerminalJob plants a settled job account the rating path can read.
func writeTerminalJob(t *testing.T, mem *ledger.Memory, client, provider model.Address, status model.JobStatus) model.Address {
	t.Helper()
	job := &model.JobEscrow{
		JobID:            model.JobID{7},
		Client:           client,
		Provider:         provider,
		Amount:           500_000_000,
		Status:           status,
		VerificationType: model.VerifyClientApproval,
		CreatedAt:        testNow.Unix(),
	}
	addr := keys.Job(job.JobID)
	_, err := mem.Apply(context.Background(), ledger.Transition{Writes: []ledger.Write{
		{Address: addr, Data: codec.EncodeJob(job), Expected: 0},
	}})
	require.NoError(t, err)
	return addr
}

func TestRateJob(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	client, provider := model.Address{1}, model.Address{2}
	jobAddr := writeTerminalJob(t, mem, client, provider, model.JobCompleted)

	_, _, err := svc.RateJob(ctx, client, jobAddr, 4, []byte("fast"), model.Hash{})
	require.NoError(t, err)

	// The provider had no reputation account; rating created one lazily.
	rep, err := svc.GetReputation(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, uint16(400), rep.AvgRating)
	assert.Equal(t, uint64(1), rep.RatingCount)

	// Both directions are independent.
	_, _, err = svc.RateJob(ctx, provider, jobAddr, 5, nil, model.Hash{})
	require.NoError(t, err)
	clientRep, err := svc.GetReputation(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, uint16(500), clientRep.AvgRating)
}

func TestRateJobRejections(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	client, provider := model.Address{1}, model.Address{2}
	jobAddr := writeTerminalJob(t, mem, client, provider, model.JobCompleted)

	_, _, err := svc.RateJob(ctx, client, jobAddr, 0, nil, model.Hash{})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, _, err = svc.RateJob(ctx, client, jobAddr, 6, nil, model.Hash{})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, _, err = svc.RateJob(ctx, model.Address{9}, jobAddr, 3, nil, model.Hash{})
	assert.ErrorIs(t, err, model.ErrNotParty)

	_, _, err = svc.RateJob(ctx, client, jobAddr, 4, nil, model.Hash{})
	require.NoError(t, err)
	_, _, err = svc.RateJob(ctx, client, jobAddr, 5, nil, model.Hash{})
	assert.ErrorIs(t, err, model.ErrAlreadyRated)
}

func TestRateJobNonTerminal(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	client, provider := model.Address{1}, model.Address{2}
	jobAddr := writeTerminalJob(t, mem, client, provider, model.JobActive)

	_, _, err := svc.RateJob(ctx, client, jobAddr, 4, nil, model.Hash{})
	assert.ErrorIs(t, err, model.ErrWrongState)
}
