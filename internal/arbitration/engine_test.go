package arbitration

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whoknowsmann/trust-net/internal/escrow"
	"github.com/whoknowsmann/trust-net/internal/keys"
	"github.com/whoknowsmann/trust-net/internal/ledger"
	"github.com/whoknowsmann/trust-net/internal/model"
	"github.com/whoknowsmann/trust-net/internal/reputation"
)

var (
	client   = model.Address{1}
	provider = model.Address{2}
	arbiters = []model.Address{{10}, {11}, {12}}
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// fixture wires the full stack: a job already in Submitted, three
// registered arbiters, and engines sharing one clock.
type fixture struct {
	arb     *Engine
	esc     *escrow.Engine
	rep     *reputation.Service
	mem     *ledger.Memory
	clock   *testClock
	jobAddr model.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := ledger.NewMemory()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	params := model.DefaultParams()

	f := &fixture{
		arb:   NewEngine(mem, params, clock.Now, logger),
		esc:   escrow.NewEngine(mem, params, clock.Now, logger),
		rep:   reputation.NewService(mem, params, clock.Now, logger),
		mem:   mem,
		clock: clock,
	}

	require.NoError(t, mem.Fund(ctx, client, 1_000_000_000))
	require.NoError(t, mem.Fund(ctx, provider, 1_000_000_000))
	for _, a := range arbiters {
		require.NoError(t, mem.Fund(ctx, a, 2_000_000_000))
		_, _, err := f.rep.RegisterArbiter(ctx, a, 1_000_000_000, nil)
		require.NoError(t, err)
	}

	jobAddr, _, err := f.esc.CreateJob(ctx, client, provider, model.JobID{42},
		500_000_000, clock.now.Add(24*time.Hour), model.VerifyClientApproval, [64]byte{}, model.Hash{})
	require.NoError(t, err)
	_, err = f.esc.AcceptJob(ctx, provider, jobAddr, 100_000_000)
	require.NoError(t, err)
	_, err = f.esc.SubmitCompletion(ctx, provider, jobAddr, model.Hash{7})
	require.NoError(t, err)
	f.jobAddr = jobAddr
	return f
}

func (f *fixture) raise(t *testing.T) model.Address {
	t.Helper()
	disputeAddr, _, err := f.arb.RaiseDispute(context.Background(), client, f.jobAddr,
		[]byte("deliverable does not match terms"), model.Hash{3})
	require.NoError(t, err)
	return disputeAddr
}

func (f *fixture) balance(t *testing.T, addr model.Address) uint64 {
	t.Helper()
	acc, err := f.mem.ReadAccount(context.Background(), addr)
	require.NoError(t, err)
	return acc.Balance
}

// commitAndReveal walks the given votes through both phases.
func (f *fixture) commitAndReveal(t *testing.T, disputeAddr model.Address, votes []bool) {
	t.Helper()
	ctx := context.Background()
	salt := []byte("salt")
	for i, v := range votes {
		_, err := f.arb.CommitVote(ctx, arbiters[i], disputeAddr, HashVote(arbiters[i], disputeAddr, v, salt))
		require.NoError(t, err)
	}
	f.clock.advance(2 * time.Hour)
	for i, v := range votes {
		_, err := f.arb.RevealVote(ctx, arbiters[i], disputeAddr, v, salt)
		require.NoError(t, err)
	}
}

func TestRaiseDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vaultBefore := f.balance(t, keys.JobVault(f.jobAddr))
	disputeAddr := f.raise(t)

	// Dispute fee is 1% of the job amount.
	assert.Equal(t, uint64(5_000_000), f.balance(t, keys.DisputeVault(disputeAddr)))
	assert.Equal(t, vaultBefore-5_000_000, f.balance(t, keys.JobVault(f.jobAddr)))

	dispute, err := f.arb.GetDispute(ctx, disputeAddr)
	require.NoError(t, err)
	assert.Equal(t, model.DisputeCommitting, dispute.Status)
	assert.Equal(t, client, dispute.Raiser)
	assert.Greater(t, dispute.RevealDeadline, dispute.CommitDeadline)

	job, err := f.esc.GetJob(ctx, f.jobAddr)
	require.NoError(t, err)
	assert.Equal(t, model.JobDisputed, job.Status)

	// Disputed jobs settle through resolution, never expiry.
	f.clock.advance(48 * time.Hour)
	_, err = f.esc.ExpireJob(ctx, f.jobAddr)
	assert.ErrorIs(t, err, model.ErrWrongState)
}

func TestRaiseDisputeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.arb.RaiseDispute(ctx, model.Address{9}, f.jobAddr, []byte("x"), model.Hash{})
	assert.ErrorIs(t, err, model.ErrNotParty)

	f.raise(t)
	_, _, err = f.arb.RaiseDispute(ctx, provider, f.jobAddr, []byte("x"), model.Hash{})
	// The job is already Disputed, so the state check fires first.
	assert.ErrorIs(t, err, model.ErrStateConflict)
}

func TestRaiseDisputeFromActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A fresh Active job (no submission) can also be disputed.
	jobAddr, _, err := f.esc.CreateJob(ctx, client, provider, model.JobID{43},
		200_000_000, f.clock.now.Add(time.Hour), model.VerifyClientApproval, [64]byte{}, model.Hash{})
	require.NoError(t, err)
	_, err = f.esc.AcceptJob(ctx, provider, jobAddr, 100_000_000)
	require.NoError(t, err)

	_, _, err = f.arb.RaiseDispute(ctx, provider, jobAddr, []byte("client unresponsive"), model.Hash{})
	require.NoError(t, err)
}

func TestCommitVoteRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	disputeAddr := f.raise(t)
	commitment := HashVote(arbiters[0], disputeAddr, true, []byte("s"))

	_, err := f.arb.CommitVote(ctx, model.Address{9}, disputeAddr, commitment)
	assert.ErrorIs(t, err, model.ErrNotArbiter)

	// A party cannot sit on the panel of its own dispute, even when it
	// holds a valid arbiter registration.
	require.NoError(t, f.mem.Fund(ctx, provider, 1_000_000_000))
	_, _, err = f.rep.RegisterArbiter(ctx, provider, 1_000_000_000, nil)
	require.NoError(t, err)
	_, err = f.arb.CommitVote(ctx, provider, disputeAddr,
		HashVote(provider, disputeAddr, true, []byte("s")))
	assert.ErrorIs(t, err, model.ErrInterestedArbiter)

	_, err = f.arb.CommitVote(ctx, arbiters[0], disputeAddr, commitment)
	require.NoError(t, err)
	_, err = f.arb.CommitVote(ctx, arbiters[0], disputeAddr, commitment)
	assert.ErrorIs(t, err, model.ErrAlreadyCommitted)

	f.clock.advance(2 * time.Hour)
	_, err = f.arb.CommitVote(ctx, arbiters[1], disputeAddr,
		HashVote(arbiters[1], disputeAddr, true, []byte("s")))
	assert.ErrorIs(t, err, model.ErrDeadlinePassed)
}

func TestRevealVoteSoundness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	disputeAddr := f.raise(t)
	salt := []byte("nonce-1")

	_, err := f.arb.CommitVote(ctx, arbiters[0], disputeAddr,
		HashVote(arbiters[0], disputeAddr, true, salt))
	require.NoError(t, err)

	// Reveals stay shut while commits are open.
	_, err = f.arb.RevealVote(ctx, arbiters[0], disputeAddr, true, salt)
	assert.ErrorIs(t, err, model.ErrWrongPhase)

	f.clock.advance(2 * time.Hour)

	// Flipped vote and perturbed salt both fail the commitment check.
	_, err = f.arb.RevealVote(ctx, arbiters[0], disputeAddr, false, salt)
	assert.ErrorIs(t, err, model.ErrCommitmentMismatch)
	_, err = f.arb.RevealVote(ctx, arbiters[0], disputeAddr, true, []byte("nonce-2"))
	assert.ErrorIs(t, err, model.ErrCommitmentMismatch)

	_, err = f.arb.RevealVote(ctx, arbiters[1], disputeAddr, true, salt)
	assert.ErrorIs(t, err, model.ErrNoCommitment)

	_, err = f.arb.RevealVote(ctx, arbiters[0], disputeAddr, true, salt)
	require.NoError(t, err)
	_, err = f.arb.RevealVote(ctx, arbiters[0], disputeAddr, true, salt)
	assert.ErrorIs(t, err, model.ErrAlreadyRevealed)
}

func TestResolveTwoToOneForProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	disputeAddr := f.raise(t)

	f.commitAndReveal(t, disputeAddr, []bool{true, true, false})

	providerBefore := f.balance(t, provider)
	majorityBefore := f.balance(t, arbiters[0])

	_, err := f.arb.ResolveDispute(ctx, disputeAddr)
	require.NoError(t, err)

	// Job vault held 500M amount + 100M stake − 5M dispute fee; the
	// provider wins it minus the 500_000 protocol fee.
	assert.Equal(t, providerBefore+595_000_000-500_000, f.balance(t, provider))
	assert.Equal(t, uint64(0), f.balance(t, keys.JobVault(f.jobAddr)))
	assert.Equal(t, uint64(0), f.balance(t, keys.DisputeVault(disputeAddr)))

	// Majority arbiters split the 5M dispute vault evenly.
	assert.Equal(t, majorityBefore+2_500_000, f.balance(t, arbiters[0]))

	// The dissenter loses 1% of stake to the treasury and earns nothing.
	dissenter, err := f.rep.GetArbiter(ctx, arbiters[2])
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000-10_000_000), dissenter.Stake)
	assert.Equal(t, uint64(1_000_000_000-10_000_000), f.balance(t, keys.ArbiterVault(arbiters[2])))
	assert.Equal(t, uint64(500_000+10_000_000), f.balance(t, keys.Treasury()))

	// Accuracy: agreeing arbiters rise from the 500 seed, the dissenter falls.
	agreeing, err := f.rep.GetArbiter(ctx, arbiters[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(1000), agreeing.AccuracyScore)
	assert.Equal(t, uint16(0), dissenter.AccuracyScore)

	provRep, err := f.rep.GetReputation(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), provRep.TotalDisputesWon)
	clientRep, err := f.rep.GetReputation(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), clientRep.TotalDisputesLost)

	job, err := f.esc.GetJob(ctx, f.jobAddr)
	require.NoError(t, err)
	assert.Equal(t, model.JobResolved, job.Status)

	dispute, err := f.arb.GetDispute(ctx, disputeAddr)
	require.NoError(t, err)
	require.NotNil(t, dispute.ResolvedInFavorOfClient)
	assert.False(t, *dispute.ResolvedInFavorOfClient)

	_, err = f.arb.ResolveDispute(ctx, disputeAddr)
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)
}

func TestResolveTieFavorsClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	disputeAddr := f.raise(t)

	f.commitAndReveal(t, disputeAddr, []bool{true, false})

	clientBefore := f.balance(t, client)
	_, err := f.arb.ResolveDispute(ctx, disputeAddr)
	require.NoError(t, err)

	// Tie: the client takes the whole job vault, no protocol fee.
	assert.Equal(t, clientBefore+595_000_000, f.balance(t, client))

	dispute, err := f.arb.GetDispute(ctx, disputeAddr)
	require.NoError(t, err)
	assert.True(t, *dispute.ResolvedInFavorOfClient)
}

// racingLedger delegates to the memory backend and runs a hook once, right
// before the next Apply goes through.
type racingLedger struct {
	*ledger.Memory
	beforeApply func()
}

func (l *racingLedger) Apply(ctx context.Context, tr ledger.Transition) (ledger.Receipt, error) {
	if l.beforeApply != nil {
		hook := l.beforeApply
		l.beforeApply = nil
		hook()
	}
	return l.Memory.Apply(ctx, tr)
}

// TestResolveConflictsWithConcurrentReveal interleaves an in-window reveal
// between the resolution's reads and its settlement transition. The
// resolution must lose that race with a state conflict; a retry then counts
// the revealed vote instead of slashing the arbiter as a no-show.
func TestResolveConflictsWithConcurrentReveal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	disputeAddr := f.raise(t)
	salt := []byte("s")

	for i, v := range []bool{false, true} {
		_, err := f.arb.CommitVote(ctx, arbiters[i], disputeAddr,
			HashVote(arbiters[i], disputeAddr, v, salt))
		require.NoError(t, err)
	}
	f.clock.advance(2 * time.Hour)
	_, err := f.arb.RevealVote(ctx, arbiters[0], disputeAddr, false, salt)
	require.NoError(t, err)

	inWindow := f.clock.now
	f.clock.advance(time.Hour) // past the reveal deadline

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	wrapped := &racingLedger{Memory: f.mem}
	racer := NewEngine(wrapped, model.DefaultParams(), f.clock.Now, logger)
	wrapped.beforeApply = func() {
		resumed := f.clock.now
		f.clock.now = inWindow
		_, err := f.arb.RevealVote(ctx, arbiters[1], disputeAddr, true, salt)
		require.NoError(t, err)
		f.clock.now = resumed
	}

	_, err = racer.ResolveDispute(ctx, disputeAddr)
	assert.ErrorIs(t, err, model.ErrStateConflict)

	// The retry tallies 1-1: client wins the tie, and the second arbiter
	// draws the wrong-vote slash, not the heavier no-show one.
	_, err = f.arb.ResolveDispute(ctx, disputeAddr)
	require.NoError(t, err)

	arb, err := f.rep.GetArbiter(ctx, arbiters[1])
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000-10_000_000), arb.Stake)

	dispute, err := f.arb.GetDispute(ctx, disputeAddr)
	require.NoError(t, err)
	assert.True(t, *dispute.ResolvedInFavorOfClient)
}

func TestResolveUnrevealedSlash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	disputeAddr := f.raise(t)
	salt := []byte("s")

	_, err := f.arb.CommitVote(ctx, arbiters[0], disputeAddr,
		HashVote(arbiters[0], disputeAddr, true, salt))
	require.NoError(t, err)

	// Commit phase still open, then reveal window untouched: not resolvable.
	_, err = f.arb.ResolveDispute(ctx, disputeAddr)
	assert.ErrorIs(t, err, model.ErrVotingNotComplete)

	f.clock.advance(3 * time.Hour)
	_, err = f.arb.ResolveDispute(ctx, disputeAddr)
	require.NoError(t, err)

	// No revealed votes: the client wins by the tie policy, the no-show
	// arbiter is slashed 2% and the unclaimed reward goes to the treasury.
	arb, err := f.rep.GetArbiter(ctx, arbiters[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000-20_000_000), arb.Stake)
	assert.Equal(t, uint64(20_000_000+5_000_000), f.balance(t, keys.Treasury()))

	dispute, err := f.arb.GetDispute(ctx, disputeAddr)
	require.NoError(t, err)
	assert.True(t, *dispute.ResolvedInFavorOfClient)
}
