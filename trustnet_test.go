package trustnet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trustnet "github.com/whoknowsmann/trust-net"
)

func TestClientHappyPath(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	tn, err := trustnet.New(
		trustnet.WithMemoryLedger(),
		trustnet.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	defer tn.Close()

	client := trustnet.Address{1}
	provider := trustnet.Address{2}
	require.NoError(t, tn.Fund(ctx, client, 1_000_000_000))
	require.NoError(t, tn.Fund(ctx, provider, 1_000_000_000))

	jobAddr, receipt, err := tn.CreateJob(ctx, client, provider, trustnet.JobID{1},
		500_000_000, now.Add(time.Hour), trustnet.VerifyClientApproval, [64]byte{}, trustnet.Hash{})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ID)

	job, err := tn.GetJob(ctx, jobAddr)
	require.NoError(t, err)
	assert.Equal(t, "created", job.Status)

	_, err = tn.AcceptJob(ctx, provider, jobAddr, 100_000_000)
	require.NoError(t, err)
	_, err = tn.SubmitCompletion(ctx, provider, jobAddr, trustnet.Hash{7})
	require.NoError(t, err)
	_, err = tn.ApproveCompletion(ctx, client, jobAddr)
	require.NoError(t, err)

	got, err := tn.Balance(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000-100_000_000+600_000_000-500_000), got)

	fee, err := tn.Balance(ctx, tn.Treasury())
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), fee)

	// Rating the provider feeds the reputation view.
	_, _, err = tn.RateJob(ctx, client, jobAddr, 5, nil, trustnet.Hash{})
	require.NoError(t, err)
	_, _, err = tn.RateJob(ctx, client, jobAddr, 4, nil, trustnet.Hash{})
	assert.ErrorIs(t, err, trustnet.ErrAlreadyRated)

	rep, err := tn.GetReputation(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rep.TotalJobsCompleted)
	assert.Equal(t, 5.0, rep.AvgRating)
	assert.Equal(t, 100, rep.TrustScore)
}

func TestClientDisputePath(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	tn, err := trustnet.New(
		trustnet.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	defer tn.Close()

	client := trustnet.Address{1}
	provider := trustnet.Address{2}
	arbiter := trustnet.Address{10}
	require.NoError(t, tn.Fund(ctx, client, 1_000_000_000))
	require.NoError(t, tn.Fund(ctx, provider, 1_000_000_000))
	require.NoError(t, tn.Fund(ctx, arbiter, 1_000_000_000))

	_, _, err = tn.RegisterArbiter(ctx, arbiter, 1_000_000_000, []byte("general"))
	require.NoError(t, err)

	jobAddr, _, err := tn.CreateJob(ctx, client, provider, trustnet.JobID{2},
		100_000_000, now.Add(time.Hour), trustnet.VerifyClientApproval, [64]byte{}, trustnet.Hash{})
	require.NoError(t, err)
	_, err = tn.AcceptJob(ctx, provider, jobAddr, 10_000_000)
	require.NoError(t, err)

	disputeAddr, _, err := tn.RaiseDispute(ctx, client, jobAddr, []byte("no delivery"), trustnet.Hash{})
	require.NoError(t, err)

	salt := []byte("nonce")
	_, err = tn.CommitVote(ctx, arbiter, disputeAddr, trustnet.HashVote(arbiter, disputeAddr, false, salt))
	require.NoError(t, err)

	now = now.Add(90 * time.Minute)
	_, err = tn.RevealVote(ctx, arbiter, disputeAddr, false, salt)
	require.NoError(t, err)
	_, err = tn.ResolveDispute(ctx, disputeAddr)
	require.NoError(t, err)

	dispute, err := tn.GetDispute(ctx, disputeAddr)
	require.NoError(t, err)
	assert.Equal(t, "resolved", dispute.Status)
	require.NotNil(t, dispute.ResolvedInFavorOfClient)
	assert.True(t, *dispute.ResolvedInFavorOfClient)

	job, err := tn.GetJob(ctx, jobAddr)
	require.NoError(t, err)
	assert.Equal(t, "resolved", job.Status)
}
