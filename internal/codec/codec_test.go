package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whoknowsmann/trust-net/internal/codec"
	"github.com/whoknowsmann/trust-net/internal/model"
)

func i64ptr(v int64) *int64 { return &v }

func boolptr(v bool) *bool { return &v }

func TestJobRoundTrip(t *testing.T) {
	job := &model.JobEscrow{
		JobID:            model.JobID{1, 2, 3},
		Client:           model.Address{4},
		Provider:         model.Address{5},
		Amount:           500_000_000,
		ProviderStake:    100_000_000,
		Deadline:         1_900_000_000,
		Status:           model.JobSubmitted,
		VerificationType: model.VerifyOracle,
		CreatedAt:        1_899_000_000,
		SubmittedAt:      i64ptr(1_899_500_000),
		TermsHash:        model.Hash{9},
	}
	copy(job.VerificationData[:], "oracle-address-goes-here")

	got, err := codec.DecodeJob(codec.EncodeJob(job))
	require.NoError(t, err)
	assert.Equal(t, job, got)
	assert.Nil(t, got.CompletedAt)
}

func TestDisputeRoundTrip(t *testing.T) {
	d := &model.Dispute{
		Job:            model.Address{1},
		Client:         model.Address{2},
		Provider:       model.Address{3},
		Raiser:         model.Address{2},
		ReasonHash:     model.Hash{7},
		EvidenceHash:   model.Hash{8},
		Status:         model.DisputeRevealing,
		CommitDeadline: 100,
		RevealDeadline: 200,
		Arbiters:       []model.Address{{10}, {11}, {12}},
	}
	got, err := codec.DecodeDispute(codec.EncodeDispute(d))
	require.NoError(t, err)
	assert.Equal(t, d, got)

	d.ResolvedInFavorOfClient = boolptr(true)
	d.Status = model.DisputeResolved
	got, err = codec.DecodeDispute(codec.EncodeDispute(d))
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestReputationRoundTrip(t *testing.T) {
	rep := &model.AgentReputation{
		Agent:              model.Address{1},
		TotalJobsCompleted: 12,
		TotalJobsFailed:    3,
		TotalDisputesWon:   2,
		TotalDisputesLost:  1,
		TotalVolume:        9_999_999_999,
		AvgRating:          437,
		RatingCount:        8,
		Specializations:    []byte{0x01, 0x02},
		CreatedAt:          1000,
		LastActive:         2000,
		StakeAmount:        1_000_000_000,
	}
	got, err := codec.DecodeReputation(codec.EncodeReputation(rep))
	require.NoError(t, err)
	assert.Equal(t, rep, got)
}

func TestVoteRoundTrip(t *testing.T) {
	v := &model.VoteCommitment{
		Dispute:    model.Address{1},
		Arbiter:    model.Address{2},
		CommitHash: model.Hash{3},
	}
	got, err := codec.DecodeVote(codec.EncodeVote(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	v.Revealed = true
	v.Vote = boolptr(false)
	got, err = codec.DecodeVote(codec.EncodeVote(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	job := &model.JobEscrow{Amount: 1, Deadline: 2}
	data := codec.EncodeJob(job)

	t.Run("wrong layout version", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] = 2
		_, err := codec.DecodeJob(bad)
		assert.ErrorIs(t, err, model.ErrIntegrity)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := codec.DecodeJob(data[:len(data)/2])
		assert.ErrorIs(t, err, model.ErrIntegrity)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := codec.DecodeJob(append(append([]byte(nil), data...), 0xFF))
		assert.ErrorIs(t, err, model.ErrIntegrity)
	})

	t.Run("invalid optional flag payload", func(t *testing.T) {
		v := &model.VoteCommitment{}
		enc := codec.EncodeVote(v)
		enc[len(enc)-2] = 9 // revealed flag must be 0 or 1
		_, err := codec.DecodeVote(enc)
		assert.ErrorIs(t, err, model.ErrIntegrity)
	})
}

func TestArbiterAndRatingRoundTrip(t *testing.T) {
	a := &model.Arbiter{
		Authority:       model.Address{1},
		Stake:           2_000_000_000,
		CasesJudged:     4,
		AccuracyScore:   500,
		Specializations: []byte{0xAA},
		Active:          true,
		CreatedAt:       10,
		LastCase:        20,
	}
	gotA, err := codec.DecodeArbiter(codec.EncodeArbiter(a))
	require.NoError(t, err)
	assert.Equal(t, a, gotA)

	rt := &model.Rating{
		JobID:       model.JobID{1},
		Rater:       model.Address{2},
		Ratee:       model.Address{3},
		Score:       5,
		Tags:        []byte{0x01},
		CommentHash: model.Hash{4},
		Timestamp:   99,
	}
	gotR, err := codec.DecodeRating(codec.EncodeRating(rt))
	require.NoError(t, err)
	assert.Equal(t, rt, gotR)
}
