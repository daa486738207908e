package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whoknowsmann/trust-net/internal/model"
)

func TestJobStatusTerminal(t *testing.T) {
	terminal := []model.JobStatus{model.JobCompleted, model.JobResolved, model.JobCancelled, model.JobExpired}
	live := []model.JobStatus{model.JobCreated, model.JobActive, model.JobSubmitted, model.JobDisputed}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "status %s", s)
	}
	for _, s := range live {
		assert.False(t, s.Terminal(), "status %s", s)
	}
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		err      error
		category error
	}{
		{model.ErrInvalidAmount, model.ErrValidation},
		{model.ErrInvalidDeadline, model.ErrValidation},
		{model.ErrInsufficientStake, model.ErrValidation},
		{model.ErrDuplicateJob, model.ErrStateConflict},
		{model.ErrWrongState, model.ErrStateConflict},
		{model.ErrAlreadyRated, model.ErrStateConflict},
		{model.ErrNotProvider, model.ErrUnauthorized},
		{model.ErrNotArbiter, model.ErrUnauthorized},
		{model.ErrCommitmentMismatch, model.ErrIntegrity},
		{model.ErrDeadlinePassed, model.ErrTiming},
		{model.ErrNotYetExpired, model.ErrTiming},
	}
	for _, tt := range tests {
		assert.True(t, errors.Is(tt.err, tt.category), "%v should wrap %v", tt.err, tt.category)
	}
	// Categories are disjoint.
	assert.False(t, errors.Is(model.ErrInvalidAmount, model.ErrStateConflict))
	assert.False(t, errors.Is(model.ErrWrongState, model.ErrTiming))
}

func TestFee(t *testing.T) {
	// 0.1% of 500_000_000.
	assert.Equal(t, uint64(500_000), model.Fee(500_000_000, 10))
	// Rounds down, never in the client's favor by more than one unit.
	assert.Equal(t, uint64(15), model.Fee(15_999, 10))
	assert.Equal(t, uint64(0), model.Fee(999, 10))
	// Large amounts must not overflow the intermediate product.
	assert.Equal(t, uint64(1<<62)/1_000, model.Fee(1<<62, 10))
}

func TestValidateScore(t *testing.T) {
	for s := uint8(1); s <= 5; s++ {
		require.NoError(t, model.ValidateScore(s))
	}
	assert.ErrorIs(t, model.ValidateScore(0), model.ErrRatingOutOfRange)
	assert.ErrorIs(t, model.ValidateScore(6), model.ErrRatingOutOfRange)
}

func TestJobEscrowParties(t *testing.T) {
	client := model.Address{1}
	provider := model.Address{2}
	stranger := model.Address{3}
	job := model.JobEscrow{Client: client, Provider: provider}

	assert.True(t, job.IsParty(client))
	assert.True(t, job.IsParty(provider))
	assert.False(t, job.IsParty(stranger))

	assert.Equal(t, provider, job.Counterparty(client))
	assert.Equal(t, client, job.Counterparty(provider))
	assert.True(t, job.Counterparty(stranger).IsZero())
}

func TestJobEscrowAttestation(t *testing.T) {
	var job model.JobEscrow
	oracle := model.Address{0xAA, 0xBB}
	copy(job.VerificationData[:32], oracle[:])

	job.SetAttestation(model.Hash{0xCC})

	assert.Equal(t, oracle, job.Oracle(), "attestation must not clobber the oracle address")
	assert.Equal(t, byte(0xCC), job.VerificationData[32])
}
