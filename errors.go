package trustnet

import "github.com/whoknowsmann/trust-net/internal/model"

// Error categories. Every failure from a Client operation matches exactly
// one category under errors.Is; the specific sentinels below narrow it.
var (
	ErrValidation    = model.ErrValidation
	ErrStateConflict = model.ErrStateConflict
	ErrUnauthorized  = model.ErrUnauthorized
	ErrIntegrity     = model.ErrIntegrity
	ErrTiming        = model.ErrTiming
	ErrNotFound      = model.ErrNotFound
)

// Specific failures.
var (
	ErrInvalidAmount     = model.ErrInvalidAmount
	ErrInvalidDeadline   = model.ErrInvalidDeadline
	ErrInsufficientFunds = model.ErrInsufficientFunds
	ErrInsufficientStake = model.ErrInsufficientStake
	ErrSelfDeal          = model.ErrSelfDeal

	ErrDuplicateJob      = model.ErrDuplicateJob
	ErrWrongState        = model.ErrWrongState
	ErrAlreadyTerminal   = model.ErrAlreadyTerminal
	ErrDisputeExists     = model.ErrDisputeExists
	ErrWrongPhase        = model.ErrWrongPhase
	ErrAlreadyCommitted  = model.ErrAlreadyCommitted
	ErrAlreadyRevealed   = model.ErrAlreadyRevealed
	ErrNoCommitment      = model.ErrNoCommitment
	ErrVotingNotComplete = model.ErrVotingNotComplete
	ErrAlreadyResolved   = model.ErrAlreadyResolved
	ErrAlreadyRated      = model.ErrAlreadyRated

	ErrNotClient         = model.ErrNotClient
	ErrNotProvider       = model.ErrNotProvider
	ErrNotOracle         = model.ErrNotOracle
	ErrNotParty          = model.ErrNotParty
	ErrNotArbiter        = model.ErrNotArbiter
	ErrInterestedArbiter = model.ErrInterestedArbiter

	ErrCommitmentMismatch = model.ErrCommitmentMismatch

	ErrDeadlinePassed = model.ErrDeadlinePassed
	ErrNotYetExpired  = model.ErrNotYetExpired
)
