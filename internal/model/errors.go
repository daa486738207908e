package model

import (
	"errors"
	"fmt"
)

// Error categories. Every operation failure wraps exactly one of these, so
// callers can route on errors.Is without matching message text:
//
//   - ErrValidation: bad arguments; never retry.
//   - ErrStateConflict: wrong phase or duplicate; re-read state before retrying.
//   - ErrUnauthorized: wrong signer or role; fatal to the call.
//   - ErrIntegrity: hash or commitment mismatch; the value is discarded.
//   - ErrTiming: too early or too late; wait or take the permissionless path.
//   - ErrNotFound: the referenced account does not exist.
var (
	ErrValidation    = errors.New("trustnet: validation error")
	ErrStateConflict = errors.New("trustnet: state conflict")
	ErrUnauthorized  = errors.New("trustnet: unauthorized")
	ErrIntegrity     = errors.New("trustnet: integrity error")
	ErrTiming        = errors.New("trustnet: timing error")
	ErrNotFound      = errors.New("trustnet: not found")
)

// Specific failures, each wrapping its category.
var (
	ErrInvalidAmount      = fmt.Errorf("invalid amount: %w", ErrValidation)
	ErrInvalidDeadline    = fmt.Errorf("invalid deadline: %w", ErrValidation)
	ErrInvalidVerifyType  = fmt.Errorf("invalid verification type: %w", ErrValidation)
	ErrRatingOutOfRange   = fmt.Errorf("rating out of range: %w", ErrValidation)
	ErrBytesTooLarge      = fmt.Errorf("too many bytes: %w", ErrValidation)
	ErrInsufficientFunds  = fmt.Errorf("insufficient funds: %w", ErrValidation)
	ErrInsufficientStake  = fmt.Errorf("minimum stake not met: %w", ErrValidation)
	ErrMalformedSeed      = fmt.Errorf("malformed seed: %w", ErrValidation)
	ErrSelfDeal           = fmt.Errorf("client and provider must differ: %w", ErrValidation)

	ErrDuplicateJob      = fmt.Errorf("job id already used: %w", ErrStateConflict)
	ErrWrongState        = fmt.Errorf("wrong job state: %w", ErrStateConflict)
	ErrAlreadyTerminal   = fmt.Errorf("job already terminal: %w", ErrStateConflict)
	ErrDisputeExists     = fmt.Errorf("dispute already exists: %w", ErrStateConflict)
	ErrWrongPhase        = fmt.Errorf("wrong dispute phase: %w", ErrStateConflict)
	ErrAlreadyCommitted  = fmt.Errorf("vote already committed: %w", ErrStateConflict)
	ErrAlreadyRevealed   = fmt.Errorf("vote already revealed: %w", ErrStateConflict)
	ErrNoCommitment      = fmt.Errorf("no vote commitment: %w", ErrStateConflict)
	ErrVotingNotComplete = fmt.Errorf("voting not complete: %w", ErrStateConflict)
	ErrAlreadyResolved   = fmt.Errorf("dispute already resolved: %w", ErrStateConflict)
	ErrAlreadyRated      = fmt.Errorf("already rated: %w", ErrStateConflict)
	ErrPanelFull         = fmt.Errorf("arbiter panel full: %w", ErrStateConflict)

	ErrNotClient         = fmt.Errorf("signer is not the client: %w", ErrUnauthorized)
	ErrNotProvider       = fmt.Errorf("signer is not the provider: %w", ErrUnauthorized)
	ErrNotOracle         = fmt.Errorf("signer is not the oracle: %w", ErrUnauthorized)
	ErrNotParty          = fmt.Errorf("signer is not a party to the job: %w", ErrUnauthorized)
	ErrNotArbiter        = fmt.Errorf("signer is not a registered arbiter: %w", ErrUnauthorized)
	ErrInterestedArbiter = fmt.Errorf("arbiter is a party to the dispute: %w", ErrUnauthorized)

	ErrCommitmentMismatch = fmt.Errorf("commitment mismatch: %w", ErrIntegrity)

	ErrDeadlinePassed = fmt.Errorf("deadline passed: %w", ErrTiming)
	ErrNotYetExpired  = fmt.Errorf("deadline not reached: %w", ErrTiming)
)
