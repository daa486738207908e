// Package model defines the core domain types for the trust-net marketplace
// protocol: job escrows, disputes, vote commitments, agent reputation, and
// ratings. All account types correspond directly to ledger account layouts
// (see internal/codec) and use fixed-width integers and fixed-length byte
// arrays so that encoding is deterministic.
package model

import (
	"github.com/mr-tron/base58"
)

// Address is a 32-byte deterministic account address.
type Address [32]byte

// String renders the address in base58, the conventional text form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is the all-zero placeholder.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

// JobID is the caller-chosen fixed-length job identifier.
// It must be unique per client; uniqueness is enforced by the derived
// job account address.
type JobID [32]byte

// JobStatus is the lifecycle state of a job escrow.
type JobStatus uint8

const (
	JobCreated JobStatus = iota
	JobActive
	JobSubmitted
	JobCompleted
	JobDisputed
	JobResolved
	JobCancelled
	JobExpired
)

// Terminal reports whether no further transition is defined for the status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobResolved, JobCancelled, JobExpired:
		return true
	}
	return false
}

func (s JobStatus) String() string {
	switch s {
	case JobCreated:
		return "created"
	case JobActive:
		return "active"
	case JobSubmitted:
		return "submitted"
	case JobCompleted:
		return "completed"
	case JobDisputed:
		return "disputed"
	case JobResolved:
		return "resolved"
	case JobCancelled:
		return "cancelled"
	case JobExpired:
		return "expired"
	}
	return "unknown"
}

// VerifyType selects how a submitted job is verified.
type VerifyType uint8

const (
	VerifyClientApproval VerifyType = iota
	VerifyOracle
	VerifyDeadlineAuto
	VerifyPeerReview
	VerifyZk
)

// Valid reports whether the verification type is a known enum value.
func (v VerifyType) Valid() bool {
	return v <= VerifyZk
}

func (v VerifyType) String() string {
	switch v {
	case VerifyClientApproval:
		return "client_approval"
	case VerifyOracle:
		return "oracle_verify"
	case VerifyDeadlineAuto:
		return "deadline_auto"
	case VerifyPeerReview:
		return "peer_review"
	case VerifyZk:
		return "zk_verify"
	}
	return "unknown"
}

// DisputeStatus is the lifecycle state of a dispute.
type DisputeStatus uint8

const (
	DisputeCommitting DisputeStatus = iota
	DisputeRevealing
	DisputeResolved
)

func (s DisputeStatus) String() string {
	switch s {
	case DisputeCommitting:
		return "committing"
	case DisputeRevealing:
		return "revealing"
	case DisputeResolved:
		return "resolved"
	}
	return "unknown"
}

// JobEscrow is the per-job escrow account. The escrowed value lives in a
// vault account derived from the job address, never in this account.
//
// VerificationData layout depends on VerificationType: for oracle-verified
// jobs bytes [0:32] hold the oracle address; bytes [32:64] hold the latest
// submission or oracle-notes hash for every type.
type JobEscrow struct {
	JobID            JobID
	Client           Address
	Provider         Address
	Amount           uint64
	ProviderStake    uint64
	Deadline         int64
	Status           JobStatus
	VerificationType VerifyType
	VerificationData [64]byte
	CreatedAt        int64
	SubmittedAt      *int64
	CompletedAt      *int64
	TermsHash        Hash
}

// Oracle returns the designated oracle address for oracle-verified jobs.
func (j *JobEscrow) Oracle() Address {
	var a Address
	copy(a[:], j.VerificationData[:32])
	return a
}

// SetAttestation records a submission or oracle-notes hash in the
// verification data without disturbing the oracle address.
func (j *JobEscrow) SetAttestation(h Hash) {
	copy(j.VerificationData[32:], h[:])
}

// IsParty reports whether addr is the job's client or provider.
func (j *JobEscrow) IsParty(addr Address) bool {
	return addr == j.Client || addr == j.Provider
}

// Counterparty returns the other party of the job, or the zero address if
// addr is not a party.
func (j *JobEscrow) Counterparty(addr Address) Address {
	switch addr {
	case j.Client:
		return j.Provider
	case j.Provider:
		return j.Client
	}
	return Address{}
}

// AgentReputation is the per-agent aggregate account. Counters are
// monotonically non-decreasing; AvgRating is a fixed-point value scaled
// by 100 in [0, 500].
type AgentReputation struct {
	Agent              Address
	TotalJobsCompleted uint64
	TotalJobsFailed    uint64
	TotalDisputesWon   uint64
	TotalDisputesLost  uint64
	TotalVolume        uint64
	AvgRating          uint16
	RatingCount        uint64
	Specializations    []byte
	CreatedAt          int64
	LastActive         int64
	StakeAmount        uint64
}

// Arbiter is the per-authority arbiter registration account.
// AccuracyScore is the running majority-agreement rate scaled by 10
// (0..1000), seeded at 500 for new arbiters.
type Arbiter struct {
	Authority       Address
	Stake           uint64
	CasesJudged     uint64
	AccuracyScore   uint16
	Specializations []byte
	Active          bool
	CreatedAt       int64
	LastCase        int64
}

// MaxDisputeArbiters bounds the arbiter panel of a single dispute.
const MaxDisputeArbiters = 16

// Dispute contests a single job; at most one dispute exists per job,
// enforced by the derived dispute address.
type Dispute struct {
	Job                     Address
	Client                  Address
	Provider                Address
	Raiser                  Address
	ReasonHash              Hash
	EvidenceHash            Hash
	Status                  DisputeStatus
	CommitDeadline          int64
	RevealDeadline          int64
	Arbiters                []Address
	ResolvedInFavorOfClient *bool
}

// HasArbiter reports whether the arbiter already joined the panel.
func (d *Dispute) HasArbiter(arbiter Address) bool {
	for _, a := range d.Arbiters {
		if a == arbiter {
			return true
		}
	}
	return false
}

// VoteCommitment is a single arbiter's commit-reveal record for a dispute.
// Created on commit, mutated exactly once on reveal.
type VoteCommitment struct {
	Dispute    Address
	Arbiter    Address
	CommitHash Hash
	Revealed   bool
	Vote       *bool
}

// Rating is a write-once rating record keyed by (job, rater); the derived
// rating address enforces at most one rating per pair.
type Rating struct {
	JobID       JobID
	Rater       Address
	Ratee       Address
	Score       uint8
	Tags        []byte
	CommentHash Hash
	Timestamp   int64
}
