package model

import (
	"math/bits"
	"time"
)

// Basis-point arithmetic denominator.
const BpsDenominator = 10_000

// UnitsPerWholeToken converts base units to the large unit used by
// stake-tier scoring.
const UnitsPerWholeToken = 1_000_000_000

// Params are the protocol parameters shared by the escrow and arbitration
// state machines. All value arithmetic is integer in base currency units;
// fees round down.
type Params struct {
	// ProtocolFeeBps is skimmed from the job amount on every successful
	// payout and routed to the treasury.
	ProtocolFeeBps uint64
	// DisputeFeeBps is moved from the job vault into the dispute vault when
	// a dispute is raised; it funds arbiter rewards.
	DisputeFeeBps uint64
	// MinProviderStake is the minimum collateral a provider posts on accept.
	MinProviderStake uint64
	// MinAgentStake is the minimum stake locked on agent registration.
	MinAgentStake uint64
	// MinArbiterStake is the minimum stake for arbiter registration and for
	// committing votes.
	MinArbiterStake uint64
	// WrongVoteSlashBps / NoRevealSlashBps are the arbiter stake fractions
	// slashed for voting against the majority / never revealing.
	WrongVoteSlashBps uint64
	NoRevealSlashBps  uint64
	// GracePeriod extends the deadline before a submitted DeadlineAuto job
	// may be auto-approved by expireJob.
	GracePeriod time.Duration
	// CommitWindow / RevealWindow bound the dispute voting phases.
	CommitWindow time.Duration
	RevealWindow time.Duration
	// MaxTagsLen / MaxSpecializationsLen bound the variable byte fields.
	MaxTagsLen            int
	MaxSpecializationsLen int
}

// DefaultParams returns the protocol defaults.
func DefaultParams() Params {
	return Params{
		ProtocolFeeBps:        10,  // 0.1%
		DisputeFeeBps:         100, // 1%
		MinProviderStake:      1,
		MinAgentStake:         100_000_000,
		MinArbiterStake:       1_000_000_000,
		WrongVoteSlashBps:     100,
		NoRevealSlashBps:      200,
		GracePeriod:           time.Hour,
		CommitWindow:          time.Hour,
		RevealWindow:          time.Hour,
		MaxTagsLen:            64,
		MaxSpecializationsLen: 64,
	}
}

// Fee returns floor(amount × bps / 10_000) with full 128-bit intermediate
// precision, so rounding never exceeds one base unit.
func Fee(amount, bps uint64) uint64 {
	hi, lo := bits.Mul64(amount, bps)
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return q
}
