package trustnet

import (
	"time"

	"github.com/whoknowsmann/trust-net/internal/model"
	"github.com/whoknowsmann/trust-net/internal/reputation"
)

// VerifyType selects how a job's completion is verified.
type VerifyType = model.VerifyType

// Verification types.
const (
	VerifyClientApproval = model.VerifyClientApproval
	VerifyOracle         = model.VerifyOracle
	VerifyDeadlineAuto   = model.VerifyDeadlineAuto
	VerifyPeerReview     = model.VerifyPeerReview
	VerifyZk             = model.VerifyZk
)

// JobView is the public representation of a job escrow account.
// A curated view of the internal record, safe to use from outside the module.
type JobView struct {
	Address          Address
	JobID            JobID
	Client           Address
	Provider         Address
	Amount           uint64
	ProviderStake    uint64
	Deadline         time.Time
	Status           string
	VerificationType string
	TermsHash        Hash
	CreatedAt        time.Time
	SubmittedAt      *time.Time
	CompletedAt      *time.Time
}

// ReputationView is the public representation of an agent's reputation,
// with the [0,100] trust score derived at read time.
type ReputationView struct {
	Agent              Address
	TotalJobsCompleted uint64
	TotalJobsFailed    uint64
	TotalDisputesWon   uint64
	TotalDisputesLost  uint64
	TotalVolume        uint64
	AvgRating          float64 // 0..5
	RatingCount        uint64
	StakeAmount        uint64
	LastActive         time.Time
	TrustScore         int
}

// ArbiterView is the public representation of a registered arbiter.
type ArbiterView struct {
	Authority       Address
	Stake           uint64
	CasesJudged     uint64
	AccuracyScore   uint16 // 0..1000
	Specializations []byte
	Active          bool
	CreatedAt       time.Time
	LastCase        *time.Time
}

// DisputeView is the public representation of a dispute account.
type DisputeView struct {
	Address                 Address
	Job                     Address
	Client                  Address
	Provider                Address
	Raiser                  Address
	Status                  string
	CommitDeadline          time.Time
	RevealDeadline          time.Time
	Arbiters                []Address
	ResolvedInFavorOfClient *bool
}

func toJobView(addr Address, j *model.JobEscrow) JobView {
	v := JobView{
		Address:          addr,
		JobID:            j.JobID,
		Client:           j.Client,
		Provider:         j.Provider,
		Amount:           j.Amount,
		ProviderStake:    j.ProviderStake,
		Deadline:         time.Unix(j.Deadline, 0).UTC(),
		Status:           j.Status.String(),
		VerificationType: j.VerificationType.String(),
		TermsHash:        j.TermsHash,
		CreatedAt:        time.Unix(j.CreatedAt, 0).UTC(),
	}
	if j.SubmittedAt != nil {
		ts := time.Unix(*j.SubmittedAt, 0).UTC()
		v.SubmittedAt = &ts
	}
	if j.CompletedAt != nil {
		ts := time.Unix(*j.CompletedAt, 0).UTC()
		v.CompletedAt = &ts
	}
	return v
}

func toReputationView(rep *model.AgentReputation, now time.Time) ReputationView {
	return ReputationView{
		Agent:              rep.Agent,
		TotalJobsCompleted: rep.TotalJobsCompleted,
		TotalJobsFailed:    rep.TotalJobsFailed,
		TotalDisputesWon:   rep.TotalDisputesWon,
		TotalDisputesLost:  rep.TotalDisputesLost,
		TotalVolume:        rep.TotalVolume,
		AvgRating:          float64(rep.AvgRating) / 100,
		RatingCount:        rep.RatingCount,
		StakeAmount:        rep.StakeAmount,
		LastActive:         time.Unix(rep.LastActive, 0).UTC(),
		TrustScore:         reputation.ComputeScore(rep, now),
	}
}

func toArbiterView(arb *model.Arbiter) ArbiterView {
	v := ArbiterView{
		Authority:       arb.Authority,
		Stake:           arb.Stake,
		CasesJudged:     arb.CasesJudged,
		AccuracyScore:   arb.AccuracyScore,
		Specializations: arb.Specializations,
		Active:          arb.Active,
		CreatedAt:       time.Unix(arb.CreatedAt, 0).UTC(),
	}
	if arb.LastCase != 0 {
		ts := time.Unix(arb.LastCase, 0).UTC()
		v.LastCase = &ts
	}
	return v
}

func toDisputeView(addr Address, d *model.Dispute) DisputeView {
	return DisputeView{
		Address:                 addr,
		Job:                     d.Job,
		Client:                  d.Client,
		Provider:                d.Provider,
		Raiser:                  d.Raiser,
		Status:                  d.Status.String(),
		CommitDeadline:          time.Unix(d.CommitDeadline, 0).UTC(),
		RevealDeadline:          time.Unix(d.RevealDeadline, 0).UTC(),
		Arbiters:                d.Arbiters,
		ResolvedInFavorOfClient: d.ResolvedInFavorOfClient,
	}
}
