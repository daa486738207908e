package reputation

import (
	"github.com/whoknowsmann/trust-net/internal/model"
)

// NewAgent returns a fresh reputation record for an agent. Settlement paths
// create one lazily (with zero stake) for agents that never registered, so
// an unregistered counterparty cannot block fund release.
func NewAgent(agent model.Address, stake uint64, specializations []byte, now int64) *model.AgentReputation {
	return &model.AgentReputation{
		Agent:           agent,
		Specializations: specializations,
		CreatedAt:       now,
		LastActive:      now,
		StakeAmount:     stake,
	}
}

// CreditCompleted records a successfully settled job for the provider.
func CreditCompleted(rep *model.AgentReputation, amount uint64, now int64) {
	rep.TotalJobsCompleted++
	rep.TotalVolume += amount
	rep.LastActive = now
}

// CreditFailed records a failed job (rejection or expiry without delivery).
func CreditFailed(rep *model.AgentReputation, now int64) {
	rep.TotalJobsFailed++
	rep.LastActive = now
}

// CreditDisputeWon records a dispute decided in the agent's favor.
func CreditDisputeWon(rep *model.AgentReputation, now int64) {
	rep.TotalDisputesWon++
	rep.LastActive = now
}

// CreditDisputeLost records a dispute decided against the agent.
func CreditDisputeLost(rep *model.AgentReputation, now int64) {
	rep.TotalDisputesLost++
	rep.LastActive = now
}

// ApplyRating folds a new score into the running mean.
func ApplyRating(rep *model.AgentReputation, score uint8, now int64) {
	rep.AvgRating = RatingAverage(rep.AvgRating, rep.RatingCount, score)
	rep.RatingCount++
	rep.LastActive = now
}

// JudgeCase folds one resolved case into an arbiter's record. The accuracy
// score is the running majority-agreement rate scaled to 0..1000; new
// arbiters start at 500.
func JudgeCase(arb *model.Arbiter, agreedWithMajority bool, now int64) {
	var hit uint64
	if agreedWithMajority {
		hit = 1000
	}
	arb.AccuracyScore = uint16((uint64(arb.AccuracyScore)*arb.CasesJudged + hit) / (arb.CasesJudged + 1))
	arb.CasesJudged++
	arb.LastCase = now
}
