// Package reputation maintains per-agent aggregate counters and derives the
// [0,100] trust score from them. Scoring is a pure function of a reputation
// snapshot and the current time; any two implementations given the same
// inputs must produce bit-identical results.
package reputation

import (
	"time"

	"github.com/whoknowsmann/trust-net/internal/model"
)

const secondsPerDay = 86_400

// recencyMultiplier returns the decay multiplier ×100 for the given number
// of days since the agent was last active.
func recencyMultiplier(daysInactive int64) int64 {
	switch {
	case daysInactive <= 30:
		return 100
	case daysInactive <= 90:
		return 95
	case daysInactive <= 180:
		return 90
	case daysInactive <= 360:
		return 80
	default:
		return 70
	}
}

// volumeBonus rewards activity thresholds, front-loaded.
func volumeBonus(completed uint64) int64 {
	switch {
	case completed >= 50:
		return 15
	case completed >= 20:
		return 10
	case completed >= 5:
		return 5
	default:
		return 0
	}
}

// stakeBonus rewards skin in the game, in whole large units.
func stakeBonus(stake uint64) int64 {
	whole := stake / model.UnitsPerWholeToken
	switch {
	case whole >= 50:
		return 10
	case whole >= 10:
		return 5
	case whole >= 1:
		return 2
	default:
		return 0
	}
}

// ComputeScore derives the trust score in [0,100] from a reputation
// snapshot at the given time:
//
//  1. base = floor(completed/(completed+failed) × 100), 0 with no history;
//  2. +2 per dispute won, −5 per dispute lost (disputes are a stronger,
//     asymmetric signal);
//  3. activity bonus +15/+10/+5 at ≥50/≥20/≥5 completed jobs;
//  4. stake bonus +10/+5/+2 at ≥50/≥10/≥1 whole units staked;
//  5. recency decay ×1.0/0.95/0.9/0.8/0.7 at ≤30/≤90/≤180/≤360/>360 days
//     inactive, floored;
//  6. clamp to [0,100].
func ComputeScore(rep *model.AgentReputation, now time.Time) int {
	total := rep.TotalJobsCompleted + rep.TotalJobsFailed
	var base int64
	if total > 0 {
		base = int64(rep.TotalJobsCompleted * 100 / total)
	}
	base += int64(rep.TotalDisputesWon)*2 - int64(rep.TotalDisputesLost)*5
	base += volumeBonus(rep.TotalJobsCompleted)
	base += stakeBonus(rep.StakeAmount)

	daysInactive := (now.Unix() - rep.LastActive) / secondsPerDay
	base = base * recencyMultiplier(daysInactive) / 100

	if base < 0 {
		return 0
	}
	if base > 100 {
		return 100
	}
	return int(base)
}

// RatingAverage folds a new 1-5 score into the ×100 fixed-point running
// mean: (avg×count + score×100) / (count+1), integer division.
func RatingAverage(currentAvg uint16, currentCount uint64, score uint8) uint16 {
	total := uint64(currentAvg)*currentCount + uint64(score)*100
	return uint16(total / (currentCount + 1))
}
