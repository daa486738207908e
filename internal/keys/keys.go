// Package keys derives deterministic account addresses from typed seed
// tuples. Derivation is HKDF-SHA256 over the length-prefixed seed bytes
// with a per-kind domain-separation info string, so addresses for different
// kinds never collide even on equal seeds.
package keys

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/whoknowsmann/trust-net/internal/model"
)

// Kind names the account families of the protocol.
type Kind string

const (
	KindJob             Kind = "job"
	KindJobVault        Kind = "job_vault"
	KindTreasury        Kind = "treasury"
	KindReputation      Kind = "reputation"
	KindReputationVault Kind = "reputation_vault"
	KindArbiter         Kind = "arbiter"
	KindArbiterVault    Kind = "arbiter_vault"
	KindDispute         Kind = "dispute"
	KindDisputeVault    Kind = "dispute_vault"
	KindRating          Kind = "rating"
	KindVoteCommitment  Kind = "vote"
)

const maxSeedLen = 64

// Derive computes the address for (kind, seeds). Pure and total: the same
// inputs always yield the same address. The only error condition is a
// malformed seed length.
func Derive(kind Kind, seeds ...[]byte) (model.Address, error) {
	secret := make([]byte, 0, 8+len(seeds)*(4+maxSeedLen))
	var lenBuf [4]byte
	for _, seed := range seeds {
		if len(seed) == 0 || len(seed) > maxSeedLen {
			return model.Address{}, fmt.Errorf("keys: seed of %d bytes for kind %q: %w",
				len(seed), kind, model.ErrMalformedSeed)
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(seed)))
		secret = append(secret, lenBuf[:]...)
		secret = append(secret, seed...)
	}
	r := hkdf.New(sha256.New, secret, nil, []byte("trustnet/v1/"+kind))
	var addr model.Address
	if _, err := io.ReadFull(r, addr[:]); err != nil {
		return model.Address{}, fmt.Errorf("keys: expand %q: %w", kind, err)
	}
	return addr, nil
}

// mustDerive is used by the typed wrappers, whose seed lengths are fixed by
// construction and can never be malformed.
func mustDerive(kind Kind, seeds ...[]byte) model.Address {
	addr, err := Derive(kind, seeds...)
	if err != nil {
		panic(err)
	}
	return addr
}

// Job returns the job account address for a job id.
func Job(id model.JobID) model.Address {
	return mustDerive(KindJob, id[:])
}

// JobVault returns the vault holding a job's escrowed value.
func JobVault(job model.Address) model.Address {
	return mustDerive(KindJobVault, job[:])
}

// Treasury returns the protocol fee sink.
func Treasury() model.Address {
	return mustDerive(KindTreasury, []byte("treasury"))
}

// Reputation returns the reputation account for an agent.
func Reputation(agent model.Address) model.Address {
	return mustDerive(KindReputation, agent[:])
}

// ReputationVault returns the vault holding an agent's reputation stake.
func ReputationVault(agent model.Address) model.Address {
	return mustDerive(KindReputationVault, agent[:])
}

// Arbiter returns the arbiter registration account for an authority.
func Arbiter(authority model.Address) model.Address {
	return mustDerive(KindArbiter, authority[:])
}

// ArbiterVault returns the vault holding an arbiter's stake.
func ArbiterVault(authority model.Address) model.Address {
	return mustDerive(KindArbiterVault, authority[:])
}

// Dispute returns the dispute account for a job; one dispute per job.
func Dispute(job model.Address) model.Address {
	return mustDerive(KindDispute, job[:])
}

// DisputeVault returns the vault funding arbiter rewards for a dispute.
func DisputeVault(dispute model.Address) model.Address {
	return mustDerive(KindDisputeVault, dispute[:])
}

// Rating returns the write-once rating account for (job id, rater).
func Rating(id model.JobID, rater model.Address) model.Address {
	return mustDerive(KindRating, id[:], rater[:])
}

// VoteCommitment returns the commit-reveal account for (dispute, arbiter).
func VoteCommitment(dispute, arbiter model.Address) model.Address {
	return mustDerive(KindVoteCommitment, dispute[:], arbiter[:])
}
