// Package codec serializes ledger account payloads with a fixed, versioned
// schema: a leading layout-version byte, fixed-width big-endian integers for
// counters and amounts, fixed-length byte arrays for hashes and ids, and
// one-byte length prefixes for the bounded variable fields. Encode and
// decode are exactly symmetric.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/whoknowsmann/trust-net/internal/model"
)

// layoutV1 is the only layout in circulation. Decoders reject anything else
// so a future layout bump cannot be misread silently.
const layoutV1 = 1

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

// optI64 encodes a nullable timestamp as flag byte + value.
func (w *writer) optI64(v *int64) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.i64(*v)
}

// optBool encodes a nullable boolean as flag byte + value.
func (w *writer) optBool(v *bool) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.bool(*v)
}

// varBytes encodes a bounded variable field with a one-byte length prefix.
func (w *writer) varBytes(b []byte) {
	w.u8(uint8(len(b)))
	w.raw(b)
}

type reader struct {
	buf []byte
	off int
	err error
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("codec: "+format+": %w", append(args, model.ErrIntegrity)...)
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = corrupt("truncated account data at offset %d", r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) bool() bool {
	switch r.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		if r.err == nil {
			r.err = corrupt("invalid boolean encoding")
		}
		return false
	}
}

func (r *reader) optI64() *int64 {
	if r.u8() == 0 {
		return nil
	}
	v := r.i64()
	if r.err != nil {
		return nil
	}
	return &v
}

func (r *reader) optBool() *bool {
	if r.u8() == 0 {
		return nil
	}
	v := r.bool()
	if r.err != nil {
		return nil
	}
	return &v
}

func (r *reader) varBytes() []byte {
	n := int(r.u8())
	if n == 0 {
		return nil
	}
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) addr() model.Address {
	var a model.Address
	copy(a[:], r.take(32))
	return a
}

func (r *reader) hash() model.Hash {
	var h model.Hash
	copy(h[:], r.take(32))
	return h
}

func (r *reader) checkVersion(kind string) {
	if v := r.u8(); r.err == nil && v != layoutV1 {
		r.err = corrupt("%s layout version %d, want %d", kind, v, layoutV1)
	}
}

func (r *reader) finish(kind string) error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return corrupt("%s has %d trailing bytes", kind, len(r.buf)-r.off)
	}
	return nil
}

// EncodeJob serializes a job escrow account payload.
func EncodeJob(j *model.JobEscrow) []byte {
	w := writer{buf: make([]byte, 0, 256)}
	w.u8(layoutV1)
	w.raw(j.JobID[:])
	w.raw(j.Client[:])
	w.raw(j.Provider[:])
	w.u64(j.Amount)
	w.u64(j.ProviderStake)
	w.i64(j.Deadline)
	w.u8(uint8(j.Status))
	w.u8(uint8(j.VerificationType))
	w.raw(j.VerificationData[:])
	w.i64(j.CreatedAt)
	w.optI64(j.SubmittedAt)
	w.optI64(j.CompletedAt)
	w.raw(j.TermsHash[:])
	return w.buf
}

// DecodeJob deserializes a job escrow account payload.
func DecodeJob(data []byte) (*model.JobEscrow, error) {
	r := reader{buf: data}
	r.checkVersion("job")
	var j model.JobEscrow
	copy(j.JobID[:], r.take(32))
	j.Client = r.addr()
	j.Provider = r.addr()
	j.Amount = r.u64()
	j.ProviderStake = r.u64()
	j.Deadline = r.i64()
	j.Status = model.JobStatus(r.u8())
	j.VerificationType = model.VerifyType(r.u8())
	copy(j.VerificationData[:], r.take(64))
	j.CreatedAt = r.i64()
	j.SubmittedAt = r.optI64()
	j.CompletedAt = r.optI64()
	j.TermsHash = r.hash()
	if err := r.finish("job"); err != nil {
		return nil, err
	}
	return &j, nil
}

// EncodeReputation serializes an agent reputation account payload.
func EncodeReputation(rep *model.AgentReputation) []byte {
	w := writer{buf: make([]byte, 0, 192)}
	w.u8(layoutV1)
	w.raw(rep.Agent[:])
	w.u64(rep.TotalJobsCompleted)
	w.u64(rep.TotalJobsFailed)
	w.u64(rep.TotalDisputesWon)
	w.u64(rep.TotalDisputesLost)
	w.u64(rep.TotalVolume)
	w.u16(rep.AvgRating)
	w.u64(rep.RatingCount)
	w.varBytes(rep.Specializations)
	w.i64(rep.CreatedAt)
	w.i64(rep.LastActive)
	w.u64(rep.StakeAmount)
	return w.buf
}

// DecodeReputation deserializes an agent reputation account payload.
func DecodeReputation(data []byte) (*model.AgentReputation, error) {
	r := reader{buf: data}
	r.checkVersion("reputation")
	var rep model.AgentReputation
	rep.Agent = r.addr()
	rep.TotalJobsCompleted = r.u64()
	rep.TotalJobsFailed = r.u64()
	rep.TotalDisputesWon = r.u64()
	rep.TotalDisputesLost = r.u64()
	rep.TotalVolume = r.u64()
	rep.AvgRating = r.u16()
	rep.RatingCount = r.u64()
	rep.Specializations = r.varBytes()
	rep.CreatedAt = r.i64()
	rep.LastActive = r.i64()
	rep.StakeAmount = r.u64()
	if err := r.finish("reputation"); err != nil {
		return nil, err
	}
	return &rep, nil
}

// EncodeArbiter serializes an arbiter registration account payload.
func EncodeArbiter(a *model.Arbiter) []byte {
	w := writer{buf: make([]byte, 0, 160)}
	w.u8(layoutV1)
	w.raw(a.Authority[:])
	w.u64(a.Stake)
	w.u64(a.CasesJudged)
	w.u16(a.AccuracyScore)
	w.varBytes(a.Specializations)
	w.bool(a.Active)
	w.i64(a.CreatedAt)
	w.i64(a.LastCase)
	return w.buf
}

// DecodeArbiter deserializes an arbiter registration account payload.
func DecodeArbiter(data []byte) (*model.Arbiter, error) {
	r := reader{buf: data}
	r.checkVersion("arbiter")
	var a model.Arbiter
	a.Authority = r.addr()
	a.Stake = r.u64()
	a.CasesJudged = r.u64()
	a.AccuracyScore = r.u16()
	a.Specializations = r.varBytes()
	a.Active = r.bool()
	a.CreatedAt = r.i64()
	a.LastCase = r.i64()
	if err := r.finish("arbiter"); err != nil {
		return nil, err
	}
	return &a, nil
}

// EncodeDispute serializes a dispute account payload.
func EncodeDispute(d *model.Dispute) []byte {
	w := writer{buf: make([]byte, 0, 256+32*len(d.Arbiters))}
	w.u8(layoutV1)
	w.raw(d.Job[:])
	w.raw(d.Client[:])
	w.raw(d.Provider[:])
	w.raw(d.Raiser[:])
	w.raw(d.ReasonHash[:])
	w.raw(d.EvidenceHash[:])
	w.u8(uint8(d.Status))
	w.i64(d.CommitDeadline)
	w.i64(d.RevealDeadline)
	w.u8(uint8(len(d.Arbiters)))
	for _, a := range d.Arbiters {
		w.raw(a[:])
	}
	w.optBool(d.ResolvedInFavorOfClient)
	return w.buf
}

// DecodeDispute deserializes a dispute account payload.
func DecodeDispute(data []byte) (*model.Dispute, error) {
	r := reader{buf: data}
	r.checkVersion("dispute")
	var d model.Dispute
	d.Job = r.addr()
	d.Client = r.addr()
	d.Provider = r.addr()
	d.Raiser = r.addr()
	d.ReasonHash = r.hash()
	d.EvidenceHash = r.hash()
	d.Status = model.DisputeStatus(r.u8())
	d.CommitDeadline = r.i64()
	d.RevealDeadline = r.i64()
	n := int(r.u8())
	if n > model.MaxDisputeArbiters {
		return nil, corrupt("dispute panel of %d exceeds max %d", n, model.MaxDisputeArbiters)
	}
	d.Arbiters = make([]model.Address, 0, n)
	for i := 0; i < n; i++ {
		d.Arbiters = append(d.Arbiters, r.addr())
	}
	d.ResolvedInFavorOfClient = r.optBool()
	if err := r.finish("dispute"); err != nil {
		return nil, err
	}
	return &d, nil
}

// EncodeVote serializes a vote commitment account payload.
func EncodeVote(v *model.VoteCommitment) []byte {
	w := writer{buf: make([]byte, 0, 104)}
	w.u8(layoutV1)
	w.raw(v.Dispute[:])
	w.raw(v.Arbiter[:])
	w.raw(v.CommitHash[:])
	w.bool(v.Revealed)
	w.optBool(v.Vote)
	return w.buf
}

// DecodeVote deserializes a vote commitment account payload.
func DecodeVote(data []byte) (*model.VoteCommitment, error) {
	r := reader{buf: data}
	r.checkVersion("vote")
	var v model.VoteCommitment
	v.Dispute = r.addr()
	v.Arbiter = r.addr()
	v.CommitHash = r.hash()
	v.Revealed = r.bool()
	v.Vote = r.optBool()
	if err := r.finish("vote"); err != nil {
		return nil, err
	}
	return &v, nil
}

// EncodeRating serializes a rating account payload.
func EncodeRating(rt *model.Rating) []byte {
	w := writer{buf: make([]byte, 0, 192)}
	w.u8(layoutV1)
	w.raw(rt.JobID[:])
	w.raw(rt.Rater[:])
	w.raw(rt.Ratee[:])
	w.u8(rt.Score)
	w.varBytes(rt.Tags)
	w.raw(rt.CommentHash[:])
	w.i64(rt.Timestamp)
	return w.buf
}

// DecodeRating deserializes a rating account payload.
func DecodeRating(data []byte) (*model.Rating, error) {
	r := reader{buf: data}
	r.checkVersion("rating")
	var rt model.Rating
	copy(rt.JobID[:], r.take(32))
	rt.Rater = r.addr()
	rt.Ratee = r.addr()
	rt.Score = r.u8()
	rt.Tags = r.varBytes()
	rt.CommentHash = r.hash()
	rt.Timestamp = r.i64()
	if err := r.finish("rating"); err != nil {
		return nil, err
	}
	return &rt, nil
}
