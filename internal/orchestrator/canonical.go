package orchestrator

import (
	"encoding/binary"

	"github.com/cinderfile/cinder/internal/domain"
)

// canonicalize deterministically concatenates fields for HMAC signing, each
// prefixed by its length as a 4-byte big-endian unsigned integer, per
// spec.md §6: "Deterministic concatenation of all request fields except
// hmac itself, in a fixed order (sessionId, accessKey/payload, secrets,
// timestamp)".
func canonicalize(fields ...[]byte) []byte {
	total := 0
	for _, f := range fields {
		total += 4 + len(f)
	}
	out := make([]byte, 0, total)
	var lenBuf [4]byte
	for _, f := range fields {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		out = append(out, lenBuf[:]...)
		out = append(out, f...)
	}
	return out
}

func timestampBytes(t int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t))
	return buf[:]
}

// fileSpecsBytes serializes an upload's requested expiry/attempt budget so
// it is covered by the canonical payload: otherwise a tampered expiry or
// max-attempts value would pass HMAC verification unnoticed (spec.md §6's
// "all request fields except hmac").
func fileSpecsBytes(f domain.FileSpecs) []byte {
	var buf [6]byte
	binary.BigEndian.PutUint32(buf[0:4], f.ExpirySeconds)
	binary.BigEndian.PutUint16(buf[4:6], f.MaxAttempts)
	return buf[:]
}
