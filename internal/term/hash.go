package term

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTerm  = "rheo/term/v1"
	DomainMatch = "rheo/match/v1"
	DomainTrace = "rheo/trace/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TermHash computes the content-addressed hash of a process term.
// Stable across runs: the same term always produces the same hash.
func TermHash(p Proc) (string, error) {
	canonical, err := MarshalProc(p)
	if err != nil {
		return "", fmt.Errorf("TermHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTerm, canonical), nil
}

// MatchID computes the content-addressed id of one channel match:
// the channel, the payload carried, the receiving instance, and the
// logical-clock position. Replaying the same run reproduces the same
// sequence of match ids.
func MatchID(channel string, payload Value, receiverID, seq int64) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"channel":  channel,
		"payload":  payload,
		"receiver": receiverID,
		"seq":      seq,
	})
	if err != nil {
		return "", fmt.Errorf("MatchID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMatch, canonical), nil
}

// TraceHash computes the hash of a canonically serialized trace.
// `rheo replay` compares trace hashes to verify determinism.
func TraceHash(canonical []byte) string {
	return hashWithDomain(DomainTrace, canonical)
}

// MustTermHash is like TermHash but panics on error.
// Use only in tests or when the term is known to be well-formed.
func MustTermHash(p Proc) string {
	h, err := TermHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
