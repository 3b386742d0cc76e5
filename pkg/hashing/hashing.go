// Package hashing centralizes the digests used by content-addressed document
// ingestion and the tamper-evident ledger.
//
// Two independent algorithms are deliberate: the SHA-256 chain hash detects
// rewritten history (each entry's hash input includes its predecessor's hash),
// while the BLAKE2b checksum over the full payload detects in-place corruption
// of a single entry regardless of its chain position.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// fieldSeparator joins entry hash inputs. It cannot appear in UUIDs, RFC3339
// timestamps or the action/entity-type vocabularies, so joined input is
// unambiguous.
const fieldSeparator = "\x1f"

// Content returns the SHA-256 hex digest of raw content. Identical bytes
// always yield the identical digest; callers must pass raw bytes, not an
// encoding wrapper, so string and binary input normalize to the same hash.
func Content(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Entry computes the chain hash for a ledger entry. The timestamp is
// normalized to UTC RFC3339Nano so the digest is reproducible from the stored
// column value. prevHash is empty for the first entry of a tenant's chain.
func Entry(action, entityType, entityID string, ts time.Time, prevHash string) string {
	input := strings.Join([]string{
		action,
		entityType,
		entityID,
		ts.UTC().Format(time.RFC3339Nano),
		prevHash,
	}, fieldSeparator)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Checksum returns the BLAKE2b-256 hex digest of a serialized entry payload.
// Used for per-entry corruption detection, independent of the chain hash.
func Checksum(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
