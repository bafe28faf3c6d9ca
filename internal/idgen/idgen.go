// Package idgen generates entity identifiers. Most ids are random UUIDv4s;
// listing creation additionally supports a deterministic id derived from an
// idempotency key, so that a client can compute the resulting id offline
// before the request even lands (spec §4.1, §9 "Deterministic idempotency
// keys"). The derivation is a direct adaptation of the teacher's
// content-hash id generator (internal/idgen/hash.go upstream), swapped from
// base36-slug ids to the exact byte recipe spec.md requires.
package idgen

import (
	"crypto/sha256"

	"github.com/google/uuid"

	"github.com/fieldshare/surplus/internal/types"
)

// New generates a random (v4) entity id.
func New() types.ID {
	return uuid.New()
}

// DeriveListingID computes the deterministic id used when a listing is
// created with an Idempotency-Key header. The recipe is fixed by spec §4.1
// and §9: SHA-256(owner_id || ":" || key), truncated to the first 16 bytes,
// with the RFC-4122 v4 variant and version bits forced so the result is a
// syntactically valid UUID. Implementations must preserve this exact byte
// input — clients rely on being able to reproduce it offline.
func DeriveListingID(ownerID types.ID, idempotencyKey string) types.ID {
	h := sha256.New()
	h.Write(ownerID[:])
	h.Write([]byte(":"))
	h.Write([]byte(idempotencyKey))
	sum := h.Sum(nil)

	var b [16]byte
	copy(b[:], sum[:16])

	// Force the variant (RFC 4122) and version (4, random) bits so the
	// derived bytes parse as a valid UUIDv4 shape, matching the teacher's
	// own practice of stamping generated ids with a fixed format marker.
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80

	id, err := uuid.FromBytes(b[:])
	if err != nil {
		// FromBytes only fails on wrong-length input; b is always 16 bytes.
		panic(err)
	}
	return id
}
