// Package commitment derives the value anchored on the ledger for a biometric
// enrollment. The derivation is a pure function: equal inputs produce equal
// 32-byte values across processes and machines, which is what lets a verifier
// recompute the commitment at verification time and compare it to the anchor
// written at enrollment time.
package commitment

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"bioanchor/internal/domain"
)

// Size is the fixed width of a derived commitment in bytes.
const Size = sha256.Size

// Value is a derived biometric commitment.
type Value [Size]byte

// Derive computes the commitment for (did, modality, features).
//
// The canonical encoding length-prefixes every variable-width field so no two
// distinct inputs share a byte string:
//
//	u32(len(did)) || did || u32(len(modality)) || modality ||
//	u32(rows) || for each row: u32(cols) || big-endian IEEE-754 bits of each component
//
// Float components are encoded by bit pattern, not decimal formatting, so the
// derivation is exact and stable. Descriptor-set row order is preserved: the
// commitment binds the template as stored, and verification re-derives from
// the same stored layout.
func Derive(did string, modality domain.Modality, features domain.FeatureVector) Value {
	h := sha256.New()

	var scratch [8]byte
	writeBytes := func(b []byte) {
		binary.BigEndian.PutUint32(scratch[:4], uint32(len(b)))
		h.Write(scratch[:4])
		h.Write(b)
	}

	writeBytes([]byte(did))
	writeBytes([]byte(modality))

	binary.BigEndian.PutUint32(scratch[:4], uint32(len(features)))
	h.Write(scratch[:4])
	for _, row := range features {
		binary.BigEndian.PutUint32(scratch[:4], uint32(len(row)))
		h.Write(scratch[:4])
		for _, c := range row {
			binary.BigEndian.PutUint64(scratch[:], math.Float64bits(c))
			h.Write(scratch[:])
		}
	}

	var v Value
	h.Sum(v[:0])
	return v
}
