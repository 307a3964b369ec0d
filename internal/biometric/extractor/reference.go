package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"bioanchor/internal/domain"
)

// Feature geometry of the reference extractor. Dimensions mirror the models
// this boundary fronts: 128-d face embeddings and 32-d fingerprint
// descriptors.
const (
	faceDim            = 128
	fingerprintDim     = 32
	fingerprintRows    = 8
	minUsableSampleLen = 16
)

// Reference is a deterministic stand-in extractor for development and tests.
// It expands the sample bytes through SHA-256 into a stable feature vector:
// identical samples always produce bit-identical vectors, and near-identical
// samples produce unrelated ones. It has no biometric meaning; production
// deployments inject an adapter over the real face/fingerprint models.
type Reference struct{}

func NewReference() *Reference { return &Reference{} }

func (e *Reference) Extract(_ context.Context, modality domain.Modality, sample []byte) (domain.FeatureVector, error) {
	if len(sample) < minUsableSampleLen {
		return nil, ErrNoFeatureDetected
	}
	switch modality {
	case domain.ModalityFingerprint:
		return expand(sample, fingerprintRows, fingerprintDim), nil
	default:
		return expand(sample, 1, faceDim), nil
	}
}

// expand derives rows×cols components in [-1, 1) from a SHA-256 stream over
// the sample. Counter-mode hashing keeps the expansion deterministic.
func expand(sample []byte, rows, cols int) domain.FeatureVector {
	out := make(domain.FeatureVector, rows)
	seed := sha256.Sum256(sample)

	var counter uint64
	var block [sha256.Size]byte
	next := func() float64 {
		idx := counter % 4
		if idx == 0 {
			var buf [sha256.Size + 8]byte
			copy(buf[:sha256.Size], seed[:])
			binary.BigEndian.PutUint64(buf[sha256.Size:], counter/4)
			block = sha256.Sum256(buf[:])
		}
		counter++
		bits := binary.BigEndian.Uint64(block[idx*8 : idx*8+8])
		return float64(int64(bits)) / float64(1<<63) // scaled into [-1, 1)
	}

	for r := range out {
		row := make([]float64, cols)
		for c := range row {
			row[c] = next()
		}
		out[r] = row
	}
	return out
}
