// Package extractor defines the boundary to the biometric feature-extraction
// models. The engine never sees raw model internals: an extractor turns a raw
// sample into a fixed-length numeric feature vector or fails.
package extractor

import (
	"context"
	"errors"

	"bioanchor/internal/domain"
)

// ErrNoFeatureDetected is returned when a sample yields zero usable feature
// points. Callers translate it into the no_feature_detected domain error.
var ErrNoFeatureDetected = errors.New("no feature detected in sample")

// FeatureExtractor produces feature vectors from raw samples. Implementations
// must be deterministic: identical inputs yield bit-identical vectors, because
// commitment cross-checks re-derive from freshly extracted features.
type FeatureExtractor interface {
	Extract(ctx context.Context, modality domain.Modality, sample []byte) (domain.FeatureVector, error)
}
