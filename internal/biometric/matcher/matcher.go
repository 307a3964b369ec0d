// Package matcher compares biometric feature vectors against enrolled
// templates and applies modality-specific similarity thresholds.
package matcher

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"bioanchor/internal/biometric/extractor"
	"bioanchor/internal/biometric/store"
	"bioanchor/internal/domain"
	dErrors "bioanchor/pkg/domain-errors"
	"bioanchor/pkg/platform/sentinel"
)

// Default similarity thresholds per modality.
const (
	DefaultFaceThreshold        = 0.60
	DefaultFingerprintThreshold = 0.70
)

// Config carries the configurable thresholds. Zero values fall back to the
// defaults so callers can set only what they override.
type Config struct {
	FaceThreshold        float64
	FingerprintThreshold float64
}

func (c Config) threshold(modality domain.Modality) float64 {
	switch modality {
	case domain.ModalityFingerprint:
		if c.FingerprintThreshold > 0 {
			return c.FingerprintThreshold
		}
		return DefaultFingerprintThreshold
	default:
		if c.FaceThreshold > 0 {
			return c.FaceThreshold
		}
		return DefaultFaceThreshold
	}
}

// Result is the outcome of a verification attempt. Features holds the probe's
// freshly extracted vector so callers can re-derive commitments without a
// second extraction.
type Result struct {
	IsMatch    bool
	Similarity float64
	Threshold  float64
	Features   domain.FeatureVector
}

// Matcher enrolls samples into the template store and verifies samples
// against stored templates. Similarity is deterministic: identical inputs
// always produce bit-identical scores.
type Matcher struct {
	extractor extractor.FeatureExtractor
	templates store.TemplateStore
	cfg       Config
}

func New(ex extractor.FeatureExtractor, templates store.TemplateStore, cfg Config) *Matcher {
	return &Matcher{extractor: ex, templates: templates, cfg: cfg}
}

// Enroll extracts features from sample and stores them under a fresh template
// ID owned by ownerUserID.
func (m *Matcher) Enroll(ctx context.Context, ownerUserID string, modality domain.Modality, sample []byte) (domain.BiometricTemplate, error) {
	features, err := m.extract(ctx, modality, sample)
	if err != nil {
		return domain.BiometricTemplate{}, err
	}

	template := domain.BiometricTemplate{
		TemplateID:  uuid.NewString(),
		Modality:    modality,
		Features:    features,
		OwnerUserID: ownerUserID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.templates.SaveTemplate(ctx, template); err != nil {
		return domain.BiometricTemplate{}, dErrors.Wrap(err, dErrors.CodeInternal, "store template")
	}
	return template, nil
}

// Verify extracts features from sample and scores them against the template
// stored under templateID.
func (m *Matcher) Verify(ctx context.Context, modality domain.Modality, sample []byte, templateID string) (Result, error) {
	features, err := m.extract(ctx, modality, sample)
	if err != nil {
		return Result{}, err
	}

	template, err := m.templates.FindTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, dErrors.Newf(dErrors.CodeTemplateNotFound, "template %s not found", templateID)
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "load template")
	}

	similarity, err := Similarity(modality, template.Features, features)
	if err != nil {
		return Result{}, err
	}

	threshold := m.cfg.threshold(modality)
	return Result{
		IsMatch:    similarity >= threshold,
		Similarity: similarity,
		Threshold:  threshold,
		Features:   features,
	}, nil
}

func (m *Matcher) extract(ctx context.Context, modality domain.Modality, sample []byte) (domain.FeatureVector, error) {
	features, err := m.extractor.Extract(ctx, modality, sample)
	if err != nil {
		if errors.Is(err, extractor.ErrNoFeatureDetected) {
			return nil, dErrors.New(dErrors.CodeNoFeatureDetected, "no usable features in sample")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "feature extraction")
	}
	if features.Empty() {
		return nil, dErrors.New(dErrors.CodeNoFeatureDetected, "no usable features in sample")
	}
	return features, nil
}

// Similarity scores two feature vectors of the same modality.
//
// Face embeddings are single rows compared by euclidean distance, reported as
// 1 − distance. Fingerprint templates are descriptor sets compared by
// symmetric mean-of-best cosine similarity: each descriptor is matched to its
// best counterpart in the other set and the per-descriptor maxima are
// averaged in both directions. The aggregation depends on neither descriptor
// order nor which side enrolled first, so scores are reproducible when
// descriptor count or order differs between enrollment and verification.
func Similarity(modality domain.Modality, enrolled, probe domain.FeatureVector) (float64, error) {
	switch modality {
	case domain.ModalityFingerprint:
		return descriptorSetSimilarity(enrolled, probe)
	default:
		return embeddingSimilarity(enrolled, probe)
	}
}

func embeddingSimilarity(enrolled, probe domain.FeatureVector) (float64, error) {
	if len(enrolled) == 0 || len(probe) == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "empty feature vector")
	}
	a, b := enrolled[0], probe[0]
	if len(a) != len(b) {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "embedding dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return 1.0 - math.Sqrt(sum), nil
}

func descriptorSetSimilarity(enrolled, probe domain.FeatureVector) (float64, error) {
	if len(enrolled) == 0 || len(probe) == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "empty descriptor set")
	}
	forward, err := meanBestCosine(enrolled, probe)
	if err != nil {
		return 0, err
	}
	backward, err := meanBestCosine(probe, enrolled)
	if err != nil {
		return 0, err
	}
	return (forward + backward) / 2, nil
}

// meanBestCosine averages, over every descriptor in from, the best cosine
// similarity achievable against any descriptor in to.
func meanBestCosine(from, to domain.FeatureVector) (float64, error) {
	var total float64
	for _, f := range from {
		best := -1.0
		for _, t := range to {
			c, err := cosine(f, t)
			if err != nil {
				return 0, err
			}
			if c > best {
				best = c
			}
		}
		total += best
	}
	return total / float64(len(from)), nil
}

func cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "descriptor dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
