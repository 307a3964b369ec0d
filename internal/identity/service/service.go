// Package service implements the DID anchor manager: DID document lifecycle
// over the identity record store and the anchor ledger. Writes follow a
// write-after-commit discipline: the off-chain record is only created or
// overwritten after the ledger has confirmed the document's canonical bytes,
// so no record can claim an anchor that does not exist.
package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bioanchor/internal/audit"
	"bioanchor/internal/domain"
	identitymetrics "bioanchor/internal/identity/metrics"
	"bioanchor/internal/ledger"
	dErrors "bioanchor/pkg/domain-errors"
	"bioanchor/pkg/platform/keyedmutex"
	"bioanchor/pkg/platform/sentinel"
)

type RecordStore interface {
	Create(ctx context.Context, record domain.IdentityRecord) error
	Update(ctx context.Context, record domain.IdentityRecord) error
	Find(ctx context.Context, did string) (domain.IdentityRecord, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.IdentityRecord, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates DID create/update/verify. A keyed mutex serializes
// writers on the same DID for the whole logical write, ledger commit
// included; writers on distinct DIDs proceed concurrently and store locks
// are never held across a ledger call.
type Service struct {
	records RecordStore
	anchors ledger.AnchorLedger
	locks   *keyedmutex.KeyedMutex
	logger  *slog.Logger
	auditor AuditPublisher
	metrics *identitymetrics.Metrics
	now     func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Tests use this for stable timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(records RecordStore, anchors ledger.AnchorLedger, opts ...Option) *Service {
	s := &Service{
		records: records,
		anchors: anchors,
		locks:   keyedmutex.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries the fields of a new DID document. DID is optional:
// when empty a fresh did:bioanchor DID is minted.
type CreateRequest struct {
	DID       string
	Owner     string
	Name      string
	PublicKey string
}

// Create anchors a new DID document and persists its identity record. A DID
// that already has an active record fails with invalid_input; a revoked
// record may be re-created, which supersedes it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.IdentityRecord, error) {
	if req.Owner == "" {
		return domain.IdentityRecord{}, dErrors.New(dErrors.CodeInvalidInput, "owner is required")
	}
	if req.Name == "" {
		return domain.IdentityRecord{}, dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	if req.PublicKey == "" {
		return domain.IdentityRecord{}, dErrors.New(dErrors.CodeInvalidInput, "public key is required")
	}
	did := req.DID
	if did == "" {
		did = domain.NewDID()
	} else if !domain.ValidDID(did) {
		return domain.IdentityRecord{}, dErrors.Newf(dErrors.CodeInvalidInput, "malformed DID %q", did)
	}

	s.locks.Lock(did)
	defer s.locks.Unlock(did)

	existing, err := s.records.Find(ctx, did)
	switch {
	case err == nil && existing.IsActive():
		return domain.IdentityRecord{}, dErrors.Newf(dErrors.CodeInvalidInput, "DID %s already has an active record", did)
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return domain.IdentityRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing record")
	}
	supersedesRevoked := err == nil

	now := s.now().UTC()
	doc := domain.NewDidDocument(did, req.Name, req.PublicKey, now)
	payload, err := doc.CanonicalJSON()
	if err != nil {
		return domain.IdentityRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to serialize document")
	}

	txRef, err := s.commitAnchor(ctx, ledger.DidKey(did), payload)
	if err != nil {
		return domain.IdentityRecord{}, err
	}

	record := domain.IdentityRecord{
		DID:         did,
		Document:    doc,
		Owner:       req.Owner,
		Status:      domain.RecordStatusActive,
		AnchorTxRef: string(txRef),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if supersedesRevoked {
		err = s.records.Update(ctx, record)
	} else {
		err = s.records.Create(ctx, record)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return domain.IdentityRecord{}, dErrors.Newf(dErrors.CodeInvalidInput, "DID %s already has an active record", did)
		}
		return domain.IdentityRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist identity record")
	}

	s.emitAudit(ctx, audit.Event{Actor: req.Owner, DID: did, Action: audit.ActionDIDCreated, Outcome: "ok"})
	if s.metrics != nil {
		s.metrics.DIDsCreated.Inc()
	}
	return record, nil
}

// UpdateRequest patches an existing document. Caller must be the record
// owner.
type UpdateRequest struct {
	DID    string
	Caller string
	Patch  domain.DocumentPatch
}

// Update anchors a new document version and overwrites the off-chain record.
// The previous anchor is not retracted; the current record decides which
// anchor is authoritative.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (domain.IdentityRecord, error) {
	if !domain.ValidDID(req.DID) {
		return domain.IdentityRecord{}, dErrors.Newf(dErrors.CodeInvalidInput, "malformed DID %q", req.DID)
	}
	if req.Patch.Name == "" && req.Patch.PublicKey == "" {
		return domain.IdentityRecord{}, dErrors.New(dErrors.CodeInvalidInput, "nothing to update")
	}

	s.locks.Lock(req.DID)
	defer s.locks.Unlock(req.DID)

	record, err := s.records.Find(ctx, req.DID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.IdentityRecord{}, dErrors.Newf(dErrors.CodeNotFound, "no identity record for %s", req.DID)
		}
		return domain.IdentityRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity record")
	}
	if !record.IsActive() {
		return domain.IdentityRecord{}, dErrors.Newf(dErrors.CodeNotFound, "no active identity record for %s", req.DID)
	}
	if record.Owner != req.Caller {
		return domain.IdentityRecord{}, dErrors.New(dErrors.CodeForbidden, "caller does not own this DID")
	}

	next := req.Patch.Apply(record.Document)
	payload, err := next.CanonicalJSON()
	if err != nil {
		return domain.IdentityRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to serialize document")
	}

	txRef, err := s.commitAnchor(ctx, ledger.DidKey(req.DID), payload)
	if err != nil {
		return domain.IdentityRecord{}, err
	}

	record.Document = next
	record.AnchorTxRef = string(txRef)
	record.UpdatedAt = s.now().UTC()
	if err := s.records.Update(ctx, record); err != nil {
		return domain.IdentityRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist identity record")
	}

	s.emitAudit(ctx, audit.Event{Actor: req.Caller, DID: req.DID, Action: audit.ActionDIDUpdated, Outcome: "ok"})
	if s.metrics != nil {
		s.metrics.DIDsUpdated.Inc()
	}
	return record, nil
}

// VerifyResult is the outcome of a DID verification.
//
// Anchored reports whether the ledger holds exactly the current off-chain
// document's canonical bytes. DocumentMatch compares a caller-supplied
// expected document's id and publicKey against the stored one; it is true
// when no expected document was supplied.
type VerifyResult struct {
	Anchored      bool
	DocumentMatch bool
}

// Verify checks an anchored DID. The off-chain record and the on-chain value
// are fetched concurrently.
func (s *Service) Verify(ctx context.Context, did string, expected *domain.DidDocument) (VerifyResult, error) {
	record, anchored, err := s.fetchAnchored(ctx, did)
	if err != nil {
		s.observeVerification("error")
		return VerifyResult{}, err
	}

	result := VerifyResult{Anchored: anchored, DocumentMatch: true}
	if expected != nil {
		result.DocumentMatch = expected.ID == record.Document.ID &&
			expected.PublicKey == record.Document.PublicKey
	}

	outcome := "verified"
	if !result.Anchored || !result.DocumentMatch {
		outcome = "mismatch"
	}
	s.observeVerification(outcome)
	return result, nil
}

// GetResult pairs an identity record with a live anchor consistency check.
type GetResult struct {
	Record   domain.IdentityRecord
	Anchored bool
}

// Get returns the off-chain record for a DID together with whether its
// document still matches the on-chain anchor.
func (s *Service) Get(ctx context.Context, did string) (GetResult, error) {
	record, anchored, err := s.fetchAnchored(ctx, did)
	if err != nil {
		return GetResult{}, err
	}
	return GetResult{Record: record, Anchored: anchored}, nil
}

// List returns all identity records owned by owner, oldest first.
func (s *Service) List(ctx context.Context, owner string) ([]domain.IdentityRecord, error) {
	if owner == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner is required")
	}
	records, err := s.records.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list identity records")
	}
	return records, nil
}

// fetchAnchored loads the record and the anchored bytes concurrently and
// reports whether they agree. A missing on-chain value is not an error, just
// an unanchored record.
func (s *Service) fetchAnchored(ctx context.Context, did string) (domain.IdentityRecord, bool, error) {
	if !domain.ValidDID(did) {
		return domain.IdentityRecord{}, false, dErrors.Newf(dErrors.CodeInvalidInput, "malformed DID %q", did)
	}

	var (
		record   domain.IdentityRecord
		anchored []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, err = s.records.Find(gctx, did)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "no identity record for %s", did)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity record")
		}
		return nil
	})
	g.Go(func() error {
		value, err := s.anchors.Lookup(gctx, ledger.DidKey(did))
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "anchor ledger lookup failed")
		}
		anchored = value
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.IdentityRecord{}, false, err
	}

	payload, err := record.Document.CanonicalJSON()
	if err != nil {
		return domain.IdentityRecord{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to serialize document")
	}
	return record, anchored != nil && bytes.Equal(anchored, payload), nil
}

func (s *Service) commitAnchor(ctx context.Context, key string, payload []byte) (ledger.TxRef, error) {
	start := time.Now()
	txRef, err := s.anchors.Commit(ctx, key, payload)
	if s.metrics != nil {
		s.metrics.ObserveAnchorCommit(start)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrTimeout) {
			return "", dErrors.Wrap(err, dErrors.CodeAnchorTimeout, "anchor confirmation timed out")
		}
		return "", dErrors.Wrap(err, dErrors.CodeAnchorCommitFailed, "anchor commit failed")
	}
	return txRef, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func (s *Service) observeVerification(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementVerification(outcome)
	}
}
