package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DIDMethod is the method segment of every DID this system mints.
const DIDMethod = "bioanchor"

// NewDID mints a fresh DID string of the form did:bioanchor:<32 hex chars>.
func NewDID() string {
	return fmt.Sprintf("did:%s:%s", DIDMethod, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// ValidDID reports whether s has the did:bioanchor:<suffix> shape. It checks
// structure only; existence is a store concern.
func ValidDID(s string) bool {
	parts := strings.SplitN(s, ":", 3)
	return len(parts) == 3 && parts[0] == "did" && parts[1] == DIDMethod && parts[2] != ""
}

// AuthenticationMethod is a single entry in a DID document's authentication
// list. The multibase key always mirrors the document's top-level public key.
type AuthenticationMethod struct {
	Type               string `json:"type"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// DidDocument is the holder-owned identity document. Documents are never
// mutated in place: every update produces a new version keyed by the same ID.
//
// Invariants:
//   - ID is immutable once created
//   - Authentication always carries exactly one entry mirroring PublicKey
type DidDocument struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	PublicKey      string                 `json:"publicKey"`
	Created        time.Time              `json:"created"`
	Authentication []AuthenticationMethod `json:"authentication"`
}

// NewDidDocument builds a document for a freshly minted DID.
func NewDidDocument(did, name, publicKey string, created time.Time) DidDocument {
	return DidDocument{
		ID:             did,
		Name:           name,
		PublicKey:      publicKey,
		Created:        created.UTC(),
		Authentication: authenticationFor(publicKey),
	}
}

func authenticationFor(publicKey string) []AuthenticationMethod {
	return []AuthenticationMethod{{
		Type:               "Ed25519VerificationKey2020",
		PublicKeyMultibase: publicKey,
	}}
}

// DocumentPatch carries the updatable document fields. Empty fields are left
// unchanged by Apply.
type DocumentPatch struct {
	Name      string
	PublicKey string
}

// Apply returns the next document version with patch fields merged in. When
// the public key changes, the authentication entry is regenerated to mirror it.
func (p DocumentPatch) Apply(doc DidDocument) DidDocument {
	next := doc
	if p.Name != "" {
		next.Name = p.Name
	}
	if p.PublicKey != "" {
		next.PublicKey = p.PublicKey
		next.Authentication = authenticationFor(p.PublicKey)
	}
	return next
}

// CanonicalJSON is the byte encoding committed to the ledger for a document.
// Field order is fixed by the struct definition and timestamps are normalized
// to UTC RFC3339, so equal documents always serialize to equal bytes.
func (d DidDocument) CanonicalJSON() ([]byte, error) {
	normalized := d
	normalized.Created = d.Created.UTC().Truncate(time.Second)
	b, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("serialize did document: %w", err)
	}
	return b, nil
}

// RecordStatus tracks the lifecycle of an off-chain identity record.
type RecordStatus string

const (
	RecordStatusActive  RecordStatus = "active"
	RecordStatusRevoked RecordStatus = "revoked"
)

// IdentityRecord is the off-chain projection of an anchored DID document.
//
// Invariant: AnchorTxRef is non-empty and references the ledger transaction
// that committed exactly Document's canonical bytes before Status may be
// active. The write path enforces this by committing to the ledger first and
// persisting the record only after confirmation.
type IdentityRecord struct {
	DID         string
	Document    DidDocument
	Owner       string
	Status      RecordStatus
	AnchorTxRef string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r IdentityRecord) IsActive() bool {
	return r.Status == RecordStatusActive
}
