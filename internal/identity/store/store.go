// Package store persists off-chain identity records. Records are only ever
// written after their document has been anchored, so every stored record
// carries a confirmed anchor transaction reference.
package store

import (
	"context"

	"bioanchor/internal/domain"
)

// RecordStore is the identity-record persistence boundary.
//
// Create fails with sentinel.ErrConflict when a record for the DID already
// exists; Update overwrites the record for an existing DID and fails with
// sentinel.ErrNotFound otherwise. The create/update split keeps the
// "no duplicate DID" invariant inside a single store write instead of a
// read-then-write race.
type RecordStore interface {
	Create(ctx context.Context, record domain.IdentityRecord) error
	Update(ctx context.Context, record domain.IdentityRecord) error
	Find(ctx context.Context, did string) (domain.IdentityRecord, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.IdentityRecord, error)
}
