//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bioanchor/internal/domain"
	"bioanchor/internal/identity/store"
	"bioanchor/pkg/platform/sentinel"
	"bioanchor/pkg/testutil/containers"
)

type PostgresRecordSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresRecordSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRecordSuite))
}

func (s *PostgresRecordSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresRecordSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "identity_records")
	s.Require().NoError(err)
}

func (s *PostgresRecordSuite) record(did, owner string) domain.IdentityRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.IdentityRecord{
		DID:         did,
		Document:    domain.NewDidDocument(did, "Test Holder", "z6MkTest", now),
		Owner:       owner,
		Status:      domain.RecordStatusActive,
		AnchorTxRef: "tx-" + did,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *PostgresRecordSuite) TestCreateFindRoundTrip() {
	ctx := context.Background()
	record := s.record(domain.NewDID(), "owner-1")

	s.Require().NoError(s.store.Create(ctx, record))

	found, err := s.store.Find(ctx, record.DID)
	s.Require().NoError(err)
	s.Equal(record.DID, found.DID)
	s.Equal(record.Owner, found.Owner)
	s.Equal(record.Status, found.Status)
	s.Equal(record.AnchorTxRef, found.AnchorTxRef)
	s.Equal(record.Document.PublicKey, found.Document.PublicKey)
	s.Equal(record.Document.Authentication, found.Document.Authentication)
	s.WithinDuration(record.CreatedAt, found.CreatedAt, time.Millisecond)
}

func (s *PostgresRecordSuite) TestCreateDuplicateConflicts() {
	ctx := context.Background()
	record := s.record(domain.NewDID(), "owner-1")

	s.Require().NoError(s.store.Create(ctx, record))
	err := s.store.Create(ctx, record)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresRecordSuite) TestUpdatePersistsNewVersion() {
	ctx := context.Background()
	record := s.record(domain.NewDID(), "owner-1")
	s.Require().NoError(s.store.Create(ctx, record))

	record.Document = domain.DocumentPatch{PublicKey: "z6MkRotated"}.Apply(record.Document)
	record.AnchorTxRef = "tx-rotated"
	record.UpdatedAt = record.UpdatedAt.Add(time.Second)
	s.Require().NoError(s.store.Update(ctx, record))

	found, err := s.store.Find(ctx, record.DID)
	s.Require().NoError(err)
	s.Equal("z6MkRotated", found.Document.PublicKey)
	s.Equal("z6MkRotated", found.Document.Authentication[0].PublicKeyMultibase)
	s.Equal("tx-rotated", found.AnchorTxRef)
}

func (s *PostgresRecordSuite) TestUpdateUnknownDIDNotFound() {
	err := s.store.Update(context.Background(), s.record(domain.NewDID(), "owner-1"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRecordSuite) TestFindUnknownDIDNotFound() {
	_, err := s.store.Find(context.Background(), domain.NewDID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRecordSuite) TestListByOwnerOrdersByCreation() {
	ctx := context.Background()

	first := s.record(domain.NewDID(), "owner-list")
	second := s.record(domain.NewDID(), "owner-list")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	other := s.record(domain.NewDID(), "owner-other")

	s.Require().NoError(s.store.Create(ctx, second))
	s.Require().NoError(s.store.Create(ctx, first))
	s.Require().NoError(s.store.Create(ctx, other))

	records, err := s.store.ListByOwner(ctx, "owner-list")
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(first.DID, records[0].DID)
	s.Equal(second.DID, records[1].DID)
}
