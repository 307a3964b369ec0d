package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bioanchor/internal/domain"
	"bioanchor/pkg/platform/sentinel"
)

type InMemoryReportStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemory
}

func TestInMemoryReportStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryReportStoreSuite))
}

func (s *InMemoryReportStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
}

func (s *InMemoryReportStoreSuite) newReport(did string, score float64) domain.FraudReport {
	return domain.FraudReport{
		ID:        uuid.NewString(),
		DID:       did,
		Type:      domain.FraudTypeIdentity,
		Score:     score,
		Data:      map[string]any{"source": "test"},
		Details:   map[string]any{"note": "unit"},
		Timestamp: time.Now().UTC(),
	}
}

func (s *InMemoryReportStoreSuite) TestAppendAndListByDID() {
	did := domain.NewDID()
	first := s.newReport(did, 0.4)
	second := s.newReport(did, 0.9)
	other := s.newReport(domain.NewDID(), 0.2)

	s.Require().NoError(s.store.Append(s.ctx, first))
	s.Require().NoError(s.store.Append(s.ctx, other))
	s.Require().NoError(s.store.Append(s.ctx, second))

	reports, err := s.store.ListByDID(s.ctx, did)
	s.Require().NoError(err)
	s.Require().Len(reports, 2)
	s.Equal(first.ID, reports[0].ID)
	s.Equal(second.ID, reports[1].ID)
}

func (s *InMemoryReportStoreSuite) TestAppendDuplicateIDConflicts() {
	report := s.newReport(domain.NewDID(), 0.5)
	s.Require().NoError(s.store.Append(s.ctx, report))

	err := s.store.Append(s.ctx, report)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryReportStoreSuite) TestListReturnsAllInAppendOrder() {
	first := s.newReport(domain.NewDID(), 0.1)
	second := s.newReport("", 0.2)

	s.Require().NoError(s.store.Append(s.ctx, first))
	s.Require().NoError(s.store.Append(s.ctx, second))

	reports, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(reports, 2)
	s.Equal(first.ID, reports[0].ID)
	s.Equal(second.ID, reports[1].ID)
}

func (s *InMemoryReportStoreSuite) TestListByUnknownDIDIsEmpty() {
	reports, err := s.store.ListByDID(s.ctx, domain.NewDID())
	s.Require().NoError(err)
	s.Empty(reports)
}
