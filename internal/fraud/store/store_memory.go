package store

import (
	"context"
	"sync"

	"bioanchor/internal/domain"
	"bioanchor/pkg/platform/sentinel"
)

// InMemory keeps fraud reports in process memory, in append order.
type InMemory struct {
	mu      sync.RWMutex
	reports []domain.FraudReport
	byID    map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[string]struct{})}
}

func (s *InMemory) Append(_ context.Context, report domain.FraudReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[report.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[report.ID] = struct{}{}
	s.reports = append(s.reports, report)
	return nil
}

func (s *InMemory) ListByDID(_ context.Context, did string) ([]domain.FraudReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.FraudReport
	for _, report := range s.reports {
		if report.DID == did {
			out = append(out, report)
		}
	}
	return out, nil
}

func (s *InMemory) List(_ context.Context) ([]domain.FraudReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FraudReport, len(s.reports))
	copy(out, s.reports)
	return out, nil
}
