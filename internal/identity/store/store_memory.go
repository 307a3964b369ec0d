package store

import (
	"context"
	"sort"
	"sync"

	"bioanchor/internal/domain"
	"bioanchor/pkg/platform/sentinel"
)

// InMemory keeps identity records in process memory.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]domain.IdentityRecord
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]domain.IdentityRecord)}
}

func (s *InMemory) Create(_ context.Context, record domain.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.DID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.DID] = record
	return nil
}

func (s *InMemory) Update(_ context.Context, record domain.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.DID]; !exists {
		return sentinel.ErrNotFound
	}
	s.records[record.DID] = record
	return nil
}

func (s *InMemory) Find(_ context.Context, did string) (domain.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[did]; ok {
		return record, nil
	}
	return domain.IdentityRecord{}, sentinel.ErrNotFound
}

func (s *InMemory) ListByOwner(_ context.Context, owner string) ([]domain.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.IdentityRecord
	for _, record := range s.records {
		if record.Owner == owner {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
