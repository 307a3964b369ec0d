package store

import (
	"context"
	"sync"

	"bioanchor/internal/domain"
	"bioanchor/pkg/platform/sentinel"
)

// InMemory keeps templates and bindings in process memory. It favors clarity
// over performance and is the default for tests and single-node development.
type InMemory struct {
	mu        sync.RWMutex
	templates map[string]domain.BiometricTemplate
	bindings  map[bindingKey]domain.TemplateBinding
}

type bindingKey struct {
	did      string
	modality domain.Modality
}

func NewInMemory() *InMemory {
	return &InMemory{
		templates: make(map[string]domain.BiometricTemplate),
		bindings:  make(map[bindingKey]domain.TemplateBinding),
	}
}

func (s *InMemory) SaveTemplate(_ context.Context, template domain.BiometricTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.templates[template.TemplateID]; exists {
		return sentinel.ErrConflict
	}
	template.Features = template.Features.Clone()
	s.templates[template.TemplateID] = template
	return nil
}

func (s *InMemory) FindTemplate(_ context.Context, templateID string) (domain.BiometricTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.templates[templateID]; ok {
		t.Features = t.Features.Clone()
		return t, nil
	}
	return domain.BiometricTemplate{}, sentinel.ErrNotFound
}

func (s *InMemory) ActivateBinding(_ context.Context, binding domain.TemplateBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	binding.Status = domain.BindingStatusActive
	s.bindings[bindingKey{binding.DID, binding.Modality}] = binding
	return nil
}

func (s *InMemory) FindActiveBinding(_ context.Context, did string, modality domain.Modality) (domain.TemplateBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.bindings[bindingKey{did, modality}]; ok && b.Status == domain.BindingStatusActive {
		return b, nil
	}
	return domain.TemplateBinding{}, sentinel.ErrNotFound
}

// ReplaceTemplate swaps the feature vector stored under an existing template
// ID without touching the ledger. Exists only for tamper-detection tests.
func (s *InMemory) ReplaceTemplate(template domain.BiometricTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[template.TemplateID] = template
}
