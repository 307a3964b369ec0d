package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bioanchor/internal/domain"
	"bioanchor/pkg/platform/sentinel"
)

const (
	templateKeyPrefix = "bio:tpl:"
	bindingKeyPrefix  = "bio:bind:"
)

// Redis is the shared-state implementation for deployments where multiple
// instances must see the same bindings. Values are JSON; the client lifecycle
// is managed by the caller.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) SaveTemplate(ctx context.Context, template domain.BiometricTemplate) error {
	payload, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	// NX preserves template immutability: enrollment IDs are never reused.
	ok, err := s.client.SetNX(ctx, templateKeyPrefix+template.TemplateID, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Redis) FindTemplate(ctx context.Context, templateID string) (domain.BiometricTemplate, error) {
	raw, err := s.client.Get(ctx, templateKeyPrefix+templateID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BiometricTemplate{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.BiometricTemplate{}, fmt.Errorf("find template: %w", err)
	}
	var template domain.BiometricTemplate
	if err := json.Unmarshal(raw, &template); err != nil {
		return domain.BiometricTemplate{}, fmt.Errorf("decode template: %w", err)
	}
	return template, nil
}

func (s *Redis) ActivateBinding(ctx context.Context, binding domain.TemplateBinding) error {
	binding.Status = domain.BindingStatusActive
	payload, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("marshal binding: %w", err)
	}
	// Plain SET supersedes the previous active binding in one write.
	key := fmt.Sprintf("%s%s:%s", bindingKeyPrefix, binding.DID, binding.Modality)
	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("activate binding: %w", err)
	}
	return nil
}

func (s *Redis) FindActiveBinding(ctx context.Context, did string, modality domain.Modality) (domain.TemplateBinding, error) {
	key := fmt.Sprintf("%s%s:%s", bindingKeyPrefix, did, modality)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.TemplateBinding{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.TemplateBinding{}, fmt.Errorf("find binding: %w", err)
	}
	var binding domain.TemplateBinding
	if err := json.Unmarshal(raw, &binding); err != nil {
		return domain.TemplateBinding{}, fmt.Errorf("decode binding: %w", err)
	}
	if binding.Status != domain.BindingStatusActive {
		return domain.TemplateBinding{}, sentinel.ErrNotFound
	}
	return binding, nil
}
