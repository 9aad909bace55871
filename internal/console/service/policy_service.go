package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/toolgate/internal/domain"
	"github.com/xela07ax/toolgate/internal/infra"
)

// PolicyRepository описывает требования сервиса к хранилищу правил
type PolicyRepository interface {
	GetRuleByID(ctx context.Context, id string) (*domain.PolicyRule, error)
	GetAllRules(ctx context.Context) ([]domain.PolicyRule, error)
	CreateRule(ctx context.Context, r *domain.PolicyRule) error
	UpdateRule(ctx context.Context, r *domain.PolicyRule) error
	DeleteRule(ctx context.Context, id string) error
}

type PolicyService struct {
	repo PolicyRepository
	rdb  *redis.Client
}

func NewPolicyService(repo PolicyRepository, rdb *redis.Client) *PolicyService {
	return &PolicyService{repo: repo, rdb: rdb}
}

func (s *PolicyService) GetByID(ctx context.Context, id string) (*domain.PolicyRule, error) {
	return s.repo.GetRuleByID(ctx, id)
}

func (s *PolicyService) GetAll(ctx context.Context) ([]domain.PolicyRule, error) {
	return s.repo.GetAllRules(ctx)
}

// validateRule отбраковывает битые правила до записи в БД,
// чтобы шлюз при перечитывании не получил мусор.
func validateRule(r *domain.PolicyRule) error {
	if _, err := domain.ParseRole(string(r.Role)); err != nil {
		return err
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule pattern is required")
	}
	if r.Effect != domain.EffectAllow && r.Effect != domain.EffectDeny {
		return fmt.Errorf("effect must be ALLOW or DENY, got %q", r.Effect)
	}
	if len(r.Conditions) > 0 && !json.Valid(r.Conditions) {
		return fmt.Errorf("conditions must be valid JSON")
	}
	return nil
}

// Create сохраняет правило и уведомляет шлюзы об обновлении
func (s *PolicyService) Create(ctx context.Context, r *domain.PolicyRule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	if err := s.repo.CreateRule(ctx, r); err != nil {
		return err
	}
	return s.notifyUpdate(ctx)
}

// Update обновляет правило и инициирует инвалидацию кэша
func (s *PolicyService) Update(ctx context.Context, r *domain.PolicyRule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	if err := s.repo.UpdateRule(ctx, r); err != nil {
		return err
	}
	return s.notifyUpdate(ctx)
}

func (s *PolicyService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	return s.notifyUpdate(ctx)
}

// notifyUpdate шлет широковещательный сигнал: все инстансы шлюза,
// подписанные на канал, перечитают таблицу правил целиком.
func (s *PolicyService) notifyUpdate(ctx context.Context) error {
	return s.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, "refresh").Err()
}
