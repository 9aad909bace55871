package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/xela07ax/toolgate/internal/domain"
	"github.com/xela07ax/toolgate/internal/infra"
)

// CapabilityRepository описывает требования сервиса к хранилищу каталога
type CapabilityRepository interface {
	GetCapabilityByName(ctx context.Context, name string) (*domain.Capability, error)
	GetAllCapabilities(ctx context.Context) ([]domain.Capability, error)
	CreateCapability(ctx context.Context, c *domain.Capability) error
	UpdateCapability(ctx context.Context, c *domain.Capability) error
	DeleteCapability(ctx context.Context, name string) error
}

type CapabilityService struct {
	repo CapabilityRepository
	rdb  *redis.Client
}

func NewCapabilityService(repo CapabilityRepository, rdb *redis.Client) *CapabilityService {
	return &CapabilityService{repo: repo, rdb: rdb}
}

func (s *CapabilityService) GetByName(ctx context.Context, name string) (*domain.Capability, error) {
	return s.repo.GetCapabilityByName(ctx, name)
}

func (s *CapabilityService) GetAll(ctx context.Context) ([]domain.Capability, error) {
	return s.repo.GetAllCapabilities(ctx)
}

// validateCapability — те же проверки, что делает реестр шлюза при загрузке.
// Отбраковываем на записи, чтобы каталог в БД всегда был загружаемым.
func validateCapability(c *domain.Capability) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.ArgsSchema) > 0 {
		if _, err := jsonschema.CompileString("cap://"+c.Name, string(c.ArgsSchema)); err != nil {
			return fmt.Errorf("capability %q: malformed args schema: %w", c.Name, err)
		}
	}
	return nil
}

func (s *CapabilityService) Create(ctx context.Context, c *domain.Capability) error {
	if err := validateCapability(c); err != nil {
		return err
	}
	if err := s.repo.CreateCapability(ctx, c); err != nil {
		return err
	}
	return s.notifyUpdate(ctx)
}

func (s *CapabilityService) Update(ctx context.Context, c *domain.Capability) error {
	if err := validateCapability(c); err != nil {
		return err
	}
	if err := s.repo.UpdateCapability(ctx, c); err != nil {
		return err
	}
	return s.notifyUpdate(ctx)
}

func (s *CapabilityService) Delete(ctx context.Context, name string) error {
	if err := s.repo.DeleteCapability(ctx, name); err != nil {
		return err
	}
	return s.notifyUpdate(ctx)
}

func (s *CapabilityService) notifyUpdate(ctx context.Context) error {
	return s.rdb.Publish(ctx, infra.RedisChanRegistryUpdate, "refresh").Err()
}
