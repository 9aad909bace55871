package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/toolgate/internal/domain"
	"github.com/xela07ax/toolgate/internal/infra"
	"github.com/xela07ax/toolgate/internal/infra/auth"
	"go.uber.org/zap"
)

// AgentRepository описывает требования сервиса к хранилищу агентов
type AgentRepository interface {
	CreateAgent(ctx context.Context, a *domain.Agent) error
	GetAgentByID(ctx context.Context, id string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	UpdateAgentStatus(ctx context.Context, id string, status domain.AgentStatus) error
}

type AgentService struct {
	repo     AgentRepository
	rdb      *redis.Client
	issuer   *auth.Issuer
	tokenTTL time.Duration
	logger   *zap.Logger
}

func NewAgentService(repo AgentRepository, rdb *redis.Client, issuer *auth.Issuer, tokenTTL time.Duration, logger *zap.Logger) *AgentService {
	return &AgentService{
		repo:     repo,
		rdb:      rdb,
		issuer:   issuer,
		tokenTTL: tokenTTL,
		logger:   logger.Named("agent-service"),
	}
}

func (s *AgentService) Create(ctx context.Context, a *domain.Agent) error {
	if _, err := domain.ParseRole(string(a.Role)); err != nil {
		return err
	}
	if a.Name == "" || a.TenantID == "" {
		return fmt.Errorf("agent name and tenant_id are required")
	}
	return s.repo.CreateAgent(ctx, a)
}

func (s *AgentService) Get(ctx context.Context, id string) (*domain.Agent, error) {
	return s.repo.GetAgentByID(ctx, id)
}

func (s *AgentService) List(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		s.logger.Error("failed to list agents from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}
	// Фронту нужен пустой массив, а не null
	if agents == nil {
		return []domain.Agent{}, nil
	}
	return agents, nil
}

// IssueToken выпускает короткоживущий агентский токен.
// Заблокированный агент не получает токен — kill-switch действует и здесь.
func (s *AgentService) IssueToken(ctx context.Context, agentID string) (*domain.TokenResponse, error) {
	agent, err := s.repo.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, nil // 404 в хендлере
	}
	if agent.Status != domain.StatusActive {
		return nil, fmt.Errorf("agent %s is %s, token refused", agentID, agent.Status)
	}
	return s.issuer.IssueAgentToken(agent, s.tokenTTL)
}

// setBlockState — унифицированное переключение kill-switch.
// Обновляет БД (источник правды), Redis-сет (для прогрева новых инстансов)
// и шлет сигнал всем работающим шлюзам.
func (s *AgentService) setBlockState(ctx context.Context, agentID string, blocked bool) error {
	status := domain.StatusActive
	signal := "off"
	if blocked {
		status = domain.StatusBlocked
		signal = "on"
	}

	// 1. Persistence
	if err := s.repo.UpdateAgentStatus(ctx, agentID, status); err != nil {
		s.logger.Error("failed to update agent status in DB",
			zap.String("agent_id", agentID), zap.Error(err))
		return fmt.Errorf("kill-switch database error: %w", err)
	}

	// 2. Redis-сет: прогрев блок-листа для инстансов, стартующих позже
	if blocked {
		if err := s.rdb.SAdd(ctx, infra.RedisKeyBlockedAgents, agentID).Err(); err != nil {
			s.logger.Warn("blocklist set update failed", zap.Error(err))
		}
	} else {
		if err := s.rdb.SRem(ctx, infra.RedisKeyBlockedAgents, agentID).Err(); err != nil {
			s.logger.Warn("blocklist set update failed", zap.Error(err))
		}
	}

	// 3. Real-time signaling: работающие шлюзы обновят L1 мгновенно
	payload := fmt.Sprintf("%s:%s", agentID, signal)
	if err := s.rdb.Publish(ctx, infra.RedisChanBlocklist, payload).Err(); err != nil {
		s.logger.Warn("runtime signal delivery failed", zap.Error(err))
	} else {
		s.logger.Info("agent block state updated",
			zap.String("agent_id", agentID),
			zap.String("new_status", string(status)))
	}
	return nil
}

func (s *AgentService) Block(ctx context.Context, id string) error {
	return s.setBlockState(ctx, id, true)
}

func (s *AgentService) Unblock(ctx context.Context, id string) error {
	return s.setBlockState(ctx, id, false)
}
