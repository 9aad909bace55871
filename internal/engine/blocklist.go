package engine

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/toolgate/internal/infra"
	"go.uber.org/zap"
)

// BlocklistProvider — источник заблокированных агентов (Postgres).
type BlocklistProvider interface {
	GetBlockedAgents(ctx context.Context) ([]string, error)
}

// BlocklistManager — kill-switch оператора: мгновенная блокировка агента
// раньше любых политик. L1 — локальная мапа (hot path), L2 — Redis Set,
// источник правды — БД консоли. Синхронизация через pub/sub.
type BlocklistManager struct {
	mu      sync.RWMutex
	blocked map[string]struct{}

	repo   BlocklistProvider
	rdb    *redis.Client
	logger *zap.Logger
}

func NewBlocklistManager(rdb *redis.Client, repo BlocklistProvider, logger *zap.Logger) *BlocklistManager {
	return &BlocklistManager{
		blocked: make(map[string]struct{}),
		repo:    repo,
		rdb:     rdb,
		logger:  logger.With(zap.String("mod", "blocklist")),
	}
}

// Init прогревает L1 из БД и, при необходимости, L2 (Redis) — один инстанс
// под распределенной блокировкой, чтобы не заливать сет хором.
func (m *BlocklistManager) Init(ctx context.Context) error {
	ids, err := m.repo.GetBlockedAgents(ctx)
	if err != nil {
		return err
	}

	// 1. L1 (RAM)
	m.mu.Lock()
	m.blocked = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m.blocked[id] = struct{}{}
	}
	m.mu.Unlock()

	// 2. L2 (Redis): SetNX-замок, чтобы прогревал только один инстанс
	ok, err := m.rdb.SetNX(ctx, infra.RedisKeyLockWarmBlocked, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо Redis недоступен (живем на L1), либо другой уже греет
	}

	count, err := m.rdb.SCard(ctx, infra.RedisKeyBlockedAgents).Result()
	if err != nil {
		m.logger.Warn("could not check Redis set size, skipping warm-up", zap.Error(err))
		return nil
	}

	if count == 0 && len(ids) > 0 {
		m.logger.Info("Redis blocklist is empty, performing warm-up from DB", zap.Int("count", len(ids)))
		pipe := m.rdb.Pipeline()
		for _, id := range ids {
			pipe.SAdd(ctx, infra.RedisKeyBlockedAgents, id)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			m.logger.Warn("blocklist warm-up failed", zap.Error(err))
		}
	}
	return nil
}

// StartListener держит L1 в актуальном состоянии по сигналам консоли.
func (m *BlocklistManager) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanBlocklist,
		func() error { return m.Init(ctx) }, // Ресинк при переподключении
		func(id string, blocked bool) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if blocked {
				m.blocked[id] = struct{}{}
			} else {
				delete(m.blocked, id)
			}
		},
	)
}

// IsBlocked — максимально дешевая проверка для Hot Path.
func (m *BlocklistManager) IsBlocked(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocked[agentID]
	return ok
}
