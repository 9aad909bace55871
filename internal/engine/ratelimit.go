package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/toolgate/internal/domain"
	"github.com/xela07ax/toolgate/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter — лимит запросов на агента. Основной режим — распределенное
// фиксированное окно в Redis (общий бюджет на все инстансы шлюза);
// при недоступности Redis деградируем до локального лимитера, а не
// отказываем всем вызовам.
type RateLimiter struct {
	rdb    *redis.Client // nil = только локальный режим
	local  *rate.Limiter
	limit  int
	window time.Duration
	logger *zap.Logger

	degraded atomic.Bool // Чтобы не спамить лог на каждом вызове
}

func NewRateLimiter(rdb *redis.Client, cfg infra.EngineConfig, logger *zap.Logger) *RateLimiter {
	perSecond := float64(cfg.RateLimit) / cfg.RateWindow.Seconds()
	return &RateLimiter{
		rdb:    rdb,
		local:  rate.NewLimiter(rate.Limit(perSecond), cfg.RateBurst),
		limit:  cfg.RateLimit,
		window: cfg.RateWindow,
		logger: logger.With(zap.String("mod", "ratelimit")),
	}
}

// Allow — fail fast: превышение бюджета это rate_limited, без ожидания.
func (l *RateLimiter) Allow(ctx context.Context, agentID string) error {
	if l.rdb != nil {
		switch ok, err := l.allowDistributed(ctx, agentID); {
		case err == nil && ok:
			return nil
		case err == nil:
			return domain.E(domain.ErrRateLimited, "agent %s exceeded %d calls per %v", agentID, l.limit, l.window)
		default:
			// Redis лег — переходим на локальный бюджет
			if l.degraded.CompareAndSwap(false, true) {
				l.logger.Warn("redis unavailable, degrading to local rate limits", zap.Error(err))
			}
		}
	}

	if !l.local.Allow() {
		return domain.E(domain.ErrRateLimited, "local rate limit exceeded")
	}
	return nil
}

func (l *RateLimiter) allowDistributed(ctx context.Context, agentID string) (bool, error) {
	window := time.Now().UnixNano() / int64(l.window)
	key := infra.RateLimitKey(agentID, window)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if l.degraded.CompareAndSwap(true, false) {
		l.logger.Info("redis recovered, distributed rate limits restored")
	}
	return incr.Val() <= int64(l.limit), nil
}
