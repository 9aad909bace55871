package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/toolgate/internal/connectors"
	"github.com/xela07ax/toolgate/internal/domain"
	"github.com/xela07ax/toolgate/internal/infra"
	"go.uber.org/zap"
)

// Result — ответ адаптера плюс операционные детали для аудита.
type Result struct {
	Data     []byte
	Attempts int // Сколько раз реально трогали адаптер
}

// Invoker — контракт Resilience-слоя для диспетчера.
type Invoker interface {
	Invoke(ctx context.Context, cap *domain.Capability, agentID string, args []byte) (*Result, error)
}

// Reliability оборачивает вызов адаптера в rate limit, circuit breaker,
// жесткий дедлайн и ограниченные ретраи. Наружу уходят только
// классифицированные ошибки таксономии.
type Reliability struct {
	adapters map[string]connectors.Adapter
	limiter  *RateLimiter
	cfg      infra.EngineConfig
	metrics  *Metrics
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*adapterBreaker // Лениво, по одному на адаптер
}

func NewReliability(
	adapters map[string]connectors.Adapter,
	limiter *RateLimiter,
	cfg infra.EngineConfig,
	metrics *Metrics,
	logger *zap.Logger,
) *Reliability {
	return &Reliability{
		adapters: adapters,
		limiter:  limiter,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With(zap.String("mod", "reliability")),
		breakers: make(map[string]*adapterBreaker),
	}
}

// AdapterNames — список привязанных адаптеров (реестр проверяет привязки
// на загрузке каталога, а не в момент вызова).
func (w *Reliability) AdapterNames() []string {
	names := make([]string, 0, len(w.adapters))
	for n := range w.adapters {
		names = append(names, n)
	}
	return names
}

func (w *Reliability) breaker(adapter string) *adapterBreaker {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.breakers[adapter]
	if !ok {
		b = newAdapterBreaker(adapter, w.cfg, w.metrics)
		w.breakers[adapter] = b
	}
	return b
}

// Invoke выполняет вызов с жестким дедлайном min(cap.Timeout, дедлайн ctx).
// Ретраи — только для идемпотентных операций, с экспоненциальным бэкоффом
// и уважением к ThrottleError; неидемпотентная capability трогает адаптер
// максимум один раз за вызов.
func (w *Reliability) Invoke(ctx context.Context, cap *domain.Capability, agentID string, args []byte) (*Result, error) {
	// 1. Rate limit (Redis, при его недоступности — локальный)
	if err := w.limiter.Allow(ctx, agentID); err != nil {
		return nil, err
	}

	adapter, ok := w.adapters[cap.Adapter]
	if !ok {
		return nil, domain.E(domain.ErrAdapterFailure, "adapter %q is not bound", cap.Adapter)
	}

	// 2. Жесткий дедлайн: cap.Timeout, но не дольше дедлайна вызывающего
	// (WithTimeout сам не даст выйти за родительский дедлайн)
	timeout := cap.Timeout
	if timeout <= 0 || timeout > w.cfg.DefaultTimeout {
		timeout = w.cfg.DefaultTimeout
	}
	tCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var attempts int
	var finalData []byte

	call := func() error {
		attempts++
		if attempts > 1 {
			w.metrics.AdapterRetries.WithLabelValues(cap.Adapter).Inc()
		}
		var callErr error
		finalData, callErr = adapter.Execute(tCtx, cap.Name, args)
		return callErr
	}

	// 3. Circuit Breaker вокруг всей последовательности попыток
	_, err := w.breaker(cap.Adapter).Execute(func() (interface{}, error) {
		if !cap.Retryable() {
			return nil, call()
		}

		r := retry.New(
			retry.Context(tCtx),
			retry.Attempts(w.cfg.RetryAttempts),
			retry.MaxDelay(w.cfg.RetryMaxWait),
			retry.LastErrorOnly(true),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Бэкенд сам попросил паузу (Retry-After) — слушаемся
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				// Иначе стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)
		return nil, r.Do(call)
	})

	if err != nil {
		return nil, w.classify(err, cap, tCtx, attempts)
	}

	return &Result{Data: finalData, Attempts: attempts}, nil
}

// classify переводит любой сбой в стабильный вид таксономии.
// Адаптерная ошибка никогда не уходит наружу неклассифицированной.
func (w *Reliability) classify(err error, cap *domain.Capability, tCtx context.Context, attempts int) *domain.Error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.Wrap(domain.ErrCircuitOpen, err, "adapter %s is temporarily fenced off", cap.Adapter)

	case errors.Is(err, context.DeadlineExceeded), tCtx.Err() != nil:
		e := domain.Wrap(domain.ErrTimeout, err, "deadline exceeded after %d attempt(s)", attempts)
		// Таймаут write-операции: бэкенд мог успеть применить запись —
		// исход для вызывающего неизвестен, это не то же самое, что отказ
		e.OutcomeUnknown = cap.Risk == domain.RiskWrite
		return e

	default:
		w.logger.Warn("adapter call failed",
			zap.String("capability", cap.Name),
			zap.String("adapter", cap.Adapter),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return domain.Wrap(domain.ErrAdapterFailure, err, "backend call failed")
	}
}
