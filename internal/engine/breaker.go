package engine

import (
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/toolgate/internal/infra"
)

// adapterBreaker — предохранитель одного адаптера. Сам автомат состояний
// {closed, open, half-open} — это gobreaker; поверх него — эскалация
// cool-down: неудачная проба в half-open переоткрывает цепь с удвоенной
// (но ограниченной потолком) паузой, удачная — сбрасывает паузу к базе.
type adapterBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker

	base time.Duration
	max  time.Duration

	cooldown  atomic.Int64 // Текущий cool-down, ns
	holdUntil atomic.Int64 // До какого момента (unixnano) держим цепь открытой сверх базы

	metrics *Metrics
}

func newAdapterBreaker(name string, cfg infra.EngineConfig, metrics *Metrics) *adapterBreaker {
	b := &adapterBreaker{
		name:    name,
		base:    cfg.CBCooldown,
		max:     cfg.CBMaxCooldown,
		metrics: metrics,
	}
	b.cooldown.Store(int64(cfg.CBCooldown))

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.CBMaxRequests, // Пробные запросы в half-open
		Interval:    cfg.CBInterval,    // Окно подсчета отказов
		Timeout:     cfg.CBCooldown,    // Базовый cool-down до half-open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CBFailures
		},
		OnStateChange: b.stateChanged,
	})
	return b
}

func (b *adapterBreaker) stateChanged(_ string, from, to gobreaker.State) {
	switch {
	case to == gobreaker.StateOpen && from == gobreaker.StateHalfOpen:
		// Проба провалилась: удваиваем паузу, но не выше потолка
		next := 2 * b.cooldown.Load()
		if next > int64(b.max) {
			next = int64(b.max)
		}
		b.cooldown.Store(next)
		b.holdUntil.Store(time.Now().Add(time.Duration(next)).UnixNano())
	case to == gobreaker.StateClosed:
		// Бэкенд ожил: возвращаемся к базовому cool-down
		b.cooldown.Store(int64(b.base))
		b.holdUntil.Store(0)
	}

	if b.metrics != nil {
		b.metrics.CircuitBreakerState.WithLabelValues(b.name).Set(breakerStateValue(to))
	}
}

// Execute — fail fast без обращения к бэкенду, пока действует эскалированная
// пауза; дальше решает сам gobreaker.
func (b *adapterBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	if hold := b.holdUntil.Load(); hold > 0 && time.Now().UnixNano() < hold {
		return nil, gobreaker.ErrOpenState
	}
	return b.cb.Execute(fn)
}

func (b *adapterBreaker) State() gobreaker.State {
	if hold := b.holdUntil.Load(); hold > 0 && time.Now().UnixNano() < hold {
		return gobreaker.StateOpen
	}
	return b.cb.State()
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
