package policy

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/xela07ax/toolgate/internal/domain"
	"go.uber.org/zap"
)

// Enforcer — контракт движка политик для диспетчера.
type Enforcer interface {
	Authorize(session *domain.AgentSession, cap *domain.Capability, args []byte) domain.Decision
}

// RuleRepository — источник правил (Postgres). Используется только в Refresh().
type RuleRepository interface {
	GetAllRules(ctx context.Context) ([]domain.PolicyRule, error)
}

// MemoEnforcer держит правила в памяти, сгруппированные по роли и
// отсортированные по Ordinal. Горячий путь работает только с RAM;
// БД участвует в холодной загрузке и pub/sub обновлениях.
type MemoEnforcer struct {
	mu    sync.RWMutex
	rules map[domain.Role][]domain.PolicyRule

	repo   RuleRepository
	logger *zap.Logger
}

func NewMemoEnforcer(repo RuleRepository, logger *zap.Logger) *MemoEnforcer {
	return &MemoEnforcer{
		rules:  make(map[domain.Role][]domain.PolicyRule),
		repo:   repo,
		logger: logger.Named("enforcer"),
	}
}

// Authorize — Default Deny. Правила роли перебираются в стабильном порядке;
// побеждает первое правило, которое совпало по имени И прошло все проверки
// (write-грант, ограничения аргументов). Ни одного такого — отказ.
// Одинаковые входы всегда дают одинаковое решение: это нужно для
// реплея аудита и воспроизводимых тестов.
func (e *MemoEnforcer) Authorize(session *domain.AgentSession, cap *domain.Capability, args []byte) domain.Decision {
	e.mu.RLock()
	rules := e.rules[session.Role]
	e.mu.RUnlock()

	// Аргументы парсим один раз, только если у роли вообще есть правила
	var argMap map[string]interface{}
	if len(rules) > 0 && len(args) > 0 {
		// Невалидный JSON оставит argMap == nil: правила с условиями не пройдут
		_ = json.Unmarshal(args, &argMap)
	}

	reason := "no rule grants this capability to role " + string(session.Role)

	for i := range rules {
		rule := &rules[i]
		if !rule.MatchesName(cap.Name) {
			continue
		}

		if rule.Effect == domain.EffectDeny {
			return domain.Decision{Allowed: false, RuleID: rule.ID, Reason: "explicitly denied by rule"}
		}

		// Write-класс требует явного write-гранта: правило без него
		// не совпадает, даже если шаблон подошел.
		if cap.Risk == domain.RiskWrite && !rule.AllowWrite {
			reason = "capability is write-class and rule grants read only"
			continue
		}

		if err := rule.CheckConstraints(argMap); err != nil {
			reason = err.Error()
			continue
		}

		return domain.Decision{Allowed: true, RuleID: rule.ID, Reason: "granted"}
	}

	return domain.Decision{Allowed: false, Reason: reason}
}

// Replace атомарно подменяет весь набор правил (и фиксирует порядок).
func (e *MemoEnforcer) Replace(all []domain.PolicyRule) {
	next := make(map[domain.Role][]domain.PolicyRule)
	for _, r := range all {
		next[r.Role] = append(next[r.Role], r)
	}
	// Стабильный порядок: Ordinal, при равенстве — ID
	for role := range next {
		rs := next[role]
		sort.Slice(rs, func(i, j int) bool {
			if rs[i].Ordinal != rs[j].Ordinal {
				return rs[i].Ordinal < rs[j].Ordinal
			}
			return rs[i].ID < rs[j].ID
		})
		next[role] = rs
	}

	e.mu.Lock()
	e.rules = next
	e.mu.Unlock()
}

// Refresh — холодная загрузка всех правил из БД (старт и pub/sub сигнал).
func (e *MemoEnforcer) Refresh(ctx context.Context) error {
	all, err := e.repo.GetAllRules(ctx)
	if err != nil {
		return err
	}
	e.Replace(all)
	e.logger.Info("policy cache refreshed", zap.Int("count", len(all)))
	return nil
}

// Permits — может ли роль в принципе вызвать capability (для интроспекции
// каталога; ограничения аргументов здесь не применяются).
func (e *MemoEnforcer) Permits(role domain.Role, cap *domain.Capability) bool {
	e.mu.RLock()
	rules := e.rules[role]
	e.mu.RUnlock()

	for i := range rules {
		rule := &rules[i]
		if !rule.MatchesName(cap.Name) {
			continue
		}
		if rule.Effect == domain.EffectDeny {
			return false
		}
		if cap.Risk == domain.RiskWrite && !rule.AllowWrite {
			continue
		}
		return true
	}
	return false
}
