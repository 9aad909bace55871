package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PolicyEffect определяет, что делать с совпавшим запросом
type PolicyEffect string

const (
	EffectAllow PolicyEffect = "ALLOW" // Разрешить вызов
	EffectDeny  PolicyEffect = "DENY"  // Явный запрет (сильнее любого гранта ниже по списку)
)

// PolicyRule — правило доступа: роль -> шаблон имени capability + ограничения.
// Default Deny: роль без единого совпавшего правила не может ничего.
// Правила упорядочены (Ordinal из БД), поэтому авторизация детерминирована
// и воспроизводима при реплее аудита.
type PolicyRule struct {
	ID      string       `json:"id"`
	Role    Role         `json:"role"`
	Pattern string       `json:"pattern"` // Точное имя ("db.read_orders") или префикс ("web.*")
	Effect  PolicyEffect `json:"effect"`

	// AllowWrite — явный грант на write-класс. Правило без него
	// никогда не пропустит write-capability, даже при совпадении шаблона.
	AllowWrite bool `json:"allow_write"`

	// Conditions — ограничения уровня аргументов, напр.
	// {"constraints":[{"field":"table","in":["orders"]},{"field":"path","prefix":"ingest/"}]}
	Conditions json.RawMessage `json:"conditions,omitempty"`

	Ordinal   int       `json:"ordinal"` // Стабильный порядок вычисления
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchesName проверяет совпадение имени capability с шаблоном правила.
// Поддерживаются две формы: точное имя и префикс неймспейса "web.*".
func (r *PolicyRule) MatchesName(name string) bool {
	if ns, ok := strings.CutSuffix(r.Pattern, ".*"); ok {
		return strings.HasPrefix(name, ns+".")
	}
	return r.Pattern == name
}

// Constraint — один предикат над полем аргументов верхнего уровня.
// Задан ровно один из видов проверки.
type Constraint struct {
	Field  string   `json:"field"`
	In     []string `json:"in,omitempty"`     // Значение входит в список
	Prefix string   `json:"prefix,omitempty"` // Строка начинается с префикса
	Max    *float64 `json:"max,omitempty"`    // Число не превышает порог
}

type constraintSet struct {
	Constraints []Constraint `json:"constraints"`
}

// CheckConstraints применяет ограничения правила к аргументам вызова.
// Все перечисленные предикаты должны пройти; битый JSON условий — это отказ
// правила, а не молчаливый ALLOW.
func (r *PolicyRule) CheckConstraints(args map[string]interface{}) error {
	if len(r.Conditions) == 0 {
		return nil
	}

	var set constraintSet
	if err := json.Unmarshal(r.Conditions, &set); err != nil {
		return fmt.Errorf("rule %s: malformed conditions: %w", r.ID, err)
	}

	for _, c := range set.Constraints {
		if err := c.check(args); err != nil {
			return err
		}
	}
	return nil
}

func (c *Constraint) check(args map[string]interface{}) error {
	raw, ok := args[c.Field]
	if !ok {
		return fmt.Errorf("constraint on %q: field is absent", c.Field)
	}

	switch {
	case len(c.In) > 0:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("constraint on %q: expected string", c.Field)
		}
		for _, allowed := range c.In {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("constraint on %q: value %q is not in the allowed set", c.Field, s)

	case c.Prefix != "":
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("constraint on %q: expected string", c.Field)
		}
		if !strings.HasPrefix(s, c.Prefix) {
			return fmt.Errorf("constraint on %q: value %q lacks required prefix %q", c.Field, s, c.Prefix)
		}
		return nil

	case c.Max != nil:
		// В JSON числа всегда парсятся в float64
		v, ok := raw.(float64)
		if !ok {
			return fmt.Errorf("constraint on %q: expected number", c.Field)
		}
		if v > *c.Max {
			return fmt.Errorf("constraint on %q: %v exceeds limit %v", c.Field, v, *c.Max)
		}
		return nil
	}

	return fmt.Errorf("constraint on %q: no predicate defined", c.Field)
}

// Decision — результат авторизации. Причина попадает в аудит как есть.
type Decision struct {
	Allowed bool   `json:"allowed"`
	RuleID  string `json:"rule_id,omitempty"`
	Reason  string `json:"reason"`
}
