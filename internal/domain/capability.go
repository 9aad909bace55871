package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// RiskClass разделяет инструменты на чтение и запись.
// Разделение структурное: write-capability требует явного write-гранта в правиле,
// права на запись никогда не выводятся из права на чтение.
type RiskClass string

const (
	RiskRead  RiskClass = "read"
	RiskWrite RiskClass = "write"
)

// Имена вида "web.search", "db.read_orders" — namespace.operation
var capabilityNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)

// Capability — одно определение инструмента в каталоге шлюза.
// Принадлежит реестру; для всех остальных компонентов — read-only.
type Capability struct {
	Name       string    `json:"name"`       // Уникальное, с неймспейсом: "web.search"
	Risk       RiskClass `json:"risk"`       // read | write
	Adapter    string    `json:"adapter"`    // Имя привязанного бэкенд-адаптера
	Idempotent bool      `json:"idempotent"` // Все read идемпотентны; write — только помеченные явно

	ArgsSchema   json.RawMessage `json:"args_schema"`   // JSON Schema аргументов
	ResultSchema json.RawMessage `json:"result_schema"` // JSON Schema результата (для интроспекции)

	Timeout    time.Duration `json:"timeout"`     // Собственный дедлайн инструмента
	MaxPayload int64         `json:"max_payload"` // Лимит размера аргументов в байтах

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate проверяет определение на этапе загрузки (fail fast, не в момент вызова).
func (c *Capability) Validate() error {
	if !capabilityNameRe.MatchString(c.Name) {
		return fmt.Errorf("capability %q: name must be namespaced like \"web.search\"", c.Name)
	}
	if c.Risk != RiskRead && c.Risk != RiskWrite {
		return fmt.Errorf("capability %q: unknown risk class %q", c.Name, c.Risk)
	}
	if c.Adapter == "" {
		return fmt.Errorf("capability %q: adapter binding is required", c.Name)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("capability %q: timeout must be positive", c.Name)
	}
	if c.MaxPayload <= 0 {
		return fmt.Errorf("capability %q: max_payload must be positive", c.Name)
	}
	return nil
}

// Retryable — можно ли автоматически повторять вызов.
// Чтение безопасно всегда; запись — только при явной пометке idempotent (upsert-by-key и т.п.).
func (c *Capability) Retryable() bool {
	return c.Risk == RiskRead || c.Idempotent
}
