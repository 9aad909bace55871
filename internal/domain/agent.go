package domain

import "time"

type AgentStatus string

const (
	StatusActive  AgentStatus = "active"  // Полный доступ по политикам
	StatusBlocked AgentStatus = "blocked" // Kill-switch: запрет до снятия оператором
)

// Agent — запись об агенте в Control Plane. Нужна консоли для выпуска
// токенов и блокировок; сам шлюз хранит только in-memory блок-лист.
type Agent struct {
	ID       string      `json:"id"`   // UUID
	Name     string      `json:"name"` // Человекочитаемое имя ("research-bot-3")
	Role     Role        `json:"role"`
	TenantID string      `json:"tenant_id"`
	Status   AgentStatus `json:"status"`

	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
