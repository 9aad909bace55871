package domain

import (
	"fmt"
	"time"
)

// Role — закрытый набор ролей агентов. Новые роли добавляются в это перечисление
// и в таблицу правил, без новых типов и иерархий наследования.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleResearch Role = "research"
	RoleRAG      Role = "rag"
	RoleDB       Role = "db"
	RoleIngest   Role = "ingest"
)

var knownRoles = map[Role]struct{}{
	RolePlanner:  {},
	RoleResearch: {},
	RoleRAG:      {},
	RoleDB:       {},
	RoleIngest:   {},
}

// ParseRole проверяет, что роль из токена входит в закрытый список.
// Неизвестная роль — это невалидный токен, а не "пустая" роль без прав.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("unknown agent role: %q", s)
	}
	return r, nil
}

// AgentSession — личность вызывающего агента на время одного запроса.
// Собирается валидатором токена, неизменяема, после ответа не хранится.
type AgentSession struct {
	AgentID   string    `json:"agent_id"`
	Role      Role      `json:"role"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id"` // Сквозной ID цепочки запросов агента
	RequestID string    `json:"request_id"` // ID конкретного запроса (от оркестратора или сгенерирован)
	ExpiresAt time.Time `json:"expires_at"`
}
