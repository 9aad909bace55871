package audit

import "time"

// Outcome — терминальный исход вызова в аудите.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDenied    Outcome = "denied"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// StateChange — одна смена состояния машины вызова с меткой времени.
// Полная последовательность позволяет восстановить жизнь вызова
// при комплаенс-разборе.
type StateChange struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// Record — неизменяемая запись о завершенном вызове. Append-only:
// шлюз никогда не обновляет и не удаляет записи.
type Record struct {
	ID        string `json:"id"`       // UUID записи
	TraceID   string `json:"trace_id"` // Сквозной ID запроса
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`

	AgentID    string `json:"agent_id"`
	TenantID   string `json:"tenant_id"`
	Role       string `json:"role"`
	Capability string `json:"capability"`

	Outcome   Outcome `json:"outcome"`
	ErrorKind string  `json:"error_kind,omitempty"`
	Error     string  `json:"error,omitempty"`

	// OutcomeUnknown: таймаут write-операции, бэкенд мог применить запись
	OutcomeUnknown bool `json:"outcome_unknown,omitempty"`

	Attempts   int           `json:"attempts"` // Сколько раз трогали адаптер (0 при отказе)
	DurationMs int64         `json:"duration_ms"`
	Trail      []StateChange `json:"trail"` // Received -> ... -> терминальное

	Timestamp time.Time `json:"timestamp"`
}
