package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/toolgate/internal/audit"
	"github.com/xela07ax/toolgate/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CallState — состояние машины одного вызова.
// Received -> Authorizing -> Authorized -> Executing -> {Succeeded, Failed, Denied, TimedOut}.
// Терминальные состояния финальны; ретраи живут внутри Resilience-слоя
// и на этом уровне не видны.
type CallState string

const (
	StateReceived    CallState = "received"
	StateAuthorizing CallState = "authorizing"
	StateAuthorized  CallState = "authorized"
	StateExecuting   CallState = "executing"
	StateSucceeded   CallState = "succeeded"
	StateFailed      CallState = "failed"
	StateDenied      CallState = "denied"
	StateTimedOut    CallState = "timed_out"
)

// ToolCall — один вызов инструмента от получения до терминального состояния.
// Живет только в памяти обработчика; после записи в аудит не хранится.
type ToolCall struct {
	ID         string
	TraceID    string
	Session    *domain.AgentSession
	Capability string
	Args       []byte

	StartedAt time.Time
	trail     []audit.StateChange
	span      trace.Span
}

func newToolCall(traceID string, session *domain.AgentSession, capName string, args []byte, span trace.Span) *ToolCall {
	// При включенном трейсинге сквозным ID становится ID корневого спана
	if span != nil && span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}
	c := &ToolCall{
		ID:         uuid.New().String(),
		TraceID:    traceID,
		Session:    session,
		Capability: capName,
		Args:       args,
		StartedAt:  time.Now(),
		span:       span,
	}
	c.transition(StateReceived)
	return c
}

// transition фиксирует смену состояния в трейле и как событие спана.
func (c *ToolCall) transition(s CallState) {
	c.trail = append(c.trail, audit.StateChange{State: string(s), At: time.Now()})
	if c.span != nil {
		c.span.AddEvent("state."+string(s), trace.WithAttributes(
			attribute.String("call_id", c.ID),
		))
	}
}

// State — текущее (последнее зафиксированное) состояние.
func (c *ToolCall) State() CallState {
	if len(c.trail) == 0 {
		return StateReceived
	}
	return CallState(c.trail[len(c.trail)-1].State)
}

// record собирает единственный AuditRecord вызова. Вызывается ровно один
// раз, на терминальном переходе.
func (c *ToolCall) record(outcome audit.Outcome, attempts int, callErr *domain.Error) audit.Record {
	rec := audit.Record{
		ID:         uuid.New().String(),
		TraceID:    c.TraceID,
		RequestID:  c.Session.RequestID,
		SessionID:  c.Session.SessionID,
		AgentID:    c.Session.AgentID,
		TenantID:   c.Session.TenantID,
		Role:       string(c.Session.Role),
		Capability: c.Capability,
		Outcome:    outcome,
		Attempts:   attempts,
		DurationMs: time.Since(c.StartedAt).Milliseconds(),
		Trail:      c.trail,
		Timestamp:  c.StartedAt,
	}
	if callErr != nil {
		rec.ErrorKind = string(callErr.Kind)
		rec.Error = callErr.Reason
		rec.OutcomeUnknown = callErr.OutcomeUnknown
	}
	return rec
}
