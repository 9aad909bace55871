package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/xela07ax/toolgate/internal/audit"
	"github.com/xela07ax/toolgate/internal/domain"
	"github.com/xela07ax/toolgate/internal/infra/auth"
	"github.com/xela07ax/toolgate/internal/policy"
	"github.com/xela07ax/toolgate/internal/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Core — ядро шлюза: единый конвейер обработки вызова инструмента для всех
// транспортов (HTTP и gRPC идут через один ProcessCall). Машина состояний
// вызова описана в call.go; каждый вызов дает ровно один ответ и ровно
// одну запись аудита, каким бы ни был исход.
type Core struct {
	registry  *registry.Registry
	pdp       policy.Enforcer
	invoker   Invoker
	auditor   audit.Recorder
	blocklist *BlocklistManager
	metrics   *Metrics
	logger    *zap.Logger
}

func NewCore(
	reg *registry.Registry,
	pdp policy.Enforcer,
	invoker Invoker,
	auditor audit.Recorder,
	blocklist *BlocklistManager,
	metrics *Metrics,
	logger *zap.Logger,
) *Core {
	return &Core{
		registry:  reg,
		pdp:       pdp,
		invoker:   invoker,
		auditor:   auditor,
		blocklist: blocklist,
		metrics:   metrics,
		logger:    logger.Named("core"),
	}
}

var tracer = otel.Tracer("toolgate/engine")

// ProcessCall проводит вызов через весь конвейер:
// Received -> Authorizing (реестр + политики) -> Authorized (лимит размера)
// -> Executing (Resilience + адаптер) -> терминальное состояние.
// Токен уже проверен транспортным слоем — сюда приходит готовая сессия.
func (u *Core) ProcessCall(ctx context.Context, session *domain.AgentSession, capName string, args []byte) ([]byte, *domain.Error) {
	u.metrics.TotalRequests.WithLabelValues(string(session.Role), capName).Inc()

	ctx, span := tracer.Start(ctx, "toolgate.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", session.AgentID),
		attribute.String("agent.role", string(session.Role)),
		attribute.String("capability", capName),
	)

	call := newToolCall(extractTraceID(ctx), session, capName, args, span)

	// 0. Kill-switch: самая дешевая проверка (in-memory), раньше политик
	if u.blocklist != nil && u.blocklist.IsBlocked(session.AgentID) {
		return nil, u.deny(call, 0, domain.E(domain.ErrPolicyDenied, "agent %s is blocked by operator", session.AgentID))
	}

	// 1. Received -> Authorizing: резолвим capability по имени.
	// Неизвестный инструмент — отдельная причина отказа в аудите,
	// не смешиваем с запретом политики.
	call.transition(StateAuthorizing)
	cap, ok := u.registry.Resolve(capName)
	if !ok {
		return nil, u.deny(call, 0, domain.E(domain.ErrUnknownCapability, "unknown tool: %s", capName))
	}

	// 2. Политики (Default Deny)
	decision := u.pdp.Authorize(session, cap, args)
	if !decision.Allowed {
		return nil, u.deny(call, 0, domain.E(domain.ErrPolicyDenied, "%s", decision.Reason))
	}

	// 3. Authorizing -> Authorized: лимит размера и схема аргументов,
	// до какого-либо обращения к адаптеру
	call.transition(StateAuthorized)
	if int64(len(args)) > cap.MaxPayload {
		return nil, u.deny(call, 0, domain.E(domain.ErrPayloadTooLarge,
			"payload %d bytes exceeds limit %d for %s", len(args), cap.MaxPayload, capName))
	}
	if err := u.registry.ValidateArgs(capName, args); err != nil {
		return nil, u.deny(call, 0, domain.Wrap(domain.ErrInvalidArgs, err, "arguments rejected by schema"))
	}

	// 4. Authorized -> Executing: единственная блокирующая точка конвейера
	call.transition(StateExecuting)
	res, invErr := u.invoker.Invoke(ctx, cap, session.AgentID, args)
	if invErr != nil {
		e := domain.AsError(invErr)
		switch e.Kind {
		case domain.ErrTimeout:
			u.finish(call, StateTimedOut, audit.OutcomeTimedOut, attemptsOf(res), e)
		default:
			u.finish(call, StateFailed, audit.OutcomeFailed, attemptsOf(res), e)
		}
		return nil, e
	}

	// 5. Терминальный успех
	u.finish(call, StateSucceeded, audit.OutcomeSucceeded, res.Attempts, nil)
	return res.Data, nil
}

// deny — терминальный отказ до касания адаптера (attempts всегда 0).
func (u *Core) deny(call *ToolCall, attempts int, e *domain.Error) *domain.Error {
	u.finish(call, StateDenied, audit.OutcomeDenied, attempts, e)
	return e
}

// finish фиксирует терминальный переход, метрики и единственную запись аудита.
func (u *Core) finish(call *ToolCall, state CallState, outcome audit.Outcome, attempts int, e *domain.Error) {
	call.transition(state)

	duration := time.Since(call.StartedAt).Seconds()
	u.metrics.RequestDuration.WithLabelValues(
		string(call.Session.Role), call.Capability, string(outcome),
	).Observe(duration)
	if e != nil {
		u.metrics.ErrorTotal.WithLabelValues(string(e.Kind)).Inc()
		call.span.RecordError(e)
	}

	// Асинхронная запись: аудит не задерживает ответ агенту
	u.auditor.Record(call.record(outcome, attempts, e))
}

func attemptsOf(res *Result) int {
	if res == nil {
		return 0
	}
	return res.Attempts
}

// --- HTTP транспорт ---

type invokeRequest struct {
	Capability string          `json:"capability"`
	Args       json.RawMessage `json:"args"`
}

type invokeResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *domain.Error   `json:"error,omitempty"`
}

// HandleInvoke — POST /v1/invoke. Сессию уже положил auth middleware.
func (u *Core) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, domain.E(domain.ErrInvalidToken, "no agent session in request context"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req invokeRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Capability == "" {
		writeError(w, domain.E(domain.ErrInvalidArgs, "body must be {\"capability\": ..., \"args\": {...}}"))
		return
	}
	args := req.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	resp, callErr := u.ProcessCall(r.Context(), session, req.Capability, args)
	if callErr != nil {
		writeError(w, callErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invokeResponse{Result: resp})
}

// HandleListCapabilities — GET /v1/capabilities: каталог, отфильтрованный
// по роли вызывающего (интроспекция своего allow-листа).
func (u *Core) HandleListCapabilities(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, domain.E(domain.ErrInvalidToken, "no agent session in request context"))
		return
	}

	type capView struct {
		Name       string           `json:"name"`
		Risk       domain.RiskClass `json:"risk"`
		ArgsSchema json.RawMessage  `json:"args_schema,omitempty"`
	}

	visible := make([]capView, 0)
	for _, c := range u.registry.List() {
		if u.permits(session.Role, &c) {
			visible = append(visible, capView{Name: c.Name, Risk: c.Risk, ArgsSchema: c.ArgsSchema})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"capabilities": visible})
}

func (u *Core) permits(role domain.Role, c *domain.Capability) bool {
	type permitter interface {
		Permits(role domain.Role, cap *domain.Capability) bool
	}
	if p, ok := u.pdp.(permitter); ok {
		return p.Permits(role, c)
	}
	return false
}

func writeError(w http.ResponseWriter, e *domain.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.HTTPStatus())
	json.NewEncoder(w).Encode(invokeResponse{Error: e})
}
