package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind — стабильная таксономия ошибок шлюза. Уходит на провод
// в поле error.kind и в аудит, поэтому значения менять нельзя.
type ErrorKind string

const (
	ErrUnknownCapability ErrorKind = "unknown_capability"
	ErrPolicyDenied      ErrorKind = "policy_denied"
	ErrInvalidToken      ErrorKind = "invalid_token"
	ErrPayloadTooLarge   ErrorKind = "payload_too_large"
	ErrInvalidArgs       ErrorKind = "invalid_args"
	ErrAdapterFailure    ErrorKind = "adapter_failure"
	ErrTimeout           ErrorKind = "timeout"
	ErrCircuitOpen       ErrorKind = "circuit_open"
	ErrRateLimited       ErrorKind = "rate_limited"
	ErrAuditDegraded     ErrorKind = "audit_degraded" // Никогда не фейлит вызов, только лог/метрика
)

// Error — структурная ошибка шлюза. Адаптерные сбои всегда
// классифицируются в один из Kind до выхода наружу.
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`

	// OutcomeUnknown — таймаут write-операции: бэкенд мог успеть применить
	// запись, поэтому исход для вызывающего неизвестен, а не "ошибка".
	OutcomeUnknown bool `json:"outcome_unknown,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// E создает ошибку шлюза с причиной для ответа и аудита.
func E(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap сохраняет исходную ошибку для логов, не раскрывая её агенту.
func Wrap(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf вытаскивает Kind из любой ошибки; неклассифицированное — adapter_failure.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ErrAdapterFailure
}

// AsError приводит err к *Error, классифицируя неизвестные ошибки.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return Wrap(ErrAdapterFailure, err, "adapter call failed")
}

// HTTPStatus — маппинг таксономии на коды ответа шлюза.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrPolicyDenied:
		return http.StatusForbidden
	case ErrUnknownCapability:
		return http.StatusNotFound
	case ErrPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrInvalidArgs:
		return http.StatusBadRequest
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
