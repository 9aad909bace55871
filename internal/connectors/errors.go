package connectors

import (
	"fmt"
	"time"
)

// ThrottleError сигнализирует Resilience-слою, что бэкенд просит паузу
// (например, адаптер считал заголовок Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
