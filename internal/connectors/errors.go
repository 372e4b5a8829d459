package connectors

import (
	"fmt"
	"time"
)

// ThrottleError сигнализирует, что бэкенд попросил сбавить темп (429 + Retry-After).
// Диспетчер не ретраит команды сам — ошибка доносится до вызывающего как есть,
// с подсказкой, когда повторять.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error {
	return e.Cause
}
