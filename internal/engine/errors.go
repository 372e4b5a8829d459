package engine

import (
	"errors"
	"fmt"
)

// Таксономия отказов диспетчера. Классы различимы для вызывающего:
// отказ политики и отсутствие маршрута — ошибки клиента/конфигурации,
// недоступность бэкенда — инфраструктурный сбой, который клиент может ретраить.
var ErrRouteNotFound = errors.New("no backend for command")

// PolicyDeniedError — guardrail отклонил команду. Никогда не ретраится,
// Reason доносится до клиента дословно.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return e.Reason
}

// BackendUnavailableError — таймаут или транспортный сбой при вызове бэкенда.
// Внутренние детали наружу не утекают, только сообщение.
type BackendUnavailableError struct {
	Service string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend %s failed: %v", e.Service, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}
