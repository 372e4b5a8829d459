package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/zeus-orchestrator/internal/audit"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"github.com/xela07ax/zeus-orchestrator/internal/router"
	"go.uber.org/zap"
)

// Evaluator — guardrail-контур: чистое решение allow/deny по снапшоту политики.
type Evaluator interface {
	Evaluate(req domain.CommandRequest) domain.Verdict
}

// RouteResolver — таблица маршрутизации команд по бэкендам.
type RouteResolver interface {
	Route(command string) (router.Route, bool)
}

// Publisher — шина подписок (локальная или с межинстансным fanout'ом).
type Publisher interface {
	Publish(ctx context.Context, event domain.Event)
}

// Dispatcher — ядро пайплайна: evaluate -> route -> invoke -> audit -> publish.
// Шаги одной команды никогда не перемежаются; сколько угодно команд может идти
// параллельно. Команды не ретраятся: одна попытка с внятной атрибуцией отказа.
type Dispatcher struct {
	evaluator Evaluator
	routes    RouteResolver
	executor  ExecutionProvider
	auditor   audit.Sink
	publisher Publisher
	metrics   *Metrics
	logger    *zap.Logger
}

func NewDispatcher(
	evaluator Evaluator,
	routes RouteResolver,
	executor ExecutionProvider,
	auditor audit.Sink,
	publisher Publisher,
	metrics *Metrics,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		evaluator: evaluator,
		routes:    routes,
		executor:  executor,
		auditor:   auditor,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("dispatcher"),
	}
}

// Submit проводит команду через весь пайплайн. Возвращаемая ошибка типизирована
// (*PolicyDeniedError, ErrRouteNotFound, *BackendUnavailableError), чтобы транспорт
// мог выбрать статус ответа; DispatchResult при этом всегда пригоден для сериализации.
//
// Каждый исход аудируется ДО возврата ответа: след отражает ровно то,
// что увидел вызывающий.
func (d *Dispatcher) Submit(ctx context.Context, req domain.CommandRequest) (domain.DispatchResult, error) {
	start := time.Now()
	label := commandLabel(req.Command)

	status := "success"
	defer func() {
		d.metrics.CommandsTotal.WithLabelValues(label, status).Inc()
		d.metrics.RequestDuration.WithLabelValues(label, status).Observe(time.Since(start).Seconds())
	}()

	// 1. Guardrail'ы. Отказ — без вызова бэкенда и без publish.
	verdict := d.evaluator.Evaluate(req)
	if !verdict.Allowed {
		status = "denied"
		d.metrics.GuardrailDenials.WithLabelValues(label).Inc()
		d.logger.Warn("command blocked by guardrail",
			zap.String("command", req.Command),
			zap.String("actor", req.Actor.Role),
			zap.String("reason", verdict.Reason))

		d.auditor.Log(audit.Record{
			ID:           uuid.New().String(),
			TraceID:      req.TraceID,
			Actor:        actorID(req),
			Action:       audit.ActionGuardrailViolation,
			ResourceType: "command",
			Details: map[string]interface{}{
				"command":    req.Command,
				"reason":     verdict.Reason,
				"parameters": req.Parameters,
				"blocked":    true,
			},
			Success:    false,
			Error:      verdict.Reason,
			DurationMs: time.Since(start).Milliseconds(),
		})

		return failure(req, verdict.Reason), &PolicyDeniedError{Reason: verdict.Reason}
	}

	// 2. Маршрут. Отсутствие — ошибка клиента, бэкенды не трогаем.
	route, ok := d.routes.Route(req.Command)
	if !ok {
		status = "route_missing"
		d.auditor.Log(audit.Record{
			ID:           uuid.New().String(),
			TraceID:      req.TraceID,
			Actor:        actorID(req),
			Action:       audit.ActionCommand,
			ResourceType: "command",
			Details: map[string]interface{}{
				"command":    req.Command,
				"parameters": req.Parameters,
			},
			Success:    false,
			Error:      ErrRouteNotFound.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		})
		return failure(req, ErrRouteNotFound.Error()), ErrRouteNotFound
	}

	// 3. Одна попытка исполнения. Таймаут держит сам executor; блокировок шины
	// в этот момент никто не держит.
	result, execErr := d.executor.Call(ctx, route.Service, req.Command, req.Parameters)

	record := audit.Record{
		ID:           uuid.New().String(),
		TraceID:      req.TraceID,
		Actor:        actorID(req),
		Action:       audit.ActionCommand,
		ResourceType: "command",
		Details: map[string]interface{}{
			"command":     req.Command,
			"parameters":  req.Parameters,
			"service":     route.Service,
			"environment": req.Environment,
		},
		DurationMs: time.Since(start).Milliseconds(),
	}

	if execErr != nil {
		status = "backend_failed"
		record.Success = false
		record.Error = execErr.Error()
		d.auditor.Log(record)

		d.logger.Error("backend call failed",
			zap.String("command", req.Command),
			zap.String("service", route.Service),
			zap.Error(execErr))

		backendErr := &BackendUnavailableError{Service: route.Service, Err: execErr}
		return failure(req, backendErr.Error()), backendErr
	}

	// 4. Успех: аудит, событие в канал домена команды, ответ вызывающему.
	record.Success = true
	record.Details["result"] = rawToValue(result)
	d.auditor.Log(record)

	d.publisher.Publish(ctx, domain.NewUpdateEvent(route.Channel, map[string]interface{}{
		"command":     req.Command,
		"environment": req.Environment,
		"actor":       actorID(req),
		"result":      rawToValue(result),
		"request_id":  req.RequestID,
	}))

	return domain.DispatchResult{
		Success:   true,
		Result:    result,
		Warnings:  verdict.Warnings,
		RequestID: req.RequestID,
	}, nil
}

func failure(req domain.CommandRequest, msg string) domain.DispatchResult {
	return domain.DispatchResult{
		Success:   false,
		Error:     msg,
		RequestID: req.RequestID,
	}
}

func actorID(req domain.CommandRequest) string {
	if req.Actor.ID != "" {
		return req.Actor.ID
	}
	if req.Actor.Role != "" {
		return req.Actor.Role
	}
	return "unknown"
}

// rawToValue разворачивает JSON-ответ бэкенда для читаемости в аудите.
func rawToValue(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// commandLabel ограничивает кардинальность метрик первым токеном команды.
func commandLabel(command string) string {
	if i := strings.IndexAny(command, " -._/"); i > 0 {
		return command[:i]
	}
	if command == "" {
		return "empty"
	}
	return command
}
