package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"github.com/xela07ax/zeus-orchestrator/internal/engine"
	"github.com/xela07ax/zeus-orchestrator/internal/infra/auth"
)

// Dispatcher — контракт движка для HTTP-слоя.
type Dispatcher interface {
	Submit(ctx context.Context, req domain.CommandRequest) (domain.DispatchResult, error)
}

type CommandHandler struct {
	dispatcher Dispatcher
}

func NewCommandHandler(d Dispatcher) *CommandHandler {
	return &CommandHandler{dispatcher: d}
}

// executeRequest — тело POST /api/v1/commands/execute.
// Личность актора берется из JWT, из тела приходят только подтверждения.
type executeRequest struct {
	Command     string                 `json:"command"`
	Parameters  map[string]interface{} `json:"parameters"`
	Environment string                 `json:"environment"`
	Approvals   int                    `json:"approvals"`
	RequestID   string                 `json:"request_id"`
}

// Execute прогоняет команду через guardrail'ы, роутер и бэкенд.
// Статус ответа выбирается по типу ошибки движка, тело всегда DispatchResult.
func (h *CommandHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		http.Error(w, "Command is required", http.StatusBadRequest)
		return
	}
	if req.Environment == "" {
		req.Environment = "development"
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	cmd := domain.CommandRequest{
		Command:     req.Command,
		Parameters:  req.Parameters,
		Environment: req.Environment,
		RequestID:   req.RequestID,
		TraceID:     TraceID(r),
		Actor: domain.Actor{
			ID:        auth.UserID(r.Context()),
			Role:      auth.Role(r.Context()),
			Approvals: req.Approvals,
		},
	}

	result, err := h.dispatcher.Submit(r.Context(), cmd)
	writeResult(w, result, err)
}

// writeResult транслирует таксономию ошибок движка в HTTP-статусы.
func writeResult(w http.ResponseWriter, result domain.DispatchResult, err error) {
	status := http.StatusOK
	if err != nil {
		var denied *engine.PolicyDeniedError
		var backend *engine.BackendUnavailableError
		switch {
		case errors.As(err, &denied):
			status = http.StatusForbidden
		case errors.Is(err, engine.ErrRouteNotFound):
			status = http.StatusNotFound
		case errors.As(err, &backend):
			status = http.StatusBadGateway
		default:
			status = http.StatusInternalServerError
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

// TraceID достает сквозной идентификатор из заголовка или генерирует новый.
func TraceID(r *http.Request) string {
	if id := r.Header.Get("X-Trace-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}
