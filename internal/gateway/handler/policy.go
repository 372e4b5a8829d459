package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
)

// PolicyStore — доступ к действующему снапшоту политики и его горячей перезагрузке.
type PolicyStore interface {
	Current() *domain.PolicyConfig
	Reload() error
	NotifyUpdate(ctx context.Context) error
}

type PolicyHandler struct {
	store  PolicyStore
	logger *zap.Logger
}

func NewPolicyHandler(store PolicyStore, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{store: store, logger: logger.Named("policy-handler")}
}

// Get отдает действующую конфигурацию guardrail'ов.
// GET /api/v1/policy
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.store.Current())
}

// Reload перечитывает политику из источника и рассылает сигнал остальным
// инстансам через Redis. Невалидная политика отклоняется, действующая остается.
// POST /api/v1/policy/reload
func (h *PolicyHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reload(); err != nil {
		http.Error(w, "Policy reload rejected: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	// Сигнал другим инстансам. Локальная перезагрузка уже прошла,
	// поэтому сбой Redis не делает запрос неуспешным.
	if err := h.store.NotifyUpdate(r.Context()); err != nil {
		h.logger.Warn("failed to notify peers about policy update", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.store.Current())
}
