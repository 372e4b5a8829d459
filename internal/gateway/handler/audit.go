package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xela07ax/zeus-orchestrator/internal/gateway/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetRecords возвращает список событий аудита с поддержкой фильтрации
// GET /api/v1/audit?actor=...&action=...&limit=...
func (h *AuditHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	// Извлекаем фильтры из Query-параметров
	actor := r.URL.Query().Get("actor")
	action := r.URL.Query().Get("action")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.service.FetchRecords(r.Context(), actor, action, limit)
	if err != nil {
		http.Error(w, "Failed to fetch audit records", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
