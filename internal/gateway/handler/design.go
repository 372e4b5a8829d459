package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"github.com/xela07ax/zeus-orchestrator/internal/engine"
	"github.com/xela07ax/zeus-orchestrator/internal/infra/auth"
)

// DesignPipeline — прием дизайна в асинхронную кодогенерацию.
type DesignPipeline interface {
	Submit(ctx context.Context, req domain.DesignRequest) (*domain.DesignRecord, domain.Verdict, error)
}

// DesignReader — чтение состояния дизайнов из БД.
type DesignReader interface {
	GetDesign(ctx context.Context, id string) (*domain.DesignRecord, error)
	ListDesigns(ctx context.Context, limit int) ([]domain.DesignRecord, error)
}

type DesignHandler struct {
	pipeline DesignPipeline
	reader   DesignReader
}

func NewDesignHandler(p DesignPipeline, r DesignReader) *DesignHandler {
	return &DesignHandler{pipeline: p, reader: r}
}

type designResponse struct {
	Design      *domain.DesignRecord `json:"design"`
	Warnings    []string             `json:"warnings,omitempty"`
	Suggestions []string             `json:"suggestions,omitempty"`
}

// Create валидирует дизайн целиком и ставит кодогенерацию в очередь.
// POST /api/v1/infrastructure/design
func (h *DesignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.DesignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || len(req.Components) == 0 {
		http.Error(w, "Design name and components are required", http.StatusBadRequest)
		return
	}
	req.Actor = domain.Actor{
		ID:   auth.UserID(r.Context()),
		Role: auth.Role(r.Context()),
	}

	rec, verdict, err := h.pipeline.Submit(r.Context(), req)
	if err != nil {
		var denied *engine.PolicyDeniedError
		if errors.As(err, &denied) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   denied.Reason,
			})
			return
		}
		http.Error(w, "Failed to accept design", http.StatusInternalServerError)
		return
	}

	// Запись закоммичена, генерация догонит статус асинхронно
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(designResponse{
		Design:      rec,
		Warnings:    verdict.Warnings,
		Suggestions: verdict.Suggestions,
	})
}

// Get возвращает текущее состояние дизайна (включая pr_url после генерации).
// GET /api/v1/infrastructure/design/{id}
func (h *DesignHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Design ID is required", http.StatusBadRequest)
		return
	}

	rec, err := h.reader.GetDesign(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to retrieve design", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "Design not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// List последние дизайны для обзорной панели.
// GET /api/v1/infrastructure/designs?limit=50
func (h *DesignHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.reader.ListDesigns(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to fetch designs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
