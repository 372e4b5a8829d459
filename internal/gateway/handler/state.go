package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// BackendProber опрашивает /health подключенных MCP-сервисов.
type BackendProber interface {
	ServicesStatus(ctx context.Context) map[string]string
}

// BusStats — счетчики живых подписчиков шины событий.
type BusStats interface {
	ConnectionCount() int
}

type StateHandler struct {
	prober BackendProber
	bus    BusStats
}

func NewStateHandler(prober BackendProber, bus BusStats) *StateHandler {
	return &StateHandler{prober: prober, bus: bus}
}

// Get сводка состояния: здоровье бэкендов и число WebSocket-подключений.
// GET /api/v1/infrastructure/state
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	state := map[string]interface{}{
		"services":       h.prober.ServicesStatus(r.Context()),
		"ws_connections": h.bus.ConnectionCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}
