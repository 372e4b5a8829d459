package ws

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xela07ax/zeus-orchestrator/internal/bus"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"go.uber.org/zap"
)

// Dispatcher — подмножество диспетчера, нужное WebSocket-клиентам.
type Dispatcher interface {
	Submit(ctx context.Context, req domain.CommandRequest) (domain.DispatchResult, error)
}

// inboundMessage — конверт клиентского сообщения по persistent-соединению.
type inboundMessage struct {
	Type        string                 `json:"type"` // subscribe | unsubscribe | command
	Channel     string                 `json:"channel,omitempty"`
	Command     string                 `json:"command,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	ActorRole   string                 `json:"actor_role,omitempty"`
	Approvals   int                    `json:"approvals,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
}

// commandResponse — ответ на команду, пришедшую по WebSocket.
type commandResponse struct {
	Type      string      `json:"type"` // Всегда "command_response"
	Success   bool        `json:"success"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Handler принимает подписочные соединения и гоняет по ним два потока:
// события шины наружу и команды клиента внутрь (через общий диспетчер).
type Handler struct {
	bus        *bus.Bus
	dispatcher Dispatcher
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func NewHandler(b *bus.Bus, d Dispatcher, logger *zap.Logger) *Handler {
	return &Handler{
		bus:        b,
		dispatcher: d,
		logger:     logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Фронт ходит с другого origin'а (dev-режим), решение об
			// ограничении CORS живет на внешнем периметре
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve — GET /ws. Держит соединение до разрыва; любой выход из цикла
// чтения снимает наблюдателя со всех каналов.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	obs := &observer{id: uuid.New().String(), conn: conn}
	h.bus.Connect(obs)

	defer func() {
		h.bus.Disconnect(obs)
		conn.Close()
	}()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.String("observer", obs.id), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			h.bus.Subscribe(obs, defaultChannel(msg.Channel))
		case "unsubscribe":
			h.bus.Unsubscribe(obs, defaultChannel(msg.Channel))
		case "command":
			h.handleCommand(r.Context(), obs, msg)
		default:
			h.logger.Warn("unknown message type",
				zap.String("observer", obs.id),
				zap.String("type", msg.Type))
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, obs *observer, msg inboundMessage) {
	req := domain.CommandRequest{
		Command:     msg.Command,
		Parameters:  msg.Parameters,
		Actor:       domain.Actor{Role: msg.ActorRole, Approvals: msg.Approvals},
		Environment: msg.Environment,
		RequestID:   msg.RequestID,
	}
	if req.Environment == "" {
		req.Environment = "development"
	}

	result, _ := h.dispatcher.Submit(ctx, req)

	resp := commandResponse{
		Type:      "command_response",
		Success:   result.Success,
		Error:     result.Error,
		Warnings:  result.Warnings,
		RequestID: result.RequestID,
	}
	if len(result.Result) > 0 {
		resp.Result = result.Result
	}

	if err := obs.writeJSON(resp); err != nil {
		h.logger.Warn("failed to deliver command response",
			zap.String("observer", obs.id), zap.Error(err))
		h.bus.Disconnect(obs)
	}
}

func defaultChannel(channel string) string {
	if channel == "" {
		return "general"
	}
	return channel
}
