package domain

import "time"

// Имена каналов, по которым шина группирует подписчиков.
// Канал исхода команды задается в таблице маршрутизации (per-route).
const (
	ChannelInfrastructure = "infrastructure"
	ChannelDeployments    = "deployments"
	ChannelCosts          = "costs"
	ChannelAlerts         = "alerts"
)

// Event — сообщение, уходящее подписчикам канала.
// Type строится как "<domain>_update", чтобы клиент мог мультиплексировать.
type Event struct {
	Type      string                 `json:"type"`
	Channel   string                 `json:"channel"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewUpdateEvent собирает стандартное событие исхода для канала.
func NewUpdateEvent(channel string, data map[string]interface{}) Event {
	return Event{
		Type:      channel + "_update",
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
