package domain

import "encoding/json"

// Actor описывает, от чьего имени пришла команда.
// Роль и количество собранных апрувов приходят прямо в конверте запроса.
type Actor struct {
	ID        string `json:"id,omitempty"` // Заполняется из токена, если есть
	Role      string `json:"role"`
	Approvals int    `json:"approvals"`
}

// CommandRequest — конверт одной команды. Живет ровно один вызов пайплайна.
type CommandRequest struct {
	Command     string                 `json:"command"`     // e.g. "scale", "deploy canary"
	Parameters  map[string]interface{} `json:"parameters"`  // Произвольный payload для бэкенда
	Actor       Actor                  `json:"actor"`       // Кто делает
	Environment string                 `json:"environment"` // "production", "staging", "development"
	RequestID   string                 `json:"request_id"`  // Эхо для корреляции на клиенте
	TraceID     string                 `json:"-"`           // Сквозной ID, из middleware
}

// DispatchResult — ответ диспетчера вызывающей стороне.
// Error заполнен только при Success == false.
type DispatchResult struct {
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"` // Не блокирующие замечания guardrail'ов
	RequestID string          `json:"request_id,omitempty"`
}
