package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// executeRequest — контракт бэкенда: POST /execute {command, parameters}.
type executeRequest struct {
	Command    string                 `json:"command"`
	Parameters map[string]interface{} `json:"parameters"`
}

type executeResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error,omitempty"`
}

// HTTPExecutor ходит в исполняющие сервисы по их base URL из конфига.
// Один общий http.Client: keep-alive переиспользуется между командами.
type HTTPExecutor struct {
	services map[string]string // имя сервиса -> base URL
	client   *http.Client
	timeout  time.Duration
}

func NewHTTPExecutor(services map[string]string, timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExecutor{
		services: services,
		client:   &http.Client{}, // Таймаут держим на контексте вызова, не на клиенте
		timeout:  timeout,
	}
}

// Call исполняет команду на названном сервисе.
// Защитный таймаут ставится здесь, даже если у вызывающего есть свой предел.
func (e *HTTPExecutor) Call(ctx context.Context, service, command string, params map[string]interface{}) (json.RawMessage, error) {
	baseURL, ok := e.services[service]
	if !ok {
		return nil, fmt.Errorf("backend %q is not configured", service)
	}

	body, err := json.Marshal(executeRequest{Command: command, Parameters: params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s unreachable: %w", service, err)
	}
	defer resp.Body.Close()

	// Бэкенд просит притормозить — транслируем Retry-After вызывающему
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 5 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, perr := strconv.Atoi(s); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &ThrottleError{
			RetryAfter: retryAfter,
			Cause:      fmt.Errorf("backend %s returned 429", service),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("backend %s returned status %d", service, resp.StatusCode)
	}

	var parsed executeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("backend %s returned malformed response: %w", service, err)
	}
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "backend reported failure without details"
		}
		return nil, fmt.Errorf("backend %s: %s", service, msg)
	}

	return parsed.Result, nil
}

// ServicesStatus опрашивает /health всех бэкендов для сводного health-чека шлюза.
func (e *HTTPExecutor) ServicesStatus(ctx context.Context) map[string]string {
	status := make(map[string]string, len(e.services))
	for name, baseURL := range e.services {
		status[name] = e.probe(ctx, baseURL)
	}
	return status
}

func (e *HTTPExecutor) probe(ctx context.Context, baseURL string) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return "unreachable"
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "unreachable"
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusOK {
		return "healthy"
	}
	return "unhealthy"
}
