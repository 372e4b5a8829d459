package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"github.com/xela07ax/zeus-orchestrator/internal/engine"
)

type stubDispatcher struct {
	result domain.DispatchResult
	err    error
	got    domain.CommandRequest
}

func (s *stubDispatcher) Submit(_ context.Context, req domain.CommandRequest) (domain.DispatchResult, error) {
	s.got = req
	return s.result, s.err
}

func doExecute(t *testing.T, d Dispatcher, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewCommandHandler(d)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands/execute", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Execute(rec, req)
	return rec
}

func TestExecuteSuccess(t *testing.T) {
	d := &stubDispatcher{result: domain.DispatchResult{
		Success:   true,
		Result:    json.RawMessage(`{"ok":true}`),
		RequestID: "req-1",
	}}

	rec := doExecute(t, d, `{"command":"scale web-app","parameters":{"replicas":3},"environment":"staging","request_id":"req-1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scale web-app", d.got.Command)
	assert.Equal(t, "staging", d.got.Environment)
	assert.NotEmpty(t, d.got.TraceID)

	var result domain.DispatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
}

func TestExecuteErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"guardrail denial", &engine.PolicyDeniedError{Reason: "blocked"}, http.StatusForbidden},
		{"route miss", engine.ErrRouteNotFound, http.StatusNotFound},
		{"backend down", &engine.BackendUnavailableError{Service: "k8s-mcp"}, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &stubDispatcher{
				result: domain.DispatchResult{Success: false, Error: tc.err.Error()},
				err:    tc.err,
			}
			rec := doExecute(t, d, `{"command":"scale web-app"}`)
			assert.Equal(t, tc.code, rec.Code)

			var result domain.DispatchResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.False(t, result.Success)
			assert.NotEmpty(t, result.Error)
		})
	}
}

func TestExecuteValidation(t *testing.T) {
	d := &stubDispatcher{}

	t.Run("malformed body", func(t *testing.T) {
		rec := doExecute(t, d, `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing command", func(t *testing.T) {
		rec := doExecute(t, d, `{"parameters":{}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestExecuteDefaults(t *testing.T) {
	d := &stubDispatcher{result: domain.DispatchResult{Success: true}}
	doExecute(t, d, `{"command":"get pods"}`)

	assert.Equal(t, "development", d.got.Environment)
	assert.NotEmpty(t, d.got.RequestID)
}

func TestTraceIDHeaderPassthrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "trace-42")
	assert.Equal(t, "trace-42", TraceID(req))

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.NotEmpty(t, TraceID(bare))
}
