package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/zeus-orchestrator/internal/audit"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"github.com/xela07ax/zeus-orchestrator/internal/router"
)

type fakeEvaluator struct {
	verdict domain.Verdict
}

func (f *fakeEvaluator) Evaluate(domain.CommandRequest) domain.Verdict { return f.verdict }

type fakeResolver struct {
	r  router.Route
	ok bool
}

func (f *fakeResolver) Route(string) (router.Route, bool) { return f.r, f.ok }

type fakeExecutor struct {
	calls  int
	result json.RawMessage
	err    error
}

func (f *fakeExecutor) Call(_ context.Context, _, _ string, _ map[string]interface{}) (json.RawMessage, error) {
	f.calls++
	return f.result, f.err
}

type fakeSink struct {
	records []audit.Record
}

func (f *fakeSink) Log(r audit.Record) { f.records = append(f.records, r) }

type fakePublisher struct {
	events []domain.Event
}

func (f *fakePublisher) Publish(_ context.Context, e domain.Event) { f.events = append(f.events, e) }

type dispatcherFixture struct {
	dispatcher *Dispatcher
	evaluator  *fakeEvaluator
	executor   *fakeExecutor
	sink       *fakeSink
	publisher  *fakePublisher
}

func newFixture(verdict domain.Verdict, resolver *fakeResolver, executor *fakeExecutor) *dispatcherFixture {
	f := &dispatcherFixture{
		evaluator: &fakeEvaluator{verdict: verdict},
		executor:  executor,
		sink:      &fakeSink{},
		publisher: &fakePublisher{},
	}
	f.dispatcher = NewDispatcher(f.evaluator, resolver, f.executor, f.sink, f.publisher, NewMetrics(nil), zap.NewNop())
	return f
}

func allowedRoute() *fakeResolver {
	return &fakeResolver{r: router.Route{Service: "k8s-mcp", Channel: "infrastructure"}, ok: true}
}

func TestSubmitSuccess(t *testing.T) {
	executor := &fakeExecutor{result: json.RawMessage(`{"replicas":5}`)}
	f := newFixture(domain.Allow([]string{"weekend deploy"}, nil), allowedRoute(), executor)

	req := domain.CommandRequest{
		Command:     "scale web-app",
		Parameters:  map[string]interface{}{"replicas": float64(5)},
		Environment: "staging",
		RequestID:   "req-1",
		TraceID:     "trace-1",
		Actor:       domain.Actor{ID: "u-1", Role: "admin"},
	}

	result, err := f.dispatcher.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.JSONEq(t, `{"replicas":5}`, string(result.Result))
	assert.Equal(t, []string{"weekend deploy"}, result.Warnings)
	assert.Equal(t, "req-1", result.RequestID)

	// Ровно одна запись аудита, до ответа
	require.Len(t, f.sink.records, 1)
	rec := f.sink.records[0]
	assert.Equal(t, audit.ActionCommand, rec.Action)
	assert.True(t, rec.Success)
	assert.Equal(t, "u-1", rec.Actor)
	assert.Equal(t, "trace-1", rec.TraceID)

	// Ровно одно событие в канал маршрута
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "infrastructure", f.publisher.events[0].Channel)
	assert.Equal(t, "infrastructure_update", f.publisher.events[0].Type)
}

func TestSubmitGuardrailDenial(t *testing.T) {
	executor := &fakeExecutor{}
	f := newFixture(domain.Deny("Instance count (200) exceeds limit (100)"), allowedRoute(), executor)

	result, err := f.dispatcher.Submit(context.Background(), domain.CommandRequest{
		Command:     "scale web-app",
		Parameters:  map[string]interface{}{"instances": float64(200)},
		Environment: "development",
		RequestID:   "req-2",
		Actor:       domain.Actor{Role: "admin"},
	})

	var denied *PolicyDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Contains(t, denied.Reason, "200")
	assert.False(t, result.Success)
	assert.Equal(t, "req-2", result.RequestID)

	// Отказ: бэкенд не тронут, событий нет, запись — violation
	assert.Equal(t, 0, executor.calls)
	assert.Empty(t, f.publisher.events)
	require.Len(t, f.sink.records, 1)
	rec := f.sink.records[0]
	assert.Equal(t, audit.ActionGuardrailViolation, rec.Action)
	assert.False(t, rec.Success)
	assert.NotEmpty(t, rec.Error)
}

func TestSubmitRouteMiss(t *testing.T) {
	executor := &fakeExecutor{}
	f := newFixture(domain.Allow(nil, nil), &fakeResolver{ok: false}, executor)

	_, err := f.dispatcher.Submit(context.Background(), domain.CommandRequest{
		Command: "rollback api",
		Actor:   domain.Actor{Role: "admin"},
	})

	require.ErrorIs(t, err, ErrRouteNotFound)
	assert.Equal(t, 0, executor.calls)
	assert.Empty(t, f.publisher.events)

	require.Len(t, f.sink.records, 1)
	rec := f.sink.records[0]
	assert.Equal(t, audit.ActionCommand, rec.Action)
	assert.False(t, rec.Success)
}

func TestSubmitBackendFailure(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("connection refused")}
	f := newFixture(domain.Allow(nil, nil), allowedRoute(), executor)

	result, err := f.dispatcher.Submit(context.Background(), domain.CommandRequest{
		Command: "scale web-app",
		Actor:   domain.Actor{Role: "admin"},
	})

	var unavailable *BackendUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "k8s-mcp", unavailable.Service)
	assert.False(t, result.Success)

	// Одна попытка, одна запись, никаких событий
	assert.Equal(t, 1, executor.calls)
	assert.Empty(t, f.publisher.events)
	require.Len(t, f.sink.records, 1)
	assert.False(t, f.sink.records[0].Success)
	assert.Contains(t, f.sink.records[0].Error, "connection refused")
}

func TestActorIDFallbacks(t *testing.T) {
	assert.Equal(t, "u-1", actorID(domain.CommandRequest{Actor: domain.Actor{ID: "u-1", Role: "dev"}}))
	assert.Equal(t, "dev", actorID(domain.CommandRequest{Actor: domain.Actor{Role: "dev"}}))
	assert.Equal(t, "unknown", actorID(domain.CommandRequest{}))
}

func TestCommandLabel(t *testing.T) {
	assert.Equal(t, "scale", commandLabel("scale web-app"))
	assert.Equal(t, "deploy", commandLabel("deploy-prod"))
	assert.Equal(t, "get", commandLabel("get"))
	assert.Equal(t, "empty", commandLabel(""))
}
