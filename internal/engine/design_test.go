package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/zeus-orchestrator/internal/audit"
	"github.com/xela07ax/zeus-orchestrator/internal/domain"
)

type fakeValidator struct {
	verdict domain.Verdict
}

func (f *fakeValidator) ValidateDesign(domain.DesignRequest) domain.Verdict { return f.verdict }

type memDesignStore struct {
	mu      sync.Mutex
	created []domain.DesignRecord
	status  map[string]domain.DesignStatus
	prURLs  map[string]string
	notes   map[string]string
}

func newMemDesignStore() *memDesignStore {
	return &memDesignStore{
		status: make(map[string]domain.DesignStatus),
		prURLs: make(map[string]string),
		notes:  make(map[string]string),
	}
}

func (m *memDesignStore) Create(_ context.Context, rec *domain.DesignRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *rec)
	m.status[rec.ID] = rec.Status
	return nil
}

func (m *memDesignStore) UpdateStatus(_ context.Context, id string, status domain.DesignStatus, prURL, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = status
	m.prURLs[id] = prURL
	m.notes[id] = note
	return nil
}

func (m *memDesignStore) statusOf(id string) domain.DesignStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[id]
}

func (m *memDesignStore) prURLOf(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prURLs[id]
}

// scriptedExecutor отвечает по (service, command) и потокобезопасно копит вызовы.
type scriptedExecutor struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	errs      map[string]error
	calls     []string
}

func (s *scriptedExecutor) Call(_ context.Context, service, command string, _ map[string]interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := service + "/" + command
	s.calls = append(s.calls, key)
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	return s.responses[key], nil
}

type syncSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (s *syncSink) Log(r audit.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

func (s *syncSink) byAction(action string) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, r := range s.records {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

type syncPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *syncPublisher) Publish(_ context.Context, e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *syncPublisher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func designRequest() domain.DesignRequest {
	return domain.DesignRequest{
		Name:        "web-cluster",
		Environment: "staging",
		Components:  []domain.DesignComponent{{Type: "ec2", Count: 2, MemoryGB: 4, CPUCores: 2}},
		Actor:       domain.Actor{ID: "u-1", Role: "admin"},
	}
}

func TestDesignSubmitDenied(t *testing.T) {
	store := newMemDesignStore()
	sink := &syncSink{}
	p := NewDesignPipeline(
		&fakeValidator{verdict: domain.Deny("Total instances (120) exceeds limit (100)")},
		&scriptedExecutor{},
		store, sink, &syncPublisher{}, zap.NewNop(), 4,
	)

	rec, verdict, err := p.Submit(context.Background(), designRequest())

	var denied *PolicyDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Nil(t, rec)
	assert.False(t, verdict.Allowed)

	// Отказ аудируется, в БД ничего не пишется
	assert.Empty(t, store.created)
	violations := sink.byAction(audit.ActionGuardrailViolation)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0].Error, "120")
}

func TestDesignSubmitGenerates(t *testing.T) {
	store := newMemDesignStore()
	sink := &syncSink{}
	pub := &syncPublisher{}
	executor := &scriptedExecutor{
		responses: map[string]json.RawMessage{
			"tf-migrator/generate": json.RawMessage(`{"terraform_code":"resource {}"}`),
			"git-mcp/pr/create":    json.RawMessage(`{"pr_url":"https://github.com/org/repo/pull/123"}`),
		},
	}

	verdictWarnings := domain.Allow([]string{"Backup is not enabled for production environment"}, nil)
	p := NewDesignPipeline(&fakeValidator{verdict: verdictWarnings}, executor, store, sink, pub, zap.NewNop(), 4)
	p.Start(context.Background(), 1)

	rec, verdict, err := p.Submit(context.Background(), designRequest())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.DesignPending, rec.Status)
	assert.Equal(t, verdictWarnings.Warnings, verdict.Warnings)

	// Запись закоммичена сразу, вызывающий не ждет terraform
	require.Len(t, store.created, 1)

	require.Eventually(t, func() bool {
		return store.statusOf(rec.ID) == domain.DesignGenerated
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "https://github.com/org/repo/pull/123", store.prURLOf(rec.ID))

	require.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sink.byAction(audit.ActionDesign), 1)

	p.Stop()
}

func TestDesignGenerationFailureMarksRecord(t *testing.T) {
	store := newMemDesignStore()
	executor := &scriptedExecutor{
		errs: map[string]error{"tf-migrator/generate": errors.New("template error")},
	}

	p := NewDesignPipeline(&fakeValidator{verdict: domain.Allow(nil, nil)}, executor, store, &syncSink{}, &syncPublisher{}, zap.NewNop(), 4)
	p.Start(context.Background(), 1)

	rec, _, err := p.Submit(context.Background(), designRequest())
	require.NoError(t, err)

	// Дизайн остается, статус честно отражает сбой генерации
	require.Eventually(t, func() bool {
		return store.statusOf(rec.ID) == domain.DesignFailed
	}, 2*time.Second, 10*time.Millisecond)

	p.Stop()
}
