package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]Record
	fail    int // первые N вызовов возвращают ошибку
}

func (m *memStorage) WriteBatch(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return errors.New("db unavailable")
	}
	batch := make([]Record, len(records))
	copy(batch, records)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestTrailFlushesOnBatchSize(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), TrailOptions{
		BufferSize:    100,
		BatchSize:     5,
		FlushInterval: time.Hour, // таймер не должен участвовать
	})
	trail.Start()

	for i := 0; i < 5; i++ {
		trail.Log(Record{ID: "r", Actor: "a", Action: ActionCommand, Success: true})
	}

	require.Eventually(t, func() bool { return storage.total() == 5 },
		2*time.Second, 10*time.Millisecond)

	trail.Stop()
	assert.Equal(t, 5, storage.total())
}

// Drain pattern: Stop вычитывает хвост буфера и делает финальный flush.
func TestTrailStopDrainsBuffer(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), TrailOptions{
		BufferSize:    100,
		BatchSize:     50,
		FlushInterval: time.Hour,
	})
	trail.Start()

	for i := 0; i < 7; i++ {
		trail.Log(Record{ID: "r", Actor: "a", Action: ActionCommand})
	}
	trail.Stop()

	assert.Equal(t, 7, storage.total())
}

func TestTrailLogAfterStopDropped(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), TrailOptions{BufferSize: 10})
	trail.Start()
	trail.Stop()

	// Не должно ни паниковать, ни блокировать
	trail.Log(Record{ID: "late", Actor: "a", Action: ActionCommand})
	assert.Equal(t, 0, storage.total())
}

// Load shedding: переполненный буфер не блокирует вызывающего.
func TestTrailOverflowDoesNotBlock(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), TrailOptions{BufferSize: 2})
	// Воркер намеренно не запущен: буфер забивается и Log уходит в default

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			trail.Log(Record{ID: "r", Actor: "a", Action: ActionCommand})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked on full buffer")
	}
}

func TestTrailRetriesFailedFlush(t *testing.T) {
	storage := &memStorage{fail: 2} // первые две попытки падают, третья проходит
	trail := NewTrail(storage, zap.NewNop(), TrailOptions{
		BufferSize:    10,
		BatchSize:     1,
		FlushInterval: time.Hour,
	})
	trail.Start()

	trail.Log(Record{ID: "r", Actor: "a", Action: ActionCommand})
	trail.Stop()

	assert.Equal(t, 1, storage.total())
}

func TestTrailStampsTimestamp(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), TrailOptions{BufferSize: 10, BatchSize: 1})
	trail.Start()

	trail.Log(Record{ID: "r", Actor: "a", Action: ActionCommand})
	trail.Stop()

	require.Equal(t, 1, storage.total())
	assert.False(t, storage.batches[0][0].Timestamp.IsZero())
}
