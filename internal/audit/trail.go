package audit

/*
Файл trail.go реализует аудиторский след оркестратора.

Ключевые особенности архитектуры:
- Non-blocking Logging: неблокирующий канал между Hot Path диспетчера и воркером.
  Задержки записи в БД не влияют на время ответа команды, а сбой записи никогда
  не откатывает команду, которую он описывает.
- Batching: накопление записей в памяти и пакетная вставка в PostgreSQL по таймеру
  или при достижении лимита пачки.
- Drain Pattern & Graceful Shutdown: при остановке сервиса буфер вычитывается
  до конца, финальный flush гарантирует отсутствие потерь при штатной перезагрузке.
- Reliability: сбой flush ретраится (retry-go) и в худшем случае уходит в zap —
  след деградирует в диагностику процесса, но команду не блокирует.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются записи.
type StorageInterface interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []Record) error
}

// Sink — то, что видит диспетчер: fire-and-forget запись.
type Sink interface {
	Log(record Record)
}

type TrailOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type Trail struct {
	ch     chan Record
	repo   StorageInterface
	logger *zap.Logger
	opts   TrailOptions
	wg     sync.WaitGroup

	// Защита от Log после остановки (0 - открыт, 1 - закрыт)
	isClosed atomic.Int32

	// Текущая заполненность буфера для метрики backpressure
	fillGauge func(n int)
}

func NewTrail(repo StorageInterface, logger *zap.Logger, opts TrailOptions) *Trail {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:        make(chan Record, opts.BufferSize),
		repo:      repo,
		logger:    logger.With(zap.String("mod", "audit-trail")),
		opts:      opts,
		fillGauge: func(int) {},
	}
}

// SetFillGauge подключает prometheus-гейдж заполненности буфера.
func (t *Trail) SetFillGauge(fn func(n int)) {
	if fn != nil {
		t.fillGauge = fn
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	t.isClosed.Store(1)

	// Крошечная пауза, чтобы уже начатые Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

// Log ставит запись в очередь. Никогда не блокирует вызывающего:
// при переполнении буфера применяется Load Shedding — запись уходит в zap,
// чтобы не потерять данные молча.
func (t *Trail) Log(record Record) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	if t.isClosed.Load() == 1 {
		t.logger.Warn("audit record dropped: trail is stopping", zap.String("id", record.ID))
		return
	}

	select {
	case t.ch <- record:
		t.fillGauge(len(t.ch))
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("actor", record.Actor),
			zap.String("action", record.Action),
			zap.String("trace_id", record.TraceID),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Record, 0, t.opts.BatchSize)
	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к моменту финального flush может быть закрыт
		err := retry.New(
			retry.Attempts(3),
			retry.Delay(100*time.Millisecond),
		).Do(func() error {
			return t.repo.WriteBatch(context.Background(), batch)
		})
		if err != nil {
			t.logger.Error("audit flush failed", zap.Int("batch", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case record, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки — финальный flush и выход
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, record)
			t.fillGauge(len(t.ch))
			if len(batch) >= t.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
