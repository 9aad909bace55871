package audit

/*
Файл sink.go реализует неблокирующий аудит-трейл шлюза.

Ключевые свойства:
- Non-blocking Record: горячий путь никогда не ждет хранилище; события
  уходят в буферизованный канал.
- Bounded buffer + drop-oldest: при переполнении вытесняется самое старое
  событие, а не самое свежее; каждый сброс считается (метрика + лог),
  поэтому деградация аудита сама наблюдаема.
- Batching: пакетная запись в PostgreSQL по размеру пачки или таймеру.
- Drain Pattern: на Stop() вход запирается, воркер дочитывает канал
  и делает финальный flush — записи не теряются при штатной остановке.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются записи
type Storage interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []Record) error
}

// Recorder — контракт для диспетчера: одна запись на один вызов.
type Recorder interface {
	Record(rec Record)
}

// Gauges — обратная связь в метрики (пакет audit не знает про prometheus).
type Gauges struct {
	BufferFill func(n int)
	Dropped    func()
}

type Sink struct {
	ch     chan Record
	repo   Storage
	logger *zap.Logger
	wg     sync.WaitGroup
	gauges Gauges

	flushEvery time.Duration
	batchSize  int

	dropped  atomic.Uint64
	isClosed atomic.Bool // Защита от Record после остановки
}

type SinkOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Gauges        Gauges
}

func NewSink(repo Storage, logger *zap.Logger, opts SinkOptions) *Sink {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	if opts.Gauges.BufferFill == nil {
		opts.Gauges.BufferFill = func(int) {}
	}
	if opts.Gauges.Dropped == nil {
		opts.Gauges.Dropped = func() {}
	}
	return &Sink{
		ch:         make(chan Record, opts.BufferSize),
		repo:       repo,
		logger:     logger.With(zap.String("mod", "audit")),
		gauges:     opts.Gauges,
		flushEvery: opts.FlushInterval,
		batchSize:  opts.BatchSize,
	}
}

func (s *Sink) Start() {
	s.wg.Add(1)
	go s.worker()
}

// Stop запирает вход и ждет, пока воркер допишет остатки буфера.
func (s *Sink) Stop() {
	s.isClosed.Store(true)

	// Крошечная пауза, чтобы конкурентные Record успели проскочить до close
	time.Sleep(10 * time.Millisecond)

	s.logger.Info("stopping audit sink: draining buffer...")
	close(s.ch)
	s.wg.Wait()
	s.logger.Info("audit sink stopped gracefully",
		zap.Uint64("dropped_total", s.dropped.Load()))
}

// Record ставит запись в очередь. При переполнении буфера вытесняем самую
// старую запись (drop-oldest) и считаем потерю — но никогда не блокируем
// путь ответа агенту.
func (s *Sink) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	if s.isClosed.Load() {
		s.logger.Warn("audit record dropped: sink is stopping", zap.String("id", rec.ID))
		s.markDropped()
		return
	}

	select {
	case s.ch <- rec:
	default:
		// Буфер полон: освобождаем место за счет самой старой записи
		select {
		case old := <-s.ch:
			s.markDropped()
			s.logger.Error("audit_buffer_overflow: oldest record dropped",
				zap.String("dropped_id", old.ID),
				zap.String("dropped_agent", old.AgentID),
			)
		default:
			// Воркер успел вычитать буфер — место уже есть
		}
		select {
		case s.ch <- rec:
		default:
			s.markDropped()
			s.logger.Error("audit_buffer_overflow: record lost",
				zap.String("id", rec.ID),
				zap.String("agent_id", rec.AgentID),
			)
		}
	}
	s.gauges.BufferFill(len(s.ch))
}

// DroppedTotal — сколько записей потеряно с момента старта.
func (s *Sink) DroppedTotal() uint64 {
	return s.dropped.Load()
}

func (s *Sink) markDropped() {
	s.dropped.Add(1)
	s.gauges.Dropped()
}

func (s *Sink) worker() {
	defer s.wg.Done()

	batch := make([]Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст на shutdown может быть уже закрыт
		if err := s.repo.WriteBatch(context.Background(), batch); err != nil {
			// AuditSinkDegraded: вызовы агентов не фейлим, только наблюдаем
			s.logger.Error("audit flush failed", zap.Error(err), zap.Int("batch", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-s.ch:
			if !ok {
				// Канал закрыт в Stop(): дочитали остатки — финальный flush и выход
				flush()
				s.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
			s.gauges.BufferFill(len(s.ch))
		}
	}
}
