package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	records []Record
	batches int
	fail    bool
}

func (m *memStorage) WriteBatch(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("storage is down")
	}
	m.records = append(m.records, records...)
	m.batches++
	return nil
}

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func rec(id string) Record {
	return Record{ID: id, AgentID: "agent-1", Capability: "web.search", Outcome: OutcomeSucceeded}
}

func TestSinkDrainsOnStop(t *testing.T) {
	storage := &memStorage{}
	s := NewSink(storage, zap.NewNop(), SinkOptions{BufferSize: 100, BatchSize: 10, FlushInterval: time.Hour})
	s.Start()

	for i := 0; i < 25; i++ {
		s.Record(rec(fmt.Sprintf("r-%d", i)))
	}
	s.Stop()

	// Все записи дописаны при остановке, ничего не потеряно
	assert.Equal(t, 25, storage.count())
	assert.Equal(t, uint64(0), s.DroppedTotal())
}

func TestSinkDropsOldestOnOverflow(t *testing.T) {
	storage := &memStorage{}
	// Воркер не запущен: буфер заполняется и не вычитывается
	s := NewSink(storage, zap.NewNop(), SinkOptions{BufferSize: 3, BatchSize: 10, FlushInterval: time.Hour})

	for i := 0; i < 5; i++ {
		s.Record(rec(fmt.Sprintf("r-%d", i)))
	}

	// Две потери — и обе за счет самых старых записей
	assert.Equal(t, uint64(2), s.DroppedTotal())

	s.Start()
	s.Stop()

	require.Equal(t, 3, storage.count())
	ids := []string{storage.records[0].ID, storage.records[1].ID, storage.records[2].ID}
	assert.Equal(t, []string{"r-2", "r-3", "r-4"}, ids)
}

func TestSinkFlushesByBatchSize(t *testing.T) {
	storage := &memStorage{}
	s := NewSink(storage, zap.NewNop(), SinkOptions{BufferSize: 100, BatchSize: 5, FlushInterval: time.Hour})
	s.Start()

	for i := 0; i < 5; i++ {
		s.Record(rec(fmt.Sprintf("r-%d", i)))
	}

	// Пачка уходит по размеру, без ожидания тикера
	require.Eventually(t, func() bool { return storage.count() == 5 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestSinkFlushesByTicker(t *testing.T) {
	storage := &memStorage{}
	s := NewSink(storage, zap.NewNop(), SinkOptions{BufferSize: 100, BatchSize: 1000, FlushInterval: 20 * time.Millisecond})
	s.Start()

	s.Record(rec("r-1"))
	require.Eventually(t, func() bool { return storage.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestSinkRejectsAfterStop(t *testing.T) {
	storage := &memStorage{}
	s := NewSink(storage, zap.NewNop(), SinkOptions{BufferSize: 10})
	s.Start()
	s.Stop()

	s.Record(rec("late"))
	assert.Equal(t, uint64(1), s.DroppedTotal())
	assert.Equal(t, 0, storage.count())
}

func TestSinkSurvivesStorageFailure(t *testing.T) {
	storage := &memStorage{fail: true}
	s := NewSink(storage, zap.NewNop(), SinkOptions{BufferSize: 10, BatchSize: 1, FlushInterval: 10 * time.Millisecond})
	s.Start()

	// Отказ хранилища не блокирует и не роняет sink
	s.Record(rec("r-1"))
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	assert.Equal(t, 0, storage.count())
}

func TestSinkCountsDropsInGauges(t *testing.T) {
	var droppedCalls int
	s := NewSink(&memStorage{}, zap.NewNop(), SinkOptions{
		BufferSize: 1,
		Gauges:     Gauges{Dropped: func() { droppedCalls++ }},
	})

	s.Record(rec("r-1"))
	s.Record(rec("r-2")) // Вытесняет r-1
	assert.Equal(t, 1, droppedCalls)
	assert.Equal(t, uint64(1), s.DroppedTotal())
}
