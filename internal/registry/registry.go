package registry

/*
Пакет registry держит каталог Capability в неизменяемых снапшотах.
Горячий путь (Resolve/ValidateArgs) — один atomic.Load без блокировок;
обновление собирает новый снапшот целиком и подменяет его атомарно
(copy-on-write), так что читатели никогда не видят полузагруженное состояние.
Битые определения отбрасывают весь снапшот — действующий каталог не трогаем.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/xela07ax/toolgate/internal/domain"
	"go.uber.org/zap"
)

// CapabilityProvider — источник определений (Postgres). Используется
// только при Load/Refresh, не на горячем пути.
type CapabilityProvider interface {
	GetAllCapabilities(ctx context.Context) ([]domain.Capability, error)
}

type snapshot struct {
	version uint64
	caps    map[string]*domain.Capability
	schemas map[string]*jsonschema.Schema
	sorted  []domain.Capability
}

type Registry struct {
	cur     atomic.Pointer[snapshot]
	version atomic.Uint64

	adapters map[string]struct{} // Известные привязки; проверяем на загрузке, не в момент вызова
	repo     CapabilityProvider
	logger   *zap.Logger

	mu sync.Mutex // Сериализует конкурентные Load/Refresh
}

// New создает пустой реестр. adapterNames — адаптеры, собранные в main:
// capability с привязкой вне этого списка отклоняется при загрузке.
func New(repo CapabilityProvider, adapterNames []string, logger *zap.Logger) *Registry {
	known := make(map[string]struct{}, len(adapterNames))
	for _, n := range adapterNames {
		known[n] = struct{}{}
	}
	r := &Registry{
		adapters: known,
		repo:     repo,
		logger:   logger.Named("registry"),
	}
	r.cur.Store(&snapshot{caps: map[string]*domain.Capability{}, schemas: map[string]*jsonschema.Schema{}})
	return r
}

// Load валидирует полный набор определений и атомарно подменяет снапшот.
// Fail fast: дубликат имени, битая схема или неизвестный адаптер —
// и весь набор отклонен.
func (r *Registry) Load(caps []domain.Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := &snapshot{
		caps:    make(map[string]*domain.Capability, len(caps)),
		schemas: make(map[string]*jsonschema.Schema, len(caps)),
	}

	for i := range caps {
		c := caps[i]
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := next.caps[c.Name]; dup {
			return fmt.Errorf("duplicate capability name: %s", c.Name)
		}
		if _, ok := r.adapters[c.Adapter]; !ok {
			return fmt.Errorf("capability %s: adapter %q is not bound", c.Name, c.Adapter)
		}

		if len(c.ArgsSchema) > 0 {
			sch, err := jsonschema.CompileString("cap://"+c.Name, string(c.ArgsSchema))
			if err != nil {
				return fmt.Errorf("capability %s: malformed args schema: %w", c.Name, err)
			}
			next.schemas[c.Name] = sch
		}

		next.caps[c.Name] = &c
		next.sorted = append(next.sorted, c)
	}

	sort.Slice(next.sorted, func(i, j int) bool { return next.sorted[i].Name < next.sorted[j].Name })
	next.version = r.version.Add(1)
	r.cur.Store(next)

	r.logger.Info("capability snapshot loaded",
		zap.Uint64("version", next.version),
		zap.Int("count", len(next.caps)),
	)
	return nil
}

// Refresh перечитывает каталог из БД (холодный старт и pub/sub сигнал).
func (r *Registry) Refresh(ctx context.Context) error {
	caps, err := r.repo.GetAllCapabilities(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch capabilities: %w", err)
	}
	return r.Load(caps)
}

// Resolve — поиск по имени на горячем пути.
func (r *Registry) Resolve(name string) (*domain.Capability, bool) {
	c, ok := r.cur.Load().caps[name]
	return c, ok
}

// ValidateArgs проверяет аргументы вызова по схеме capability.
// Отсутствие схемы означает отсутствие проверки, а не запрет.
func (r *Registry) ValidateArgs(name string, args []byte) error {
	sch, ok := r.cur.Load().schemas[name]
	if !ok {
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}

// List возвращает каталог в стабильном порядке (для интроспекции).
func (r *Registry) List() []domain.Capability {
	return r.cur.Load().sorted
}

// Version — номер активного снапшота (для health/аудита админ-обновлений).
func (r *Registry) Version() uint64 {
	return r.cur.Load().version
}
