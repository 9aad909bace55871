package postgres

/*
Единое хранилище Control Plane: определения capabilities, правила политик,
агенты, операторы консоли и append-only журнал аудита. Шлюз читает
конфигурационные таблицы только при старте и по сигналу обновления,
горячий путь вызова базу не трогает (кроме фоновой записи аудита).
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/toolgate/internal/infra"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dbCfg infra.DatabaseConfig) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dbCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: bad connection string: %w", err)
	}
	if dbCfg.MaxConns > 0 {
		cfg.MaxConns = dbCfg.MaxConns
	}
	if dbCfg.MinConns > 0 {
		cfg.MinConns = dbCfg.MinConns
	}
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping проверяет доступность базы при старте
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}
