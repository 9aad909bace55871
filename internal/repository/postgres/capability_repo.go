package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/toolgate/internal/domain"
)

// Дедлайн в БД храним в миллисекундах, в домене — time.Duration

const capabilityColumns = `name, risk, adapter, idempotent, args_schema, result_schema,
	timeout_ms, max_payload, created_at, updated_at`

func scanCapability(row pgx.Row) (*domain.Capability, error) {
	c := &domain.Capability{}
	var timeoutMs int64
	err := row.Scan(&c.Name, &c.Risk, &c.Adapter, &c.Idempotent,
		&c.ArgsSchema, &c.ResultSchema, &timeoutMs, &c.MaxPayload,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return c, nil
}

// GetAllCapabilities — холодная загрузка каталога для реестра.
func (s *Store) GetAllCapabilities(ctx context.Context) ([]domain.Capability, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+capabilityColumns+` FROM capabilities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Capability
	for rows.Next() {
		c, err := scanCapability(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *c)
	}
	return results, rows.Err()
}

func (s *Store) GetCapabilityByName(ctx context.Context, name string) (*domain.Capability, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+capabilityColumns+` FROM capabilities WHERE name = $1`, name)
	c, err := scanCapability(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) CreateCapability(ctx context.Context, c *domain.Capability) error {
	query := `
		INSERT INTO capabilities
			(name, risk, adapter, idempotent, args_schema, result_schema, timeout_ms, max_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		c.Name, c.Risk, c.Adapter, c.Idempotent, c.ArgsSchema, c.ResultSchema,
		c.Timeout.Milliseconds(), c.MaxPayload,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create capability: %w", err)
	}
	return nil
}

func (s *Store) UpdateCapability(ctx context.Context, c *domain.Capability) error {
	query := `
		UPDATE capabilities
		SET risk = $1, adapter = $2, idempotent = $3, args_schema = $4, result_schema = $5,
		    timeout_ms = $6, max_payload = $7, updated_at = NOW()
		WHERE name = $8`

	ct, err := s.pool.Exec(ctx, query,
		c.Risk, c.Adapter, c.Idempotent, c.ArgsSchema, c.ResultSchema,
		c.Timeout.Milliseconds(), c.MaxPayload, c.Name)
	if err != nil {
		return fmt.Errorf("postgres: failed to update capability: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: capability not found")
	}
	return nil
}

func (s *Store) DeleteCapability(ctx context.Context, name string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM capabilities WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete capability: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: capability not found")
	}
	return nil
}
