package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/toolgate/internal/domain"
)

func (s *Store) CreateAgent(ctx context.Context, a *domain.Agent) error {
	query := `
		INSERT INTO agents (id, name, role, tenant_id, status)
		VALUES (gen_random_uuid(), $1, $2, $3, 'active')
		RETURNING id, status, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query, a.Name, a.Role, a.TenantID).
		Scan(&a.ID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgentByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := `
		SELECT id, name, role, tenant_id, status, last_activity, created_at, updated_at
		FROM agents WHERE id = $1`

	a := &domain.Agent{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Role, &a.TenantID, &a.Status,
		&a.LastActivity, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	query := `
		SELECT id, name, role, tenant_id, status, last_activity, created_at, updated_at
		FROM agents ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.TenantID, &a.Status,
			&a.LastActivity, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// UpdateAgentStatus меняет статус агента (kill-switch и его снятие)
func (s *Store) UpdateAgentStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE agents SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: agent %s not found", id)
	}
	return nil
}

// GetBlockedAgents отдает ID всех заблокированных агентов.
// Используется шлюзом для прогрева блок-листа при старте.
func (s *Store) GetBlockedAgents(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM agents WHERE status = 'blocked'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
