package postgres

/*
Хранение правил политик. Слой отделяет долговременное хранение правил
в PostgreSQL от их мгновенной проверки в оперативной памяти шлюза:
после любого изменения консоль шлет сигнал, и шлюз перечитывает весь набор.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/toolgate/internal/domain"
)

// GetAllRules выполняет "холодную загрузку" всего набора правил.
// Порядок (role, ordinal, id) фиксирован: авторизация должна быть
// воспроизводима при реплее аудита.
func (s *Store) GetAllRules(ctx context.Context) ([]domain.PolicyRule, error) {
	query := `
		SELECT id, role, pattern, effect, allow_write, conditions, ordinal, created_at, updated_at
		FROM policy_rules
		ORDER BY role, ordinal, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.PolicyRule
	for rows.Next() {
		var r domain.PolicyRule
		if err := rows.Scan(&r.ID, &r.Role, &r.Pattern, &r.Effect, &r.AllowWrite,
			&r.Conditions, &r.Ordinal, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) GetRuleByID(ctx context.Context, id string) (*domain.PolicyRule, error) {
	query := `
		SELECT id, role, pattern, effect, allow_write, conditions, ordinal, created_at, updated_at
		FROM policy_rules
		WHERE id = $1`

	r := &domain.PolicyRule{}
	err := s.pool.QueryRow(ctx, query, id).Scan(&r.ID, &r.Role, &r.Pattern, &r.Effect,
		&r.AllowWrite, &r.Conditions, &r.Ordinal, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // nil для 404 в хендлере
		}
		return nil, err
	}
	return r, nil
}

func (s *Store) CreateRule(ctx context.Context, r *domain.PolicyRule) error {
	query := `
		INSERT INTO policy_rules (id, role, pattern, effect, allow_write, conditions, ordinal)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		r.Role, r.Pattern, r.Effect, r.AllowWrite, r.Conditions, r.Ordinal,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create rule: %w", err)
	}
	return nil
}

func (s *Store) UpdateRule(ctx context.Context, r *domain.PolicyRule) error {
	query := `
		UPDATE policy_rules
		SET pattern = $1, effect = $2, allow_write = $3, conditions = $4, ordinal = $5, updated_at = NOW()
		WHERE id = $6`

	ct, err := s.pool.Exec(ctx, query, r.Pattern, r.Effect, r.AllowWrite, r.Conditions, r.Ordinal, r.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update rule: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: rule not found")
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM policy_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete rule: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: rule not found")
	}
	return nil
}
