package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/toolgate/internal/audit"
	"github.com/xela07ax/toolgate/internal/repository/postgres"
)

// AuditLogProvider описывает контракт чтения журнала аудита.
// Используем модель Record из пакета audit, чтобы консоль и шлюз
// смотрели на одни и те же данные.
type AuditLogProvider interface {
	QueryAudit(ctx context.Context, f postgres.AuditFilter) ([]audit.Record, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{repo: repo}
}

// FetchRecords запрашивает записи с фильтрацией; пустые поля фильтра
// означают "без ограничения".
func (s *AuditService) FetchRecords(ctx context.Context, f postgres.AuditFilter) ([]audit.Record, error) {
	records, err := s.repo.QueryAudit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch records: %w", err)
	}
	if records == nil {
		return []audit.Record{}, nil
	}
	return records, nil
}
