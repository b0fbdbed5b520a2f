package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 監査ログの保存・取得の約束。
type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	ListByResource(ctx context.Context, resourceType model.AuditResourceType, resourceID string) ([]model.AuditLog, error)
}
