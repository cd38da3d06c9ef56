// Package audit 提供校验日志存储接口。
package audit

import (
	"context"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
)

// Store 校验日志：仅追加写，管理端可整体清空。
type Store interface {
	// Append 追加一条记录；e.ID 为空时由实现生成。
	Append(ctx context.Context, e *models.AuditEntry) error
	// List 按时间倒序返回；limit <= 0 表示全部。
	List(ctx context.Context, limit int) ([]*models.AuditEntry, error)
	// QueryByTransaction 按交易 ID 查询（时间正序）。
	QueryByTransaction(ctx context.Context, transactionID string) ([]*models.AuditEntry, error)
	// Get 按记录 ID 查询；不存在返回 nil, nil。
	Get(ctx context.Context, id string) (*models.AuditEntry, error)
	// Clear 清空全部记录。
	Clear(ctx context.Context) error
}
