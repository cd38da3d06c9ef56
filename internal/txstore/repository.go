// Package txstore 持久化交易记录。
package txstore

import (
	"context"
	"errors"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
)

// ErrNotFound 交易不存在。
var ErrNotFound = errors.New("txstore: transaction not found")

// ErrExists 交易 ID 已存在。
var ErrExists = errors.New("txstore: transaction already exists")

// Repository 交易存储。Get 不存在返回 nil, nil。
type Repository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, id string) (*models.Transaction, error)
	// Update 原子地读-改-写；fn 返回错误时不写回。不存在返回 ErrNotFound。
	Update(ctx context.Context, id string, fn func(tx *models.Transaction) error) (*models.Transaction, error)
	// List 按创建时间倒序。
	List(ctx context.Context) ([]*models.Transaction, error)
	Clear(ctx context.Context) error
}
