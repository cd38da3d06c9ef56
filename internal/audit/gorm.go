package audit

import (
	"context"
	"errors"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"gorm.io/gorm"
)

// GormStore 校验日志存于关系库表 validation_log。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 迁移表结构后返回。
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.AuditEntry{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(ctx context.Context, e *models.AuditEntry) error {
	if e == nil {
		return nil
	}
	ensureID(e)
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *GormStore) List(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	q := s.db.WithContext(ctx).Order("validated_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) QueryByTransaction(ctx context.Context, transactionID string) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("validated_at asc").
		Find(&out).Error
	return out, err
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.AuditEntry, error) {
	var e models.AuditEntry
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *GormStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.AuditEntry{}).Error
}
