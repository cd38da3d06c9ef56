package txstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// OpenPostgres 打开 Postgres 连接；gorm 自身日志静默，错误由调用方记录。
func OpenPostgres(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("txstore: open postgres: %w", err)
	}
	if log != nil {
		log.Info("postgres connected")
	}
	return db, nil
}

// GormRepository 交易存于表 transactions。
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository 迁移表结构后返回。
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&models.Transaction{}); err != nil {
		return nil, err
	}
	return &GormRepository{db: db}, nil
}

func (r *GormRepository) Create(ctx context.Context, tx *models.Transaction) error {
	err := r.db.WithContext(ctx).Create(tx).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrExists
	}
	return err
}

func (r *GormRepository) Get(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Update 在事务内 SELECT ... FOR UPDATE 后写回。
func (r *GormRepository) Update(ctx context.Context, id string, fn func(tx *models.Transaction) error) (*models.Transaction, error) {
	var out models.Transaction
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		out.ID = id
		return db.Save(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GormRepository) List(ctx context.Context) ([]*models.Transaction, error) {
	var out []*models.Transaction
	err := r.db.WithContext(ctx).Order("created_at desc").Order("id asc").Find(&out).Error
	return out, err
}

func (r *GormRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Transaction{}).Error
}
