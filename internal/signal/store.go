package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"go.uber.org/zap"
)

// Backend 信号的 KV 持久化。Get 不存在返回 nil, nil。
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Purge 删除全部信号。
	Purge(ctx context.Context) error
	Close() error
}

// Store 每笔交易至多一个有效信号；Issue 覆盖旧信号。同一交易的 Issue/Get/Clear 串行执行。
type Store struct {
	backend Backend
	deriver *Deriver
	ttl     *TTLPolicy
	locks   keyedMutex
	log     *zap.Logger
}

// NewStore 组装信号存储。log 可为 nil。
func NewStore(backend Backend, deriver *Deriver, ttl *TTLPolicy, log *zap.Logger) *Store {
	if ttl == nil {
		ttl = NewTTLPolicy()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, deriver: deriver, ttl: ttl, log: log.Named("signal.store")}
}

// TTL 返回窗口策略。
func (s *Store) TTL() *TTLPolicy { return s.ttl }

// Deriver 返回派生器。
func (s *Store) Deriver() *Deriver { return s.deriver }

// Issue 在 now 为交易签发新信号并持久化，替换已有信号。
// 并发签发以签发时间较晚者为准：已存信号晚于 now 时不覆盖，直接返回已存信号。
func (s *Store) Issue(ctx context.Context, transactionID, networkID string, now time.Time) (*models.Signal, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("signal: empty transaction id")
	}
	issuedAt := FormatTimestamp(now)
	code, err := s.deriver.Derive(transactionID, issuedAt)
	if err != nil {
		return nil, err
	}
	sig := &models.Signal{
		TransactionID: transactionID,
		Code:          code,
		IssuedAt:      issuedAt,
		ExpiresAt:     now.UTC().Add(s.ttl.Window(networkID)),
		Network:       networkID,
	}
	data, err := json.Marshal(sig)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(transactionID)
	defer unlock()
	if cur, err := s.load(ctx, transactionID); err != nil {
		return nil, err
	} else if cur != nil && newerThan(cur, now) {
		s.log.Debug("signal issue skipped, stored signal is newer",
			zap.String("transaction_id", transactionID),
			zap.String("stored_issued_at", cur.IssuedAt))
		return cur, nil
	}
	if err := s.backend.Put(ctx, transactionID, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.log.Debug("signal issued",
		zap.String("transaction_id", transactionID),
		zap.String("network", networkID),
		zap.Time("expires_at", sig.ExpiresAt))
	return sig, nil
}

// Get 读取交易当前信号；不存在返回 nil, nil。
func (s *Store) Get(ctx context.Context, transactionID string) (*models.Signal, error) {
	unlock := s.locks.lock(transactionID)
	defer unlock()
	return s.load(ctx, transactionID)
}

// load 调用方需持有 transactionID 的锁。
func (s *Store) load(ctx context.Context, transactionID string) (*models.Signal, error) {
	data, err := s.backend.Get(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if data == nil {
		return nil, nil
	}
	var sig models.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStoreUnavailable, transactionID, err)
	}
	return &sig, nil
}

func newerThan(sig *models.Signal, now time.Time) bool {
	at, err := ParseTimestamp(sig.IssuedAt)
	if err != nil {
		return false
	}
	return at.After(now.UTC().Truncate(time.Millisecond))
}

// Clear 删除交易的信号；不存在时不报错。
func (s *Store) Clear(ctx context.Context, transactionID string) error {
	unlock := s.locks.lock(transactionID)
	defer unlock()
	if err := s.backend.Delete(ctx, transactionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Purge 清空全部信号（管理端批量清理）。
func (s *Store) Purge(ctx context.Context) error {
	if err := s.backend.Purge(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close 关闭底层存储。
func (s *Store) Close() error { return s.backend.Close() }
