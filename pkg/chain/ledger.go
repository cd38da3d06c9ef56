package chain

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("chain: not found")
	ErrStorageClosed = errors.New("chain: storage closed")
	ErrEmptyBatch    = errors.New("chain: empty batch")
)

// Ledger 存证批次的写入与验真查询。
type Ledger interface {
	// AppendBatch 按给定顺序构建 Merkle 树并持久化，返回根。
	AppendBatch(ctx context.Context, batchID string, leaves []Leaf) (merkleRoot string, err error)
	// GetMerkleProof 根据记录 ID 返回验真路径。
	GetMerkleProof(ctx context.Context, entryID string) (*MerkleProof, error)
	// Batches 返回全部批次（按写入顺序）。
	Batches(ctx context.Context) ([]*BatchRecord, error)
	Healthy(ctx context.Context) error
}

// Backend 可插拔存储后端；LocalStore 为内存或目录实现。
type Backend interface {
	AppendBatch(ctx context.Context, batch *BatchRecord, leaves []Leaf) (merkleRoot string, err error)
	GetMerkleProof(ctx context.Context, entryID string) (*MerkleProof, error)
	Batches(ctx context.Context) ([]*BatchRecord, error)
	Close() error
}

// NewLedger 基于给定 Backend 构造 Ledger。
func NewLedger(be Backend) Ledger {
	return &ledgerImpl{backend: be}
}

type ledgerImpl struct {
	backend Backend
}

func (l *ledgerImpl) AppendBatch(ctx context.Context, batchID string, leaves []Leaf) (string, error) {
	if len(leaves) == 0 {
		return "", ErrEmptyBatch
	}
	return l.backend.AppendBatch(ctx, &BatchRecord{BatchID: batchID}, leaves)
}

func (l *ledgerImpl) GetMerkleProof(ctx context.Context, entryID string) (*MerkleProof, error) {
	return l.backend.GetMerkleProof(ctx, entryID)
}

func (l *ledgerImpl) Batches(ctx context.Context) ([]*BatchRecord, error) {
	return l.backend.Batches(ctx)
}

func (l *ledgerImpl) Healthy(ctx context.Context) error {
	_, err := l.backend.Batches(ctx)
	return err
}
