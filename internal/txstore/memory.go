package txstore

import (
	"context"
	"sort"
	"sync"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/samber/lo"
)

// MemoryRepository 进程内实现；读写都返回副本。
type MemoryRepository struct {
	mu  sync.RWMutex
	txs map[string]*models.Transaction
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{txs: make(map[string]*models.Transaction)}
}

func clone(tx *models.Transaction) *models.Transaction {
	cp := *tx
	if tx.ConfirmedAt != nil {
		at := *tx.ConfirmedAt
		cp.ConfirmedAt = &at
	}
	return &cp
}

func (r *MemoryRepository) Create(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txs[tx.ID]; ok {
		return ErrExists
	}
	r.txs[tx.ID] = clone(tx)
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, nil
	}
	return clone(tx), nil
}

func (r *MemoryRepository) Update(ctx context.Context, id string, fn func(tx *models.Transaction) error) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := clone(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	r.txs[id] = next
	return clone(next), nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*models.Transaction, error) {
	r.mu.RLock()
	out := lo.MapToSlice(r.txs, func(_ string, tx *models.Transaction) *models.Transaction { return clone(tx) })
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.txs = make(map[string]*models.Transaction)
	r.mu.Unlock()
	return nil
}
