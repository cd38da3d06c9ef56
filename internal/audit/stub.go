package audit

import (
	"context"
	"sync"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
)

// MemoryStore 内存实现，单机演示与测试用。
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*models.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make([]*models.AuditEntry, 0)}
}

func (s *MemoryStore) Append(ctx context.Context, e *models.AuditEntry) error {
	if e == nil {
		return nil
	}
	ensureID(e)
	cp := *e
	s.mu.Lock()
	s.entries = append(s.entries, &cp)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.entries, limit), nil
}

func (s *MemoryStore) QueryByTransaction(ctx context.Context, transactionID string) ([]*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byTransaction(s.entries, transactionID), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byID(s.entries, id), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = s.entries[:0]
	s.mu.Unlock()
	return nil
}
