package audit

import (
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

func ensureID(e *models.AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
}

// newestFirst 按追加顺序的切片生成倒序副本并截断。
func newestFirst(entries []*models.AuditEntry, limit int) []*models.AuditEntry {
	out := make([]*models.AuditEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func byTransaction(entries []*models.AuditEntry, transactionID string) []*models.AuditEntry {
	return lo.Filter(entries, func(e *models.AuditEntry, _ int) bool {
		return e.TransactionID == transactionID
	})
}

func byID(entries []*models.AuditEntry, id string) *models.AuditEntry {
	e, ok := lo.Find(entries, func(e *models.AuditEntry) bool { return e.ID == id })
	if !ok {
		return nil
	}
	return e
}
