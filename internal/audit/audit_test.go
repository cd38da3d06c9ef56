package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	jsonl, err := NewJSONLStore(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("NewJSONLStore: %v", err)
	}
	t.Cleanup(func() { _ = jsonl.Close() })
	out := map[string]Store{"memory": NewMemoryStore(), "jsonl": jsonl}
	if dsn := os.Getenv("ECHOKEY_TEST_POSTGRES_DSN"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			t.Fatalf("gorm open: %v", err)
		}
		gs, err := NewGormStore(db)
		if err != nil {
			t.Fatalf("NewGormStore: %v", err)
		}
		_ = gs.Clear(context.Background())
		out["postgres"] = gs
	}
	return out
}

func TestStore_AppendListQuery(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 30, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entries := []*models.AuditEntry{
				{TransactionID: "tx-1", Code: "AAAA", Approved: false, Kind: models.OutcomeMismatch, ValidatedAt: now},
				{TransactionID: "tx-1", Code: "BBBB", Approved: true, Kind: models.OutcomeApproved, ValidatedAt: now.Add(time.Second)},
				{TransactionID: "tx-2", Code: "CCCC", Kind: models.OutcomeExpired, ValidatedAt: now.Add(2 * time.Second)},
			}
			for _, e := range entries {
				if err := store.Append(ctx, e); err != nil {
					t.Fatalf("Append: %v", err)
				}
				if e.ID == "" {
					t.Fatal("Append should assign an id")
				}
			}
			if err := store.Append(ctx, nil); err != nil {
				t.Errorf("Append(nil): %v", err)
			}

			list, err := store.List(ctx, 0)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 3 || list[0].Code != "CCCC" || list[2].Code != "AAAA" {
				t.Errorf("List order wrong: %v", codes(list))
			}
			top, _ := store.List(ctx, 2)
			if len(top) != 2 || top[0].Code != "CCCC" {
				t.Errorf("List(2) = %v", codes(top))
			}

			tx1, err := store.QueryByTransaction(ctx, "tx-1")
			if err != nil {
				t.Fatalf("QueryByTransaction: %v", err)
			}
			if len(tx1) != 2 {
				t.Errorf("tx-1: expected 2, got %d", len(tx1))
			}

			got, err := store.Get(ctx, entries[1].ID)
			if err != nil || got == nil || !got.Approved {
				t.Errorf("Get: %+v %v", got, err)
			}
			missing, err := store.Get(ctx, "nope")
			if err != nil || missing != nil {
				t.Errorf("Get missing: %+v %v", missing, err)
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			list, _ = store.List(ctx, 0)
			if len(list) != 0 {
				t.Errorf("after Clear: %d entries", len(list))
			}
			if err := store.Append(ctx, &models.AuditEntry{TransactionID: "tx-3", ValidatedAt: now}); err != nil {
				t.Fatalf("Append after Clear: %v", err)
			}
			list, _ = store.List(ctx, 0)
			if len(list) != 1 {
				t.Errorf("Append after Clear: %d entries", len(list))
			}
		})
	}
}

func TestJSONLStore_SkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(path, []byte("{broken\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := NewJSONLStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Append(context.Background(), &models.AuditEntry{TransactionID: "tx"}); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(context.Background(), 0)
	if err != nil || len(list) != 1 {
		t.Errorf("List = %d, %v", len(list), err)
	}
}

func codes(list []*models.AuditEntry) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.Code)
	}
	return out
}
