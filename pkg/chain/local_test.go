package chain

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalStore_AppendBatch_GetMerkleProof(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	defer s.Close()

	leaves := []Leaf{
		{EntryID: "entry-1", Hash: "aa"},
		{EntryID: "entry-2", Hash: "bb"},
	}
	batch := &BatchRecord{BatchID: "batch-1"}
	root, err := s.AppendBatch(ctx, batch, leaves)
	if err != nil {
		t.Fatal(err)
	}
	if root == "" {
		t.Fatal("empty merkle root")
	}

	proof, err := s.GetMerkleProof(ctx, "entry-2")
	if err != nil {
		t.Fatal(err)
	}
	if proof.BatchID != "batch-1" || proof.MerkleRoot != root || proof.LeafHash != "bb" || proof.Index != 1 {
		t.Errorf("proof: %+v", proof)
	}
	if !VerifyProof(proof) {
		t.Error("stored proof does not verify")
	}
	batches, err := s.Batches(ctx)
	if err != nil || len(batches) != 1 || batches[0].Size != 2 {
		t.Errorf("Batches: %+v %v", batches, err)
	}
}

func TestLocalStore_AppendBatch_Persist(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "chain")
	s := NewLocalStoreWithPath(dir)
	defer s.Close()

	leaves := []Leaf{
		{EntryID: "a:1", Hash: "h1"},
		{EntryID: "a:2", Hash: "h2"},
	}
	batch := &BatchRecord{BatchID: "b1", Timestamp: time.Now().UTC()}
	root, err := s.AppendBatch(ctx, batch, leaves)
	if err != nil {
		t.Fatal(err)
	}

	// 新实例从目录读
	s2 := NewLocalStoreWithPath(dir)
	defer s2.Close()
	proof, err := s2.GetMerkleProof(ctx, "a:1")
	if err != nil {
		t.Fatal(err)
	}
	if proof.MerkleRoot != root || proof.BatchID != "b1" {
		t.Errorf("got %+v", proof)
	}
	batches, err := s2.Batches(ctx)
	if err != nil || len(batches) != 1 || batches[0].MerkleRoot != root {
		t.Errorf("Batches: %+v %v", batches, err)
	}
}

func TestLocalStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	if _, err := s.GetMerkleProof(ctx, "no-such-entry"); err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if _, err := NewLedger(s).AppendBatch(ctx, "b", nil); err != ErrEmptyBatch {
		t.Errorf("want ErrEmptyBatch, got %v", err)
	}
	s.Close()
	if _, err := s.AppendBatch(ctx, &BatchRecord{BatchID: "b"}, []Leaf{{EntryID: "x", Hash: "y"}}); err != ErrStorageClosed {
		t.Errorf("want ErrStorageClosed, got %v", err)
	}
	if err := NewLedger(s).Healthy(ctx); err != ErrStorageClosed {
		t.Errorf("Healthy after close: %v", err)
	}
}
