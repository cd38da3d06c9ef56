package chain

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LocalStore 内存 + 可选目录持久化（batches/、proofs/）。
type LocalStore struct {
	mu       sync.RWMutex
	batches  []*BatchRecord
	proofs   map[string]*MerkleProof
	basePath string
	closed   bool
}

// NewLocalStore 创建仅内存的 LocalStore。
func NewLocalStore() *LocalStore {
	return NewLocalStoreWithPath("")
}

// AppendBatch 构建 Merkle 树，持久化批次与每条记录的验真数据。
func (s *LocalStore) AppendBatch(ctx context.Context, batch *BatchRecord, leaves []Leaf) (string, error) {
	if batch == nil {
		return "", errors.New("chain: nil BatchRecord")
	}
	if len(leaves) == 0 {
		return "", ErrEmptyBatch
	}
	rootHash, paths := BuildMerkleTree(leaves)
	batch.MerkleRoot = rootHash
	batch.Size = len(leaves)
	if batch.Timestamp.IsZero() {
		batch.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStorageClosed
	}
	for i := range leaves {
		proof := &MerkleProof{
			EntryID:    leaves[i].EntryID,
			BatchID:    batch.BatchID,
			MerkleRoot: rootHash,
			LeafHash:   paths[i].LeafHash,
			Index:      paths[i].Index,
			Siblings:   paths[i].Siblings,
		}
		if s.basePath != "" {
			if err := writeJSON(s.proofPath(proof.EntryID), proof); err != nil {
				return "", err
			}
		}
		s.proofs[proof.EntryID] = proof
	}
	if s.basePath != "" {
		if err := writeJSON(s.batchPath(batch.BatchID), batch); err != nil {
			return "", err
		}
	}
	s.batches = append(s.batches, batch)
	return rootHash, nil
}

// GetMerkleProof 先查内存，basePath 非空且未命中时读文件。
func (s *LocalStore) GetMerkleProof(ctx context.Context, entryID string) (*MerkleProof, error) {
	s.mu.RLock()
	proof, ok := s.proofs[entryID]
	s.mu.RUnlock()
	if ok {
		return proof, nil
	}
	if s.basePath == "" {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(s.proofPath(entryID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var p MerkleProof
	if json.Unmarshal(b, &p) != nil {
		return nil, errors.New("chain: invalid proof file")
	}
	return &p, nil
}

// Batches basePath 非空时从目录读取（含之前进程写入的批次），按时间排序。
func (s *LocalStore) Batches(ctx context.Context) ([]*BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStorageClosed
	}
	if s.basePath == "" {
		return append([]*BatchRecord(nil), s.batches...), nil
	}
	entries, err := os.ReadDir(filepath.Join(s.basePath, "batches"))
	if err != nil {
		return nil, err
	}
	var out []*BatchRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.basePath, "batches", e.Name()))
		if err != nil {
			return nil, err
		}
		var br BatchRecord
		if json.Unmarshal(b, &br) == nil {
			out = append(out, &br)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Close 之后写入返回 ErrStorageClosed。
func (s *LocalStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
