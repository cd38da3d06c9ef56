package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
)

// JSONLStore 追加写 JSONL 文件；查询读取整个文件线性扫描。
type JSONLStore struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// NewJSONLStore 创建或打开 path 对应的 JSONL 文件；目录不存在会创建。
func NewJSONLStore(path string) (*JSONLStore, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &JSONLStore{path: path, f: f}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// Append 追加一行 JSON。
func (s *JSONLStore) Append(ctx context.Context, e *models.AuditEntry) error {
	if e == nil {
		return nil
	}
	ensureID(e)
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	_, err = s.f.Write(data)
	return err
}

// readAll 读取全部记录（追加顺序）；损坏行跳过。
func (s *JSONLStore) readAll() ([]*models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		_ = s.f.Sync()
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*models.AuditEntry
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var e models.AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

func (s *JSONLStore) List(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	return newestFirst(all, limit), nil
}

func (s *JSONLStore) QueryByTransaction(ctx context.Context, transactionID string) ([]*models.AuditEntry, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	return byTransaction(all, transactionID), nil
}

func (s *JSONLStore) Get(ctx context.Context, id string) (*models.AuditEntry, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	return byID(all, id), nil
}

// Clear 截断文件。
func (s *JSONLStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		if err := s.f.Close(); err != nil {
			return err
		}
		s.f = nil
	}
	if err := os.Truncate(s.path, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	f, err := openAppend(s.path)
	if err != nil {
		return err
	}
	s.f = f
	return nil
}

// Close 关闭底层文件。
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
