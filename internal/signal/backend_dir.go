package signal

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DirBackend 每个信号存为单独 JSON 文件：<dir>/<escaped id>.json。
type DirBackend struct {
	dir string
	mu  sync.Mutex
}

// NewDirBackend 使用 dir 作为存储目录；不存在则创建。
func NewDirBackend(dir string) (*DirBackend, error) {
	if dir == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DirBackend{dir: dir}, nil
}

func (b *DirBackend) path(key string) string {
	return filepath.Join(b.dir, url.PathEscape(key)+".json")
}

// Put 写入；同 key 覆盖。先写临时文件再 rename，读方看不到半截内容。
func (b *DirBackend) Put(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tmp := b.path(key) + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path(key))
}

// Get 读取；不存在返回 nil, nil。
func (b *DirBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (b *DirBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Purge 删除目录下全部 .json 文件。
func (b *DirBackend) Purge(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (b *DirBackend) Close() error { return nil }
