package signal

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, b Backend) *Store {
	t.Helper()
	d, err := NewDeriver([]byte("SECRET"))
	require.NoError(t, err)
	return NewStore(b, d, NewTTLPolicy(), nil)
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir, err := NewDirBackend(t.TempDir())
	require.NoError(t, err)
	bdg, err := NewBadgerBackend("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bdg.Close() })
	out := map[string]Backend{
		"memory": NewMemoryBackend(),
		"dir":    dir,
		"badger": bdg,
	}
	if addr := os.Getenv("ECHOKEY_TEST_REDIS_ADDR"); addr != "" {
		rb, err := NewRedisBackend(context.Background(), addr, "", 15)
		require.NoError(t, err)
		t.Cleanup(func() { _ = rb.Close() })
		out["redis"] = rb
	}
	return out
}

func TestStore_IssueGetClear(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, b)
			ctx := context.Background()

			sig, err := s.Issue(ctx, "TX123", "ETH", t0)
			require.NoError(t, err)
			require.Equal(t, "BED41B2021A8DA6A", sig.Code)
			require.Equal(t, "2025-01-01T00:00:00.000Z", sig.IssuedAt)
			require.Equal(t, t0.Add(60*time.Second), sig.ExpiresAt)

			got, err := s.Get(ctx, "TX123")
			require.NoError(t, err)
			require.Equal(t, sig.Code, got.Code)
			require.True(t, got.ExpiresAt.Equal(sig.ExpiresAt))

			require.NoError(t, s.Clear(ctx, "TX123"))
			got, err = s.Get(ctx, "TX123")
			require.NoError(t, err)
			require.Nil(t, got)
			require.NoError(t, s.Clear(ctx, "TX123"))
		})
	}
}

func TestStore_IssueReplaces(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, b)
			ctx := context.Background()
			first, err := s.Issue(ctx, "0xabc", "BTC", t0)
			require.NoError(t, err)
			second, err := s.Issue(ctx, "0xabc", "BTC", t0.Add(time.Second))
			require.NoError(t, err)
			require.NotEqual(t, first.Code, second.Code)

			got, err := s.Get(ctx, "0xabc")
			require.NoError(t, err)
			require.Equal(t, second.IssuedAt, got.IssuedAt)
			require.Equal(t, second.Code, got.Code)
		})
	}
}

func TestStore_Purge(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, b)
			ctx := context.Background()
			for _, id := range []string{"a", "b", "c"} {
				_, err := s.Issue(ctx, id, "SOL", t0)
				require.NoError(t, err)
			}
			require.NoError(t, s.Purge(ctx))
			for _, id := range []string{"a", "b", "c"} {
				got, err := s.Get(ctx, id)
				require.NoError(t, err)
				require.Nil(t, got)
			}
		})
	}
}

func TestStore_ConcurrentIssueKeepsOneSignal(t *testing.T) {
	s := newTestStore(t, NewMemoryBackend())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Issue(ctx, "TX", "ETH", t0.Add(time.Duration(i)*time.Millisecond))
		}(i)
	}
	wg.Wait()
	got, err := s.Get(ctx, "TX")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, FormatTimestamp(t0.Add(31*time.Millisecond)), got.IssuedAt)
	code, err := s.Deriver().Derive("TX", got.IssuedAt)
	require.NoError(t, err)
	require.Equal(t, code, got.Code)
}

func TestStore_IssueKeepsNewerSignal(t *testing.T) {
	s := newTestStore(t, NewMemoryBackend())
	ctx := context.Background()
	newer, err := s.Issue(ctx, "TX", "ETH", t0.Add(2*time.Second))
	require.NoError(t, err)
	// 较早时间的签发晚到，不得覆盖
	older, err := s.Issue(ctx, "TX", "ETH", t0.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, newer.IssuedAt, older.IssuedAt)
	require.Equal(t, newer.Code, older.Code)

	got, err := s.Get(ctx, "TX")
	require.NoError(t, err)
	require.Equal(t, newer.IssuedAt, got.IssuedAt)

	// 同一毫秒重签照常覆盖
	same, err := s.Issue(ctx, "TX", "ETH", t0.Add(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, newer.Code, same.Code)
}

type failingBackend struct{ *MemoryBackend }

func (*failingBackend) Put(context.Context, string, []byte) error { return errors.New("disk full") }
func (*failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("io timeout")
}

func TestStore_BackendErrorsWrapped(t *testing.T) {
	s := newTestStore(t, &failingBackend{NewMemoryBackend()})
	_, err := s.Issue(context.Background(), "TX", "ETH", t0)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = s.Get(context.Background(), "TX")
	require.ErrorIs(t, err, ErrStoreUnavailable)
}
