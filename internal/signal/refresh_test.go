package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type stopRecord struct {
	id     string
	reason StopReason
}

func newTestScheduler(t *testing.T, clock clockwork.Clock, opts ...SchedulerOption) (*Scheduler, *Store, chan stopRecord) {
	t.Helper()
	store := newTestStore(t, NewMemoryBackend())
	stops := make(chan stopRecord, 4)
	opts = append([]SchedulerOption{
		WithClock(clock),
		WithStopHook(func(id string, r StopReason) { stops <- stopRecord{id, r} }),
	}, opts...)
	return NewScheduler(store, opts...), store, stops
}

func TestHandleTick_RenewsNearExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(52 * time.Second))
	s, store, _ := newTestScheduler(t, clock)
	ctx := context.Background()
	_, err := store.Issue(ctx, "TX", "ETH", t0)
	require.NoError(t, err)

	h := s.newHandle(ctx, "TX", "ETH")
	require.False(t, h.tick())
	require.Equal(t, int64(1), h.Renewals())
	require.Equal(t, StateActive, h.State())

	sig, err := store.Get(ctx, "TX")
	require.NoError(t, err)
	require.Equal(t, FormatTimestamp(t0.Add(52*time.Second)), sig.IssuedAt)
	require.True(t, sig.ExpiresAt.After(t0.Add(60*time.Second)))
}

// flakyRenewer 前 failures 次 Issue 返回存储错误。
type flakyRenewer struct {
	*Store
	failures int
	calls    int
}

func (r *flakyRenewer) Issue(ctx context.Context, id, network string, now time.Time) (*models.Signal, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, errors.Join(ErrStoreUnavailable, errors.New("connection reset"))
	}
	return r.Store.Issue(ctx, id, network, now)
}

func TestHandleTick_RenewalFailureRetriesNextTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(52 * time.Second))
	store := newTestStore(t, NewMemoryBackend())
	ctx := context.Background()
	first, err := store.Issue(ctx, "TX", "ETH", t0)
	require.NoError(t, err)

	flaky := &flakyRenewer{Store: store, failures: 1}
	stops := 0
	s := NewScheduler(flaky, WithClock(clock), WithStopHook(func(string, StopReason) { stops++ }))
	h := s.newHandle(ctx, "TX", "ETH")

	require.False(t, h.tick())
	require.Equal(t, StateActive, h.State())
	require.Zero(t, h.Renewals())
	sig, err := store.Get(ctx, "TX")
	require.NoError(t, err)
	require.Equal(t, first.IssuedAt, sig.IssuedAt)

	clock.Advance(DefaultRefreshInterval)
	require.False(t, h.tick())
	require.Equal(t, StateActive, h.State())
	require.Equal(t, int64(1), h.Renewals())
	require.Equal(t, 2, flaky.calls)
	require.Zero(t, stops)

	sig, err = store.Get(ctx, "TX")
	require.NoError(t, err)
	require.Equal(t, FormatTimestamp(t0.Add(52*time.Second+DefaultRefreshInterval)), sig.IssuedAt)
}

func TestHandleTick_NoRenewalWhenPlentyLeft(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(50 * time.Second))
	s, store, _ := newTestScheduler(t, clock)
	ctx := context.Background()
	first, _ := store.Issue(ctx, "TX", "ETH", t0)

	h := s.newHandle(ctx, "TX", "ETH")
	require.False(t, h.tick())
	require.Zero(t, h.Renewals())
	sig, _ := store.Get(ctx, "TX")
	require.Equal(t, first.IssuedAt, sig.IssuedAt)
}

func TestHandleTick_StopsWhenExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(60 * time.Second))
	s, store, stops := newTestScheduler(t, clock)
	ctx := context.Background()
	first, _ := store.Issue(ctx, "TX", "ETH", t0)

	h := s.newHandle(ctx, "TX", "ETH")
	require.True(t, h.tick())
	require.Equal(t, StateStoppedExpired, h.State())
	require.Equal(t, StopExpired, h.Reason())
	require.Zero(t, h.Renewals())
	require.Equal(t, stopRecord{"TX", StopExpired}, <-stops)

	sig, _ := store.Get(ctx, "TX")
	require.Equal(t, first.IssuedAt, sig.IssuedAt)
	// 终态后再 tick 不续期
	require.True(t, h.tick())
	require.Zero(t, h.Renewals())
}

func TestHandleTick_StopsWithoutSignal(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	s, _, stops := newTestScheduler(t, clock)
	h := s.newHandle(context.Background(), "missing", "ETH")
	require.True(t, h.tick())
	require.Equal(t, StateStoppedNoSignal, h.State())
	require.Equal(t, StopNoSignal, (<-stops).reason)
}

func TestScheduler_LoopRenewsThenStops(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0.Add(47 * time.Second))
	renewed := make(chan *models.Signal, 1)
	s, store, stops := newTestScheduler(t, clock, WithRenewHook(func(sig *models.Signal) { renewed <- sig }))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := store.Issue(ctx, "TX", "ETH", t0)
	require.NoError(t, err)

	h := s.Start(ctx, "TX", "ETH")
	require.True(t, s.Active("TX"))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultRefreshInterval)

	select {
	case sig := <-renewed:
		require.Equal(t, FormatTimestamp(t0.Add(52*time.Second)), sig.IssuedAt)
	case <-ctx.Done():
		t.Fatal("no renewal")
	}

	h.Stop()
	h.Stop()
	<-h.Done()
	require.Equal(t, StopCancelled, h.Reason())
	require.Equal(t, StopCancelled, (<-stops).reason)
	require.False(t, s.Active("TX"))
	require.False(t, s.Stop("TX"))
}

func TestScheduler_StartReplacesExisting(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	s, _, _ := newTestScheduler(t, clock)
	ctx := context.Background()
	first := s.Start(ctx, "TX", "ETH")
	second := s.Start(ctx, "TX", "ETH")
	<-first.Done()
	require.Equal(t, StopCancelled, first.Reason())
	require.True(t, s.Active("TX"))
	s.StopAll()
	<-second.Done()
	require.False(t, s.Active("TX"))
}
