package notify

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/network"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Simulator 模拟链上确认：在网络确认区间内随机延迟后发布 ConfirmationEvent。
type Simulator struct {
	clock    clockwork.Clock
	registry *network.Registry
	pub      Publisher
	log      *zap.Logger

	mu      sync.Mutex
	rnd     *rand.Rand
	pending map[string]clockwork.Timer
}

// SimulatorOption 可选项。
type SimulatorOption func(*Simulator)

func WithSimulatorClock(c clockwork.Clock) SimulatorOption {
	return func(s *Simulator) { s.clock = c }
}

// WithSeed 固定随机源。
func WithSeed(seed int64) SimulatorOption {
	return func(s *Simulator) { s.rnd = rand.New(rand.NewSource(seed)) }
}

func NewSimulator(registry *network.Registry, pub Publisher, log *zap.Logger, opts ...SimulatorOption) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Simulator{
		clock:    clockwork.NewRealClock(),
		registry: registry,
		pub:      pub,
		log:      log.Named("notify.simulator"),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		pending:  make(map[string]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Simulate 安排一次确认，返回延迟。同一交易重复调用会替换之前的安排。
func (s *Simulator) Simulate(ctx context.Context, transactionID, networkID string) time.Duration {
	min, max := s.registry.ConfirmationRange(networkID)
	s.mu.Lock()
	defer s.mu.Unlock()
	spanSec := int64((max - min) / time.Second)
	delay := min
	if spanSec > 0 {
		delay += time.Duration(s.rnd.Int63n(spanSec)) * time.Second
	}
	block := uint64(s.rnd.Int63n(1_000_000))
	if old, ok := s.pending[transactionID]; ok {
		old.Stop()
	}
	var timer clockwork.Timer
	timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.pending[transactionID] == timer {
			delete(s.pending, transactionID)
		}
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		ev := models.ConfirmationEvent{
			TransactionID: transactionID,
			Confirmed:     true,
			BlockNumber:   block,
			Timestamp:     s.clock.Now().UTC(),
		}
		if err := s.pub.Publish(ctx, ev); err != nil {
			s.log.Warn("publish confirmation failed", zap.String("transaction_id", transactionID), zap.Error(err))
			return
		}
		s.log.Info("block confirmed", zap.String("transaction_id", transactionID), zap.Uint64("block", block))
	})
	s.pending[transactionID] = timer
	s.log.Debug("confirmation scheduled", zap.String("transaction_id", transactionID), zap.String("network", networkID), zap.Duration("delay", delay))
	return delay
}

// Cancel 取消尚未触发的确认。
func (s *Simulator) Cancel(transactionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[transactionID]; ok {
		t.Stop()
		delete(s.pending, transactionID)
	}
}

// Stop 取消全部待触发确认。
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}

// Pending 待触发数量。
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
