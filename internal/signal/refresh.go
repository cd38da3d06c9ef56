package signal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	// DefaultRefreshInterval 续期检查周期。
	DefaultRefreshInterval = 5 * time.Second
	// DefaultRefreshThreshold 剩余时长低于该值时续期。
	DefaultRefreshThreshold = 10 * time.Second
)

// 调度器状态。
const (
	StateActive           = "active"
	StateStoppedExpired   = "stopped_expired"
	StateStoppedNoSignal  = "stopped_no_signal"
	StateStoppedCancelled = "stopped_cancelled"
)

// StopReason 调度终止原因。
type StopReason string

const (
	StopExpired   StopReason = "expired"
	StopNoSignal  StopReason = "no_signal"
	StopCancelled StopReason = "cancelled"
)

var stopEvents = map[StopReason]string{
	StopExpired:   "expire",
	StopNoSignal:  "exhaust",
	StopCancelled: "cancel",
}

// Renewer 调度器依赖的存储能力；*Store 满足。
type Renewer interface {
	Get(ctx context.Context, transactionID string) (*models.Signal, error)
	Issue(ctx context.Context, transactionID, networkID string, now time.Time) (*models.Signal, error)
}

// Scheduler 在确认事件到达前为信号续期。每笔交易至多一个活动 Handle。
type Scheduler struct {
	store     Renewer
	clock     clockwork.Clock
	interval  time.Duration
	threshold time.Duration
	log       *zap.Logger
	onRenew   func(*models.Signal)
	onStop    func(transactionID string, reason StopReason)

	mu      sync.Mutex
	handles map[string]*Handle
}

// SchedulerOption 可选项。
type SchedulerOption func(*Scheduler)

func WithClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithThreshold(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.threshold = d
		}
	}
}

func WithLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRenewHook 每次续期成功后回调。
func WithRenewHook(fn func(*models.Signal)) SchedulerOption {
	return func(s *Scheduler) { s.onRenew = fn }
}

// WithStopHook 调度进入终态时回调，每个 Handle 至多一次。
func WithStopHook(fn func(transactionID string, reason StopReason)) SchedulerOption {
	return func(s *Scheduler) { s.onStop = fn }
}

func NewScheduler(store Renewer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:     store,
		clock:     clockwork.NewRealClock(),
		interval:  DefaultRefreshInterval,
		threshold: DefaultRefreshThreshold,
		log:       zap.NewNop(),
		handles:   make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("signal.refresh")
	return s
}

// Start 为交易启动续期；已有的调度会先被停止。
func (s *Scheduler) Start(ctx context.Context, transactionID, networkID string) *Handle {
	h := s.newHandle(ctx, transactionID, networkID)
	s.mu.Lock()
	old := s.handles[transactionID]
	s.handles[transactionID] = h
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	go h.run()
	return h
}

// Stop 停止交易的续期；无活动调度返回 false。
func (s *Scheduler) Stop(transactionID string) bool {
	s.mu.Lock()
	h := s.handles[transactionID]
	delete(s.handles, transactionID)
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h.Stop()
	return true
}

// StopAll 停止全部调度。
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	hs := make([]*Handle, 0, len(s.handles))
	for id, h := range s.handles {
		hs = append(hs, h)
		delete(s.handles, id)
	}
	s.mu.Unlock()
	for _, h := range hs {
		h.Stop()
	}
}

// Active 返回交易是否有活动调度。
func (s *Scheduler) Active(transactionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[transactionID]
	return ok && h.State() == StateActive
}

func (s *Scheduler) release(h *Handle) {
	s.mu.Lock()
	if s.handles[h.transactionID] == h {
		delete(s.handles, h.transactionID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) newHandle(ctx context.Context, transactionID, networkID string) *Handle {
	hctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		transactionID: transactionID,
		networkID:     networkID,
		sched:         s,
		ctx:           hctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	h.fsm = fsm.NewFSM(StateActive, fsm.Events{
		{Name: "expire", Src: []string{StateActive}, Dst: StateStoppedExpired},
		{Name: "exhaust", Src: []string{StateActive}, Dst: StateStoppedNoSignal},
		{Name: "cancel", Src: []string{StateActive}, Dst: StateStoppedCancelled},
	}, fsm.Callbacks{})
	return h
}

// Handle 单笔交易的续期任务。
type Handle struct {
	transactionID string
	networkID     string
	sched         *Scheduler
	fsm           *fsm.FSM
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
	stopOnce      sync.Once
	renewals      atomic.Int64
	reason        atomic.Value
}

// Stop 幂等；任意状态下可调用。
func (h *Handle) Stop() {
	h.stopOnce.Do(h.cancel)
}

// Done 在任务退出后关闭。
func (h *Handle) Done() <-chan struct{} { return h.done }

// State 当前状态。
func (h *Handle) State() string { return h.fsm.Current() }

// Reason 终止原因；仍在运行时为空。
func (h *Handle) Reason() StopReason {
	r, _ := h.reason.Load().(StopReason)
	return r
}

// Renewals 已续期次数。
func (h *Handle) Renewals() int64 { return h.renewals.Load() }

func (h *Handle) run() {
	defer close(h.done)
	timer := h.sched.clock.NewTimer(h.sched.interval)
	defer timer.Stop()
	for {
		select {
		case <-h.ctx.Done():
			h.finish(StopCancelled)
			return
		case <-timer.Chan():
			if h.tick() {
				return
			}
			timer.Reset(h.sched.interval)
		}
	}
}

// tick 执行一次检查；返回 true 表示已进入终态。
func (h *Handle) tick() bool {
	if h.ctx.Err() != nil {
		h.finish(StopCancelled)
		return true
	}
	s := h.sched
	sig, err := s.store.Get(h.ctx, h.transactionID)
	if err != nil {
		s.log.Warn("refresh lookup failed, retry next tick", zap.String("transaction_id", h.transactionID), zap.Error(err))
		return false
	}
	if sig == nil {
		h.finish(StopNoSignal)
		return true
	}
	now := s.clock.Now()
	left := sig.TimeLeft(now)
	if left <= 0 {
		h.finish(StopExpired)
		return true
	}
	if left >= s.threshold {
		return false
	}
	// stop 之后不再发起续期
	if h.ctx.Err() != nil {
		h.finish(StopCancelled)
		return true
	}
	network := h.networkID
	if network == "" {
		network = sig.Network
	}
	renewed, err := s.store.Issue(h.ctx, h.transactionID, network, now)
	if err != nil {
		s.log.Warn("refresh renewal failed, retry next tick", zap.String("transaction_id", h.transactionID), zap.Error(err))
		return false
	}
	h.renewals.Add(1)
	s.log.Info("signal renewed", zap.String("transaction_id", h.transactionID), zap.Duration("time_left", left))
	if s.onRenew != nil {
		s.onRenew(renewed)
	}
	return false
}

func (h *Handle) finish(reason StopReason) {
	if err := h.fsm.Event(context.Background(), stopEvents[reason]); err != nil {
		return
	}
	h.reason.Store(reason)
	h.sched.release(h)
	h.sched.log.Info("refresh stopped", zap.String("transaction_id", h.transactionID), zap.String("reason", string(reason)))
	if reason != StopCancelled {
		h.Stop()
	}
	if h.sched.onStop != nil {
		h.sched.onStop(h.transactionID, reason)
	}
}
