// Package service 编排交易创建、信号签发、校验、确认事件与续期。
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/audit"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/delivery"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/metrics"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/network"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/notify"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/ownership"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/signal"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/txstore"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	ErrUnknownNetwork   = errors.New("service: unknown network")
	ErrInvalidAddress   = errors.New("service: invalid address")
	ErrInvalidAmount    = errors.New("service: invalid amount")
	ErrNetworkMismatch  = errors.New("service: network does not match transaction")
	ErrAlreadyProcessed = errors.New("service: transaction already processed")
)

// Confirmer 安排外部确认事件；*notify.Simulator 满足。
type Confirmer interface {
	Simulate(ctx context.Context, transactionID, networkID string) time.Duration
	Cancel(transactionID string)
	Stop()
}

// Deps 组装 Service 所需的协作者。Confirmations、Recipients、Delivery、Metrics、Clock、Logger 可为空。
type Deps struct {
	Transactions  txstore.Repository
	Signals       *signal.Store
	Audit         audit.Store
	Bus           *notify.Bus
	Confirmations Confirmer
	Registry      *network.Registry
	Delivery      delivery.Provider
	Recipients    ownership.Resolver
	Metrics       *metrics.Metrics
	Clock         clockwork.Clock
	Logger        *zap.Logger

	RefreshInterval  time.Duration
	RefreshThreshold time.Duration
}

// CreateInput 创建交易的入参。
type CreateInput struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Network   string `json:"network"`
}

// ValidateInput 校验入参：通道一的交易 ID 与通道二的信号码、签发时间。
type ValidateInput struct {
	TransactionID string `json:"transaction_id"`
	Code          string `json:"code"`
	IssuedAt      string `json:"issued_at"`
}

type Service struct {
	txs        txstore.Repository
	signals    *signal.Store
	validator  *signal.Validator
	scheduler  *signal.Scheduler
	audit      audit.Store
	bus        *notify.Bus
	confirmer  Confirmer
	registry   *network.Registry
	delivery   delivery.Provider
	recipients ownership.Resolver
	metrics    *metrics.Metrics
	clock      clockwork.Clock
	log        *zap.Logger

	// 续期与确认的生命周期不跟随单个请求。
	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
}

// New 组装服务并订阅确认事件总线。调用方负责 Close。
func New(d Deps) (*Service, error) {
	if d.Transactions == nil || d.Signals == nil || d.Audit == nil {
		return nil, fmt.Errorf("service: transactions, signals and audit are required")
	}
	if d.Registry == nil {
		d.Registry = network.NewRegistry()
	}
	if d.Bus == nil {
		d.Bus = notify.NewBus(d.Logger)
	}
	if d.Delivery == nil {
		d.Delivery = delivery.StubProvider{}
	}
	if d.Recipients == nil {
		d.Recipients = ownership.StubResolver{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(nil)
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		txs:        d.Transactions,
		signals:    d.Signals,
		validator:  signal.NewValidator(d.Signals.Deriver()),
		audit:      d.Audit,
		bus:        d.Bus,
		confirmer:  d.Confirmations,
		registry:   d.Registry,
		delivery:   d.Delivery,
		recipients: d.Recipients,
		metrics:    d.Metrics,
		clock:      d.Clock,
		log:        d.Logger.Named("service"),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.scheduler = signal.NewScheduler(d.Signals,
		signal.WithClock(d.Clock),
		signal.WithInterval(d.RefreshInterval),
		signal.WithThreshold(d.RefreshThreshold),
		signal.WithLogger(d.Logger),
		signal.WithRenewHook(s.onRenewed),
		signal.WithStopHook(s.onRefreshStopped),
	)
	s.unsub = s.bus.Subscribe(s.applyConfirmation)
	return s, nil
}

// Close 取消订阅并停止全部续期与待触发确认。
func (s *Service) Close() {
	s.unsub()
	s.scheduler.StopAll()
	if s.confirmer != nil {
		s.confirmer.Stop()
	}
	s.cancel()
}

// Registry 返回网络注册表。
func (s *Service) Registry() *network.Registry { return s.registry }

// Signals 返回信号存储。
func (s *Service) Signals() *signal.Store { return s.signals }

// Scheduler 返回续期调度器。
func (s *Service) Scheduler() *signal.Scheduler { return s.scheduler }

// CreateTransaction 校验网络、地址与金额后记录一笔 pending 交易，并安排确认。
func (s *Service) CreateTransaction(ctx context.Context, in CreateInput) (*models.Transaction, error) {
	n, ok := s.registry.Get(strings.TrimSpace(in.Network))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, in.Network)
	}
	sender := strings.TrimSpace(in.Sender)
	recipient := strings.TrimSpace(in.Recipient)
	if !n.ValidAddress(sender) {
		return nil, fmt.Errorf("%w: sender %q for %s", ErrInvalidAddress, sender, n.ID)
	}
	if !n.ValidAddress(recipient) {
		return nil, fmt.Errorf("%w: recipient %q for %s", ErrInvalidAddress, recipient, n.ID)
	}
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	tx := &models.Transaction{
		ID:        s.registry.TransactionID(n.ID, sender, recipient, amount, now),
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Network:   n.ID,
		CreatedAt: now,
		Status:    models.TransactionStatusPending,
	}
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, err
	}
	s.metrics.TransactionsCreated.WithLabelValues(n.ID).Inc()
	if s.confirmer != nil {
		delay := s.confirmer.Simulate(s.ctx, tx.ID, n.ID)
		s.log.Debug("confirmation pending", zap.String("transaction_id", tx.ID), zap.Duration("delay", delay))
	}
	s.log.Info("transaction created", zap.String("transaction_id", tx.ID), zap.String("network", n.ID))
	return tx, nil
}

func parseAmount(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	r, ok := new(big.Rat).SetString(raw)
	if !ok || strings.ContainsAny(raw, "/eE") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if r.Sign() <= 0 {
		return "", fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	return raw, nil
}

// IssueSignal 为交易签发（或替换）通道二信号，启动续期并投递。
// networkID 为空时使用交易自身的网络。
func (s *Service) IssueSignal(ctx context.Context, transactionID, networkID string) (*models.Signal, error) {
	tx, err := s.transaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if networkID != "" && !strings.EqualFold(networkID, tx.Network) {
		return nil, fmt.Errorf("%w: %s is on %s", ErrNetworkMismatch, tx.ID, tx.Network)
	}
	if tx.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyProcessed, tx.ID, tx.Status)
	}
	if tx.Status == models.TransactionStatusExpired {
		tx, err = s.txs.Update(ctx, tx.ID, func(cur *models.Transaction) error {
			if cur.IsTerminal() {
				return fmt.Errorf("%w: %s is %s", ErrAlreadyProcessed, cur.ID, cur.Status)
			}
			if cur.Status == models.TransactionStatusExpired {
				cur.Status = models.TransactionStatusPending
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sig, err := s.signals.Issue(ctx, tx.ID, tx.Network, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.metrics.SignalsIssued.WithLabelValues(tx.Network).Inc()
	if !tx.Confirmed() {
		s.scheduler.Start(s.ctx, tx.ID, tx.Network)
		s.metrics.ActiveRefreshers.Inc()
	}
	s.deliver(ctx, sig, tx, false)
	return sig, nil
}

// Reissue 由通道二的交互（如飞书卡片按钮）触发重新签发。
func (s *Service) Reissue(ctx context.Context, transactionID, action string) error {
	if action != "" && action != "reissue" {
		return fmt.Errorf("service: unsupported action %q", action)
	}
	_, err := s.IssueSignal(ctx, transactionID, "")
	return err
}

// Signal 当前有效信号；不存在返回 nil, nil。
func (s *Service) Signal(ctx context.Context, transactionID string) (*models.Signal, error) {
	return s.signals.Get(ctx, transactionID)
}

// Validate 校验一对通道一/通道二凭证。拒绝以结果返回，只有存储故障或交易不存在才返回错误。
// 最终结果在交易的原子更新内决定并写入校验日志：已通过的交易只会得到 replay，且不会被降级为 failed。
func (s *Service) Validate(ctx context.Context, in ValidateInput) (*models.ValidationOutcome, error) {
	tx, err := s.transaction(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	window := s.signals.TTL().WindowSeconds(tx.Network)
	candidate := s.validator.Validate(tx.ID, in.Code, in.IssuedAt, window, now)
	if candidate.Approved {
		current, err := s.signals.Get(ctx, tx.ID)
		if err != nil {
			return nil, err
		}
		// 只接受最近一次签发的码
		if current != nil && current.IssuedAt != in.IssuedAt {
			candidate = &models.ValidationOutcome{
				Kind:           models.OutcomeSuperseded,
				Reason:         "Signal superseded by a newer code.",
				ElapsedSeconds: candidate.ElapsedSeconds,
			}
		}
	}

	var outcome *models.ValidationOutcome
	_, err = s.txs.Update(ctx, tx.ID, func(cur *models.Transaction) error {
		outcome = candidate
		if cur.Status == models.TransactionStatusValidated {
			outcome = &models.ValidationOutcome{
				Kind:   models.OutcomeReplay,
				Reason: "Transaction already validated. Replay rejected.",
			}
		}
		entry := &models.AuditEntry{
			TransactionID: cur.ID,
			Network:       cur.Network,
			Code:          strings.ToUpper(strings.TrimSpace(in.Code)),
			IssuedAt:      in.IssuedAt,
			Approved:      outcome.Approved,
			Kind:          outcome.Kind,
			Reason:        outcome.Reason,
			ValidatedAt:   now.UTC().Truncate(time.Millisecond),
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			return fmt.Errorf("service: append validation log: %w", err)
		}
		nextStatus(cur, outcome)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Approved {
		s.stopRefresh(tx.ID)
	}

	s.metrics.Validations.WithLabelValues(string(outcome.Kind)).Inc()
	if outcome.Kind == models.OutcomeApproved || outcome.Kind == models.OutcomeMismatch {
		s.metrics.ValidationElapsed.Observe(outcome.ElapsedSeconds)
	}
	s.log.Info("signal validated",
		zap.String("transaction_id", tx.ID),
		zap.Bool("approved", outcome.Approved),
		zap.String("kind", string(outcome.Kind)))
	return outcome, nil
}

// nextStatus 按校验结果迁移状态。validated 不再变化，expired 不会被 failed 覆盖。
func nextStatus(tx *models.Transaction, outcome *models.ValidationOutcome) {
	switch {
	case tx.Status == models.TransactionStatusValidated:
	case outcome.Approved:
		tx.Status = models.TransactionStatusValidated
	case tx.Status != models.TransactionStatusExpired:
		tx.Status = models.TransactionStatusFailed
	}
}

// ValidationLog 按时间倒序返回校验日志；limit <= 0 表示全部。
func (s *Service) ValidationLog(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	return s.audit.List(ctx, limit)
}

// TransactionLog 某笔交易的全部校验记录，按时间正序。
func (s *Service) TransactionLog(ctx context.Context, transactionID string) ([]*models.AuditEntry, error) {
	return s.audit.QueryByTransaction(ctx, transactionID)
}

// ClearValidationLog 清空校验日志（管理端）。
func (s *Service) ClearValidationLog(ctx context.Context) error {
	if err := s.audit.Clear(ctx); err != nil {
		return err
	}
	s.log.Warn("validation log cleared")
	return nil
}

// Transactions 按创建时间倒序返回全部交易。
func (s *Service) Transactions(ctx context.Context) ([]*models.Transaction, error) {
	return s.txs.List(ctx)
}

// Transaction 按 ID 查询；不存在返回 txstore.ErrNotFound。
func (s *Service) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	return s.transaction(ctx, id)
}

// ClearTransactions 清空交易与信号，并停止所有续期与待触发确认（管理端）。
func (s *Service) ClearTransactions(ctx context.Context) error {
	s.scheduler.StopAll()
	if s.confirmer != nil {
		s.confirmer.Stop()
	}
	if err := s.signals.Purge(ctx); err != nil {
		return err
	}
	if err := s.txs.Clear(ctx); err != nil {
		return err
	}
	s.log.Warn("transactions cleared")
	return nil
}

// OnConfirmationEvent 订阅确认事件，返回幂等的取消函数。
func (s *Service) OnConfirmationEvent(h notify.Handler) (unsubscribe func()) {
	return s.bus.Subscribe(h)
}

// PublishConfirmation 把外部确认事件送入总线。
func (s *Service) PublishConfirmation(ctx context.Context, ev models.ConfirmationEvent) error {
	return s.bus.Publish(ctx, ev)
}

func (s *Service) applyConfirmation(ev models.ConfirmationEvent) {
	if !ev.Confirmed || ev.TransactionID == "" {
		return
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()
	_, err := s.txs.Update(s.ctx, ev.TransactionID, func(tx *models.Transaction) error {
		tx.ConfirmedAt = &at
		tx.BlockNumber = ev.BlockNumber
		return nil
	})
	if err != nil {
		s.log.Warn("apply confirmation failed", zap.String("transaction_id", ev.TransactionID), zap.Error(err))
		return
	}
	s.metrics.Confirmations.Inc()
	s.stopRefresh(ev.TransactionID)
	s.log.Info("transaction confirmed", zap.String("transaction_id", ev.TransactionID), zap.Uint64("block", ev.BlockNumber))
}

func (s *Service) stopRefresh(id string) {
	s.scheduler.Stop(id)
}

func (s *Service) onRenewed(sig *models.Signal) {
	s.metrics.SignalsRenewed.Inc()
	tx, err := s.txs.Get(s.ctx, sig.TransactionID)
	if err != nil {
		s.log.Warn("load transaction for renewal failed", zap.String("transaction_id", sig.TransactionID), zap.Error(err))
	}
	s.deliver(s.ctx, sig, tx, true)
}

func (s *Service) onRefreshStopped(id string, reason signal.StopReason) {
	s.metrics.ActiveRefreshers.Dec()
	if reason != signal.StopExpired {
		return
	}
	_, err := s.txs.Update(s.ctx, id, func(tx *models.Transaction) error {
		if tx.Status == models.TransactionStatusPending {
			tx.Status = models.TransactionStatusExpired
		}
		return nil
	})
	if err != nil && !errors.Is(err, txstore.ErrNotFound) {
		s.log.Warn("mark transaction expired failed", zap.String("transaction_id", id), zap.Error(err))
	}
}

func (s *Service) deliver(ctx context.Context, sig *models.Signal, tx *models.Transaction, renewal bool) {
	recipients, err := s.recipients.Resolve(ctx, sig.Network)
	if err != nil {
		s.log.Warn("resolve recipients failed", zap.String("network", sig.Network), zap.Error(err))
	}
	in := &delivery.DeliverInput{Signal: sig, Transaction: tx, RecipientIDs: recipients, Renewal: renewal}
	if err := s.delivery.Deliver(ctx, in); err != nil {
		s.metrics.DeliveryFailures.Inc()
		s.log.Warn("channel 2 delivery failed", zap.String("transaction_id", sig.TransactionID), zap.Error(err))
	}
}

func (s *Service) transaction(ctx context.Context, id string) (*models.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", txstore.ErrNotFound)
	}
	tx, err := s.txs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: %s", txstore.ErrNotFound, id)
	}
	return tx, nil
}
