// Package chain 把校验日志桥接到 Merkle 存证账本，并暴露验真接口。
package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/audit"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	chainpkg "github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/pkg/chain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// AuditChainBridge 包装 audit.Store，在 Append 成功后异步将 (entry_id, hash) 提交账本批次存证。
// 不阻塞主审计写入；失败仅打日志并保留到下一批。
type AuditChainBridge struct {
	audit.Store
	ledger    chainpkg.Ledger
	batchSize int
	interval  time.Duration
	clock     clockwork.Clock
	log       *zap.Logger
	ch        chan chainpkg.Leaf
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// BridgeOption 可选项。
type BridgeOption func(*AuditChainBridge)

func WithClock(c clockwork.Clock) BridgeOption {
	return func(b *AuditChainBridge) { b.clock = c }
}

func WithLogger(l *zap.Logger) BridgeOption {
	return func(b *AuditChainBridge) {
		if l != nil {
			b.log = l
		}
	}
}

// NewAuditChainBridge 创建桥接；调用 Start() 启动后台刷盘，关闭时调用 Stop()。
func NewAuditChainBridge(inner audit.Store, ledger chainpkg.Ledger, batchSize int, interval time.Duration, opts ...BridgeOption) *AuditChainBridge {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	b := &AuditChainBridge{
		Store:     inner,
		ledger:    ledger,
		batchSize: batchSize,
		interval:  interval,
		clock:     clockwork.NewRealClock(),
		log:       zap.NewNop(),
		ch:        make(chan chainpkg.Leaf, 500),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.Named("chain.bridge")
	return b
}

// Ledger 返回底层账本。
func (b *AuditChainBridge) Ledger() chainpkg.Ledger { return b.ledger }

// Start 启动后台 goroutine：按批次或定时调用 Ledger.AppendBatch。
func (b *AuditChainBridge) Start() {
	b.wg.Add(1)
	go b.flushLoop()
}

// Stop 停止后台并等待当前批提交完成；幂等。
func (b *AuditChainBridge) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
	b.wg.Wait()
}

func (b *AuditChainBridge) flushLoop() {
	defer b.wg.Done()
	var buf []chainpkg.Leaf
	tick := b.clock.NewTicker(b.interval)
	defer tick.Stop()
	flush := func() {
		if len(buf) == 0 {
			return
		}
		batchID := "audit-" + b.clock.Now().UTC().Format("20060102150405") + "-" + uuid.New().String()[:8]
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		root, err := b.ledger.AppendBatch(ctx, batchID, buf)
		cancel()
		if err != nil {
			b.log.Warn("audit batch failed", zap.String("batch_id", batchID), zap.Error(err))
			return
		}
		b.log.Info("audit batch anchored", zap.String("batch_id", batchID), zap.String("merkle_root", root), zap.Int("size", len(buf)))
		buf = nil
	}
	for {
		select {
		case <-b.done:
			for {
				select {
				case leaf := <-b.ch:
					buf = append(buf, leaf)
				default:
					flush()
					return
				}
			}
		case leaf := <-b.ch:
			buf = append(buf, leaf)
			if len(buf) >= b.batchSize {
				flush()
			}
		case <-tick.Chan():
			flush()
		}
	}
}

// Append 先写内层 Store，再异步投递叶节点（通道满则丢弃，不阻塞审计）。
func (b *AuditChainBridge) Append(ctx context.Context, e *models.AuditEntry) error {
	if err := b.Store.Append(ctx, e); err != nil {
		return err
	}
	if e == nil || e.ID == "" {
		return nil
	}
	h, err := EntryHash(e)
	if err != nil {
		return nil
	}
	select {
	case b.ch <- chainpkg.Leaf{EntryID: e.ID, Hash: h}:
	default:
		b.log.Warn("anchor queue full, entry skipped", zap.String("entry_id", e.ID))
	}
	return nil
}

// EntryHash 记录的叶哈希：JSON 序列化后 sha256。
func EntryHash(e *models.AuditEntry) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
