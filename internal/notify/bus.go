// Package notify 分发确认事件：进程内总线、确认模拟器与 Kafka 桥接。
package notify

import (
	"context"
	"sync"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"go.uber.org/zap"
)

// Handler 确认事件回调。
type Handler func(ev models.ConfirmationEvent)

// Publisher 发布确认事件。*Bus 与 *KafkaPublisher 均满足。
type Publisher interface {
	Publish(ctx context.Context, ev models.ConfirmationEvent) error
}

// Bus 按订阅号索引的监听表；只有 Subscribe/取消订阅会改动它，Publish 遍历快照并在锁外回调。
type Bus struct {
	mu       sync.Mutex
	next     uint64
	handlers map[uint64]Handler
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{handlers: make(map[uint64]Handler), log: log.Named("notify.bus")}
}

// Subscribe 注册回调，返回幂等的取消函数。
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.handlers[id] = h
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish 同步回调全部订阅者；单个回调 panic 不影响其他订阅者。
func (b *Bus) Publish(ctx context.Context, ev models.ConfirmationEvent) error {
	b.mu.Lock()
	snapshot := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		snapshot = append(snapshot, h)
	}
	b.mu.Unlock()
	for _, h := range snapshot {
		b.dispatch(h, ev)
	}
	return nil
}

func (b *Bus) dispatch(h Handler, ev models.ConfirmationEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("confirmation handler panic", zap.String("transaction_id", ev.TransactionID), zap.Any("panic", r))
		}
	}()
	h(ev)
}

// Len 当前订阅数。
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}
