package delivery

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// StubProvider Deliver 无操作。
type StubProvider struct{}

func (StubProvider) Deliver(ctx context.Context, in *DeliverInput) error {
	return nil
}

// LogProvider 把信号写入日志，单机演示时充当通道二。
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogProvider{log: log.Named("delivery")}
}

func (p *LogProvider) Deliver(ctx context.Context, in *DeliverInput) error {
	if in == nil || in.Signal == nil {
		return fmt.Errorf("delivery: nil signal")
	}
	p.log.Info("channel 2 signal",
		zap.String("transaction_id", in.Signal.TransactionID),
		zap.String("code", in.Signal.Code),
		zap.String("issued_at", in.Signal.IssuedAt),
		zap.Time("expires_at", in.Signal.ExpiresAt),
		zap.Strings("recipients", in.RecipientIDs),
		zap.Bool("renewal", in.Renewal))
	return nil
}

// Recorder 记录每次投递，测试用。
type Recorder struct {
	mu     sync.Mutex
	inputs []*DeliverInput
	Err    error
}

func (r *Recorder) Deliver(ctx context.Context, in *DeliverInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, in)
	return r.Err
}

// Inputs 返回已记录投递的副本。
func (r *Recorder) Inputs() []*DeliverInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*DeliverInput(nil), r.inputs...)
}
