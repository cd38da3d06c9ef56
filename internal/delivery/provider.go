package delivery

import (
	"context"
)

// Provider 通道二投递接口：把信号码送到与交易 ID 不同的渠道（IM、日志等）。
// 在签发与续期后由 service 调用；投递失败不影响信号有效性。
type Provider interface {
	Deliver(ctx context.Context, in *DeliverInput) error
}
