// Package ownership 解析通道二（信号码）的接收人。
package ownership

import (
	"context"
)

// Resolver 根据网络解析通道二接收人标识列表（如飞书 open_id / user_id）。
type Resolver interface {
	Resolve(ctx context.Context, networkID string) (recipientIDs []string, err error)
}
