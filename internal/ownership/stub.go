package ownership

import (
	"context"
)

// StubResolver 恒返回空列表；投递方回落到自身默认目标。
type StubResolver struct{}

func (StubResolver) Resolve(ctx context.Context, networkID string) ([]string, error) {
	return nil, nil
}
