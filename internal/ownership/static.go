package ownership

import (
	"context"
	"strings"
)

// StaticResolver 从静态映射解析接收人，构造后只读：网络或 "*" 对应 ID 列表；无匹配时返回 defaultIDs。网络名不区分大小写。
type StaticResolver struct {
	m          map[string][]string
	defaultIDs []string
}

// NewStaticResolver 根据 network -> recipient_ids 映射创建；defaultIDs 可为 nil。
func NewStaticResolver(staticMap map[string][]string, defaultIDs []string) *StaticResolver {
	m := make(map[string][]string, len(staticMap))
	for k, v := range staticMap {
		ids := make([]string, len(v))
		copy(ids, v)
		m[strings.ToUpper(k)] = ids
	}
	var def []string
	if len(defaultIDs) > 0 {
		def = make([]string, len(defaultIDs))
		copy(def, defaultIDs)
	}
	return &StaticResolver{m: m, defaultIDs: def}
}

// Resolve 先查网络，再查 "*"；无则返回 defaultIDs（可能为空）。
func (s *StaticResolver) Resolve(ctx context.Context, networkID string) ([]string, error) {
	if ids, ok := s.m[strings.ToUpper(networkID)]; ok && len(ids) > 0 {
		return append([]string(nil), ids...), nil
	}
	if ids, ok := s.m["*"]; ok && len(ids) > 0 {
		return append([]string(nil), ids...), nil
	}
	if len(s.defaultIDs) > 0 {
		return append([]string(nil), s.defaultIDs...), nil
	}
	return nil, nil
}
