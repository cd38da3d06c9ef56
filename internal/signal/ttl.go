package signal

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinWindowSeconds 时效窗口下限。
	MinWindowSeconds = 60
	// LatencyMultiplier 窗口 = 倍数 × 网络平均确认延迟。
	LatencyMultiplier = 4.0
	// DefaultLatencySeconds 未知网络的平均延迟。
	DefaultLatencySeconds = 30.0
)

// DefaultLatencies 各网络平均确认延迟（秒）。
var DefaultLatencies = map[string]float64{
	"ETH":   15,
	"MATIC": 2,
	"BTC":   600,
	"SOL":   0.4,
	"BNB":   3,
	"AVAX":  2,
	"ADA":   20,
	"DOT":   6,
}

// TTLPolicy 按网络计算信号时效窗口：max(下限, ceil(倍数 × 平均延迟))。全函数，未知网络走默认延迟。
type TTLPolicy struct {
	latencies  map[string]float64
	floor      int
	multiplier float64
	fallback   float64
}

// TTLOption 可选项。
type TTLOption func(*TTLPolicy)

// WithLatencies 覆盖部分网络延迟；键不区分大小写，非正值忽略。
func WithLatencies(m map[string]float64) TTLOption {
	return func(p *TTLPolicy) {
		for k, v := range m {
			if v > 0 {
				p.latencies[strings.ToUpper(k)] = v
			}
		}
	}
}

// WithFloor 设置窗口下限（秒）。
func WithFloor(seconds int) TTLOption {
	return func(p *TTLPolicy) {
		if seconds > 0 {
			p.floor = seconds
		}
	}
}

// WithMultiplier 设置延迟倍数。
func WithMultiplier(m float64) TTLOption {
	return func(p *TTLPolicy) {
		if m > 0 {
			p.multiplier = m
		}
	}
}

// WithDefaultLatency 设置未知网络的平均延迟。
func WithDefaultLatency(seconds float64) TTLOption {
	return func(p *TTLPolicy) {
		if seconds > 0 {
			p.fallback = seconds
		}
	}
}

// NewTTLPolicy 以默认延迟表创建策略。
func NewTTLPolicy(opts ...TTLOption) *TTLPolicy {
	p := &TTLPolicy{
		latencies:  make(map[string]float64, len(DefaultLatencies)),
		floor:      MinWindowSeconds,
		multiplier: LatencyMultiplier,
		fallback:   DefaultLatencySeconds,
	}
	for k, v := range DefaultLatencies {
		p.latencies[k] = v
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AverageLatency 返回网络平均延迟（秒）。
func (p *TTLPolicy) AverageLatency(networkID string) float64 {
	if v, ok := p.latencies[strings.ToUpper(networkID)]; ok {
		return v
	}
	return p.fallback
}

// WindowSeconds 返回网络的时效窗口（秒）。
func (p *TTLPolicy) WindowSeconds(networkID string) int {
	w := int(math.Ceil(p.multiplier * p.AverageLatency(networkID)))
	if w < p.floor {
		return p.floor
	}
	return w
}

// Window 同 WindowSeconds，返回 time.Duration。
func (p *TTLPolicy) Window(networkID string) time.Duration {
	return time.Duration(p.WindowSeconds(networkID)) * time.Second
}

// LatencyFile 延迟覆盖文件根结构。
type LatencyFile struct {
	Latencies map[string]float64 `yaml:"latencies"`
}

// LoadLatencies 从 YAML 读取延迟覆盖；path 为空或文件不存在返回 nil。
func LoadLatencies(path string) (map[string]float64, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("signal latencies read: %w", err)
	}
	var f LatencyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("signal latencies unmarshal: %w", err)
	}
	return f.Latencies, nil
}
