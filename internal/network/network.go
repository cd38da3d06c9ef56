// Package network 维护受支持的区块链网络：地址格式、确认延迟区间与交易哈希格式。
package network

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Network 单个网络的静态属性。
type Network struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Symbol            string        `json:"symbol"`
	EVM               bool          `json:"evm"`
	MinConfirmation   time.Duration `json:"min_confirmation"`
	MaxConfirmation   time.Duration `json:"max_confirmation"`
	AddressPattern    string        `json:"address_pattern"`
	addressExpression *regexp.Regexp
}

// ValidAddress 地址是否符合该网络格式。
func (n *Network) ValidAddress(addr string) bool {
	return n.addressExpression.MatchString(addr)
}

const evmAddress = `^0x[a-fA-F0-9]{40}$`

var builtin = []*Network{
	newNetwork("ETH", "Ethereum", true, 10, 120, evmAddress),
	newNetwork("BTC", "Bitcoin", false, 60, 600, `^(bc1|[13])[a-zA-HJ-NP-Z0-9]{25,62}$`),
	newNetwork("SOL", "Solana", false, 5, 30, `^[1-9A-HJ-NP-Za-km-z]{32,44}$`),
	newNetwork("MATIC", "Polygon", true, 5, 60, evmAddress),
	newNetwork("AVAX", "Avalanche", true, 5, 30, evmAddress),
	newNetwork("BNB", "BNB Chain", true, 5, 60, evmAddress),
	newNetwork("ADA", "Cardano", false, 20, 120, `^addr1[a-z0-9]{58,}$`),
	newNetwork("DOT", "Polkadot", false, 10, 60, `^1[a-zA-Z0-9]{47}$`),
}

func newNetwork(id, name string, evm bool, minSec, maxSec int, pattern string) *Network {
	return &Network{
		ID:                id,
		Name:              name,
		Symbol:            id,
		EVM:               evm,
		MinConfirmation:   time.Duration(minSec) * time.Second,
		MaxConfirmation:   time.Duration(maxSec) * time.Second,
		AddressPattern:    pattern,
		addressExpression: regexp.MustCompile(pattern),
	}
}

// DefaultConfirmation 未知网络的确认延迟区间。
var DefaultConfirmation = [2]time.Duration{10 * time.Second, 120 * time.Second}

// Registry 只读网络表；查询不区分大小写。
type Registry struct {
	byID map[string]*Network
}

// NewRegistry 返回内置八个网络的注册表。
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]*Network, len(builtin))}
	for _, n := range builtin {
		r.byID[n.ID] = n
	}
	return r
}

// Get 查询网络；未知返回 nil, false。
func (r *Registry) Get(id string) (*Network, bool) {
	n, ok := r.byID[strings.ToUpper(id)]
	return n, ok
}

// List 按 ID 排序返回全部网络。
func (r *Registry) List() []*Network {
	out := make([]*Network, 0, len(r.byID))
	for _, n := range r.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidAddress 未知网络一律返回 false。
func (r *Registry) ValidAddress(networkID, addr string) bool {
	n, ok := r.Get(networkID)
	return ok && n.ValidAddress(addr)
}

// ConfirmationRange 网络确认延迟区间；未知网络走 DefaultConfirmation。
func (r *Registry) ConfirmationRange(networkID string) (min, max time.Duration) {
	if n, ok := r.Get(networkID); ok {
		return n.MinConfirmation, n.MaxConfirmation
	}
	return DefaultConfirmation[0], DefaultConfirmation[1]
}

// TransactionID 生成模拟交易哈希：sha256("from:to:amount:unixMillis") 十六进制，EVM 网络加 0x 前缀。
func (r *Registry) TransactionID(networkID, from, to, amount string, now time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%d", from, to, amount, now.UnixMilli())))
	id := hex.EncodeToString(sum[:])
	if n, ok := r.Get(networkID); ok && n.EVM {
		return "0x" + id
	}
	return id
}
