package signal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
	"time"
)

// CodeLength 信号码长度（十六进制字符）。
const CodeLength = 16

// TimestampLayout 签发时间串格式：UTC、毫秒、Z 结尾。
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp 按签发格式输出 t。
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp 解析签发时间串；接受任意 RFC 3339 形式。
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("signal: bad timestamp %q: %w", s, err)
	}
	return t, nil
}

// Deriver 以 HMAC-SHA-256 从交易 ID 与签发时间派生信号码。密钥在构造时注入，之后只读。
type Deriver struct {
	secret  []byte
	newHash func() hash.Hash
}

// DeriverOption 可选项。
type DeriverOption func(*Deriver)

// WithHash 替换哈希构造函数。
func WithHash(fn func() hash.Hash) DeriverOption {
	return func(d *Deriver) { d.newHash = fn }
}

// NewDeriver 创建派生器；secret 为空返回 ErrEmptySecret。
func NewDeriver(secret []byte, opts ...DeriverOption) (*Deriver, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	d := &Deriver{secret: append([]byte(nil), secret...), newHash: sha256.New}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Derive 返回 HMAC(secret, "{txID}:{timestamp}") 十六进制摘要的前 16 位（大写）。纯函数。
func (d *Deriver) Derive(transactionID, timestamp string) (code string, err error) {
	if d == nil || d.newHash == nil {
		return "", ErrCryptoUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			code, err = "", fmt.Errorf("%w: %v", ErrCryptoUnavailable, r)
		}
	}()
	mac := hmac.New(d.newHash, d.secret)
	mac.Write([]byte(transactionID + ":" + timestamp))
	sum := hex.EncodeToString(mac.Sum(nil))
	if len(sum) < CodeLength {
		return "", ErrCryptoUnavailable
	}
	return strings.ToUpper(sum[:CodeLength]), nil
}

// DeriveAt 以 FormatTimestamp(t) 作为时间串派生。
func (d *Deriver) DeriveAt(transactionID string, t time.Time) (string, error) {
	return d.Derive(transactionID, FormatTimestamp(t))
}
