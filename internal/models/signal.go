package models

import "time"

// Signal 通道二下发的时效码。IssuedAt 为派生时使用的原始时间串（毫秒精度、Z 结尾），校验时需原样回传。
type Signal struct {
	TransactionID string    `json:"transaction_id"`
	Code          string    `json:"code"`
	IssuedAt      string    `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Network       string    `json:"network"`
}

// TimeLeft 距过期的剩余时长；已过期时为非正值。
func (s *Signal) TimeLeft(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// ConfirmationEvent 外部确认源（链上确认）推送的事件。
type ConfirmationEvent struct {
	TransactionID string    `json:"transaction_id"`
	Confirmed     bool      `json:"confirmed"`
	BlockNumber   uint64    `json:"block_number"`
	Timestamp     time.Time `json:"timestamp"`
}
