// Package signal 提供分离信号的派生、时效窗口、存储、校验与续期调度。
package signal

import (
	"errors"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
)

// ErrCryptoUnavailable 哈希原语不可用（构造失败或 panic）。
var ErrCryptoUnavailable = errors.New("signal: crypto primitive unavailable")

// ErrEmptySecret 派生密钥为空。
var ErrEmptySecret = errors.New("signal: empty secret")

// ErrStoreUnavailable 底层 KV 读写失败。
var ErrStoreUnavailable = errors.New("signal: store unavailable")

// ErrExpiredSignal 信号已超出时效窗口。
var ErrExpiredSignal = errors.New("signal: expired")

// ErrSignatureMismatch 提交的码与派生结果不一致。
var ErrSignatureMismatch = errors.New("signal: code mismatch")

// ErrReplay 交易已校验通过，拒绝重复提交。
var ErrReplay = errors.New("signal: transaction already validated")

// ErrSuperseded 提交的码已被更新的信号取代。
var ErrSuperseded = errors.New("signal: superseded by a newer signal")

// ErrValidation 校验过程本身失败（时间串非法、派生失败）。
var ErrValidation = errors.New("signal: validation error")

// ErrOf 把拒绝结果映射为可 errors.Is 的哨兵错误；通过时返回 nil。
func ErrOf(o *models.ValidationOutcome) error {
	if o == nil || o.Approved {
		return nil
	}
	switch o.Kind {
	case models.OutcomeExpired:
		return ErrExpiredSignal
	case models.OutcomeMismatch:
		return ErrSignatureMismatch
	case models.OutcomeReplay:
		return ErrReplay
	case models.OutcomeSuperseded:
		return ErrSuperseded
	default:
		return ErrValidation
	}
}
