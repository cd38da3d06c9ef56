// Package models 定义交易、信号、校验结果与审计记录等领域类型。
package models

import "time"

// TransactionStatus 表示交易的生命周期状态。
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusValidated TransactionStatus = "validated"
	TransactionStatusExpired   TransactionStatus = "expired"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction 一笔待双通道确认的转账。ID 即通道一下发的交易标识。
type Transaction struct {
	ID          string            `json:"id" gorm:"column:id;primaryKey;type:varchar(80)"`
	Sender      string            `json:"sender" gorm:"column:sender;type:varchar(128)"`
	Recipient   string            `json:"recipient" gorm:"column:recipient;type:varchar(128)"`
	Amount      string            `json:"amount" gorm:"column:amount;type:varchar(64)"`
	Network     string            `json:"network" gorm:"column:network;type:varchar(16);index"`
	CreatedAt   time.Time         `json:"created_at" gorm:"column:created_at;index"`
	Status      TransactionStatus `json:"status" gorm:"column:status;type:varchar(16)"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty" gorm:"column:confirmed_at"`
	BlockNumber uint64            `json:"block_number,omitempty" gorm:"column:block_number"`
}

// TableName gorm 表名。
func (Transaction) TableName() string { return "transactions" }

// IsTerminal 已校验通过的交易不再签发信号。过期或失败的交易可以重新签发。
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusValidated
}

// Confirmed 是否已收到确认事件。
func (t *Transaction) Confirmed() bool { return t.ConfirmedAt != nil }
