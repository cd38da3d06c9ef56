package models

import "time"

// OutcomeKind 校验结果分类。
type OutcomeKind string

const (
	OutcomeApproved   OutcomeKind = "approved"
	OutcomeExpired    OutcomeKind = "expired"
	OutcomeMismatch   OutcomeKind = "mismatch"
	OutcomeError      OutcomeKind = "error"
	OutcomeReplay     OutcomeKind = "replay"
	OutcomeSuperseded OutcomeKind = "superseded"
)

// ValidationOutcome 一次校验的结论，生成后不可变。
type ValidationOutcome struct {
	Approved       bool        `json:"approved"`
	Reason         string      `json:"reason"`
	Kind           OutcomeKind `json:"kind"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
}

// AuditEntry 校验日志中的一条记录，仅追加。
type AuditEntry struct {
	ID            string      `json:"id" gorm:"column:id;primaryKey;type:varchar(40)"`
	TransactionID string      `json:"transaction_id" gorm:"column:transaction_id;type:varchar(80);index"`
	Network       string      `json:"network" gorm:"column:network;type:varchar(16)"`
	Code          string      `json:"code" gorm:"column:code;type:varchar(32)"`
	IssuedAt      string      `json:"issued_at" gorm:"column:issued_at;type:varchar(32)"`
	Approved      bool        `json:"approved" gorm:"column:approved"`
	Kind          OutcomeKind `json:"kind" gorm:"column:kind;type:varchar(16)"`
	Reason        string      `json:"reason" gorm:"column:reason"`
	ValidatedAt   time.Time   `json:"validated_at" gorm:"column:validated_at;index"`
}

// TableName gorm 表名。
func (AuditEntry) TableName() string { return "validation_log" }
