// Package delivery 提供通道二投递接口与类型。
package delivery

import (
	"fmt"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
)

// DeliverInput 一次投递：信号、所属交易与接收人。
type DeliverInput struct {
	Signal       *models.Signal
	Transaction  *models.Transaction // 可为 nil
	RecipientIDs []string
	Renewal      bool // 续期后重发
}

// Text 渲染纯文本消息体。
func (in *DeliverInput) Text() string {
	head := "EchoKey 通道二信号"
	if in.Renewal {
		head = "EchoKey 通道二信号（已续期）"
	}
	s := in.Signal
	body := fmt.Sprintf("%s\n交易: %s\n网络: %s\n信号码: %s\n签发: %s\n过期: %s",
		head, s.TransactionID, s.Network, s.Code, s.IssuedAt, s.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"))
	if t := in.Transaction; t != nil {
		body += fmt.Sprintf("\n金额: %s\n收款: %s", t.Amount, t.Recipient)
	}
	return body
}
