// Package feishu 通过飞书开放平台 SDK 投递通道二信号。
package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/delivery"
	"github.com/cenkalti/backoff/v5"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Sender 发送一条消息；msgType 为 text 或 interactive。
type Sender interface {
	Send(ctx context.Context, receiveIDType, receiveID, msgType, content string) error
}

type larkSender struct {
	client *lark.Client
}

func (s *larkSender) Send(ctx context.Context, receiveIDType, receiveID, msgType, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()
	resp, err := s.client.Im.Message.Create(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("feishu message api code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// Provider 飞书投递：向接收人（或兜底群）发送信号码，失败按指数退避重试。
type Provider struct {
	cfg    config.FeishuConfig
	sender Sender
	log    *zap.Logger
}

// NewProvider 使用官方 SDK 客户端创建；app_secret 应从环境变量读取（config.Load 已做 env 覆盖）。
func NewProvider(cfg config.FeishuConfig, log *zap.Logger) *Provider {
	return NewProviderWithSender(cfg, &larkSender{client: lark.NewClient(cfg.AppID, cfg.AppSecret)}, log)
}

// NewProviderWithSender 注入自定义 Sender。
func NewProviderWithSender(cfg config.FeishuConfig, sender Sender, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{cfg: cfg, sender: sender, log: log.Named("feishu")}
}

type target struct {
	idType string
	id     string
}

// targets 接收人列表优先，否则 chat_id。
func (p *Provider) targets(in *delivery.DeliverInput) []target {
	var out []target
	for _, id := range in.RecipientIDs {
		if id == "" {
			continue
		}
		out = append(out, target{idType: p.idType(id), id: id})
	}
	if len(out) == 0 && p.cfg.ChatID != "" {
		out = append(out, target{idType: larkim.ReceiveIdTypeChatId, id: p.cfg.ChatID})
	}
	return out
}

func (p *Provider) idType(id string) string {
	if p.cfg.ReceiveIDType != "" {
		return p.cfg.ReceiveIDType
	}
	switch {
	case strings.HasPrefix(id, "ou_"):
		return larkim.ReceiveIdTypeOpenId
	case strings.HasPrefix(id, "oc_"):
		return larkim.ReceiveIdTypeChatId
	default:
		return larkim.ReceiveIdTypeUserId
	}
}

// Deliver 投递到全部目标；任一目标最终失败则返回错误（其余目标仍会尝试）。
func (p *Provider) Deliver(ctx context.Context, in *delivery.DeliverInput) error {
	if in == nil || in.Signal == nil {
		return fmt.Errorf("feishu: nil signal")
	}
	if !p.cfg.Enabled || p.cfg.AppID == "" || p.cfg.AppSecret == "" {
		return fmt.Errorf("feishu: not enabled or missing app_id/app_secret")
	}
	targets := p.targets(in)
	if len(targets) == 0 {
		return fmt.Errorf("feishu: no receive_id (recipients or chat_id)")
	}
	msgType, content, err := p.render(in)
	if err != nil {
		return err
	}
	var firstErr error
	for _, t := range targets {
		if err := p.sendWithRetry(ctx, t, msgType, content); err != nil {
			p.log.Warn("feishu delivery failed", zap.String("receive_id", t.id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Provider) sendWithRetry(ctx context.Context, t target, msgType, content string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(p.cfg.RetryInitialBackoffSeconds) * time.Second
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	maxTries := p.cfg.RetryMaxAttempts
	if maxTries <= 0 {
		maxTries = 3
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.sender.Send(ctx, t.idType, t.id, msgType, content)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithNotify(func(err error, d time.Duration) {
			p.log.Info("feishu delivery retry", zap.String("receive_id", t.id), zap.Duration("after", d), zap.Error(err))
		}))
	return err
}

func (p *Provider) render(in *delivery.DeliverInput) (string, string, error) {
	if !p.cfg.UseCardDelivery {
		data, err := json.Marshal(map[string]string{"text": in.Text()})
		return larkim.MsgTypeText, string(data), err
	}
	data, err := json.Marshal(buildCard(in))
	return larkim.MsgTypeInteractive, string(data), err
}

// buildCard 交互卡片：信号码 + 「重新下发」按钮，按钮 value 为 {"transaction_id": ..., "action": "reissue"}，经长连接回传。
func buildCard(in *delivery.DeliverInput) map[string]interface{} {
	s := in.Signal
	md := fmt.Sprintf("**交易** `%s`\n**网络** %s\n**信号码** `%s`\n**过期** %s",
		s.TransactionID, s.Network, s.Code, s.ExpiresAt.UTC().Format(time.RFC3339))
	return map[string]interface{}{
		"config": map[string]interface{}{"wide_screen_mode": true},
		"header": map[string]interface{}{
			"title": map[string]interface{}{"tag": "plain_text", "content": "EchoKey 通道二信号"},
		},
		"elements": []interface{}{
			map[string]interface{}{
				"tag":  "div",
				"text": map[string]interface{}{"tag": "lark_md", "content": md},
			},
			map[string]interface{}{
				"tag": "action",
				"actions": []interface{}{
					map[string]interface{}{
						"tag":   "button",
						"text":  map[string]interface{}{"tag": "plain_text", "content": "重新下发"},
						"type":  "default",
						"value": map[string]string{"transaction_id": s.TransactionID, "action": ActionReissue},
					},
				},
			},
		},
	}
}
