package feishu

import (
	"context"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

// ActionReissue 卡片「重新下发」按钮。
const ActionReissue = "reissue"

// RunLongConnection 在后台建立飞书长连接，接收卡片点击并回调 onAction。ctx 取消时退出，断线 5 秒后重连。
func RunLongConnection(ctx context.Context, cfg config.FeishuConfig, log *zap.Logger, onAction func(ctx context.Context, transactionID, action string) error) {
	if !cfg.Enabled || cfg.AppID == "" || cfg.AppSecret == "" {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	go runWSLoop(ctx, cfg, log.Named("feishu.ws"), onAction)
}

func runWSLoop(ctx context.Context, cfg config.FeishuConfig, log *zap.Logger, onAction func(ctx context.Context, transactionID, action string) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		eventHandler := dispatcher.NewEventDispatcher("", "").
			OnP2CardActionTrigger(func(ctx context.Context, event *callback.CardActionTriggerEvent) (*callback.CardActionTriggerResponse, error) {
				if event == nil || event.Event == nil || event.Event.Action == nil {
					return &callback.CardActionTriggerResponse{}, nil
				}
				return handleCardAction(ctx, log, event.Event.Action.Value, onAction), nil
			})
		client := larkws.NewClient(cfg.AppID, cfg.AppSecret, larkws.WithEventHandler(eventHandler))
		log.Info("feishu long connection started")
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := client.Start(ctx); err != nil {
				log.Warn("feishu long connection error", zap.Error(err))
			}
		}()
		select {
		case <-ctx.Done():
			return
		case <-done:
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// handleCardAction 解析按钮 value；未知动作忽略。
func handleCardAction(ctx context.Context, log *zap.Logger, value map[string]interface{}, onAction func(ctx context.Context, transactionID, action string) error) *callback.CardActionTriggerResponse {
	resp := &callback.CardActionTriggerResponse{}
	if value == nil {
		return resp
	}
	txID, _ := value["transaction_id"].(string)
	action, _ := value["action"].(string)
	if txID == "" || action != ActionReissue {
		return resp
	}
	if err := onAction(ctx, txID, action); err != nil {
		log.Warn("card action failed", zap.String("transaction_id", txID), zap.Error(err))
		return resp
	}
	log.Info("card action handled", zap.String("transaction_id", txID), zap.String("action", action))
	return resp
}
