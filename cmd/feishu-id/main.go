// feishu-id 通过飞书长连接接收用户发给应用的消息，打印发送者的 open_id / user_id 与会话 chat_id，
// 用于填写 ownership.static_map（通道二接收人）或 delivery.feishu.chat_id。
// 用法：ECHOKEY_FEISHU_APP_ID=... ECHOKEY_FEISHU_APP_SECRET=... go run ./cmd/feishu-id
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	"github.com/fatih/color"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

func main() {
	_ = config.LoadEnvFile(".env", false)
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		color.Red("config load: %v", err)
		os.Exit(1)
	}
	fc := cfg.Delivery.Feishu
	if fc.AppID == "" || fc.AppSecret == "" {
		color.Red("需要 ECHOKEY_FEISHU_APP_ID 与 ECHOKEY_FEISHU_APP_SECRET")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			printSender(event)
			return nil
		})
	client := larkws.NewClient(fc.AppID, fc.AppSecret, larkws.WithEventHandler(handler))

	color.Cyan("========================================")
	color.Cyan("  飞书 open_id / user_id 查询（长连接）")
	color.Cyan("========================================")
	fmt.Println("  给应用发一条消息，此处会打印发送者 ID。Ctrl-C 退出。")

	errCh := make(chan error, 1)
	go func() { errCh <- client.Start(ctx) }()
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			color.Red("长连接错误: %v", err)
			os.Exit(1)
		}
	}
}

func printSender(event *larkim.P2MessageReceiveV1) {
	if event == nil || event.Event == nil {
		return
	}
	var openID, userID, chatID string
	if s := event.Event.Sender; s != nil && s.SenderId != nil {
		openID = deref(s.SenderId.OpenId)
		userID = deref(s.SenderId.UserId)
	}
	if m := event.Event.Message; m != nil {
		chatID = deref(m.ChatId)
	}
	color.Green("\n[%s] 收到消息", time.Now().Format("15:04:05"))
	fmt.Printf("  open_id:  %s\n", openID)
	fmt.Printf("  user_id:  %s\n", userID)
	fmt.Printf("  chat_id:  %s\n", chatID)
	fmt.Println("  ownership.static_map 示例:")
	fmt.Printf("    ETH: [%q]\n", openID)
	fmt.Println("  跨应用使用时建议填 user_id，并设置 delivery.feishu.receive_id_type: user_id")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
