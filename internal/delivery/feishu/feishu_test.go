package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/delivery"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"go.uber.org/zap/zaptest"
)

type sent struct {
	idType, id, msgType, content string
}

type fakeSender struct {
	mu       sync.Mutex
	fails    int
	messages []sent
}

func (f *fakeSender) Send(ctx context.Context, idType, id, msgType, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("rate limited")
	}
	f.messages = append(f.messages, sent{idType, id, msgType, content})
	return nil
}

func testInput() *delivery.DeliverInput {
	return &delivery.DeliverInput{
		Signal: &models.Signal{
			TransactionID: "0xabc", Code: "BED41B2021A8DA6A", IssuedAt: "2025-01-01T00:00:00.000Z",
			ExpiresAt: time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC), Network: "ETH",
		},
		RecipientIDs: []string{"ou_1", "u_2"},
	}
}

func testConfig() config.FeishuConfig {
	return config.FeishuConfig{Enabled: true, AppID: "cli_x", AppSecret: "s", RetryMaxAttempts: 3, RetryInitialBackoffSeconds: 1}
}

func TestProvider_DeliverText(t *testing.T) {
	fs := &fakeSender{}
	p := NewProviderWithSender(testConfig(), fs, zaptest.NewLogger(t))
	if err := p.Deliver(context.Background(), testInput()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(fs.messages) != 2 {
		t.Fatalf("messages = %d", len(fs.messages))
	}
	if fs.messages[0].idType != "open_id" || fs.messages[1].idType != "user_id" {
		t.Errorf("id types = %s, %s", fs.messages[0].idType, fs.messages[1].idType)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(fs.messages[0].content), &body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body["text"], "BED41B2021A8DA6A") {
		t.Errorf("text = %q", body["text"])
	}
}

func TestProvider_RetriesThenSucceeds(t *testing.T) {
	fs := &fakeSender{fails: 1}
	cfg := testConfig()
	p := NewProviderWithSender(cfg, fs, nil)
	in := testInput()
	in.RecipientIDs = []string{"ou_1"}
	if err := p.Deliver(context.Background(), in); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(fs.messages) != 1 {
		t.Errorf("messages = %d", len(fs.messages))
	}
}

func TestProvider_FallsBackToChat(t *testing.T) {
	fs := &fakeSender{}
	cfg := testConfig()
	cfg.ChatID = "oc_group"
	cfg.UseCardDelivery = true
	p := NewProviderWithSender(cfg, fs, nil)
	in := testInput()
	in.RecipientIDs = nil
	if err := p.Deliver(context.Background(), in); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if fs.messages[0].idType != "chat_id" || fs.messages[0].msgType != "interactive" {
		t.Errorf("got %+v", fs.messages[0])
	}
	if !strings.Contains(fs.messages[0].content, ActionReissue) {
		t.Error("card should carry the reissue action")
	}
}

func TestProvider_NotEnabled(t *testing.T) {
	p := NewProviderWithSender(config.FeishuConfig{}, &fakeSender{}, nil)
	if err := p.Deliver(context.Background(), testInput()); err == nil {
		t.Error("want error when disabled")
	}
}

func TestHandleCardAction(t *testing.T) {
	var got string
	on := func(ctx context.Context, id, action string) error { got = id; return nil }
	handleCardAction(context.Background(), zaptest.NewLogger(t), map[string]interface{}{"transaction_id": "0xabc", "action": "reissue"}, on)
	if got != "0xabc" {
		t.Errorf("onAction id = %q", got)
	}
	got = ""
	handleCardAction(context.Background(), zaptest.NewLogger(t), map[string]interface{}{"transaction_id": "0xabc", "action": "approve"}, on)
	if got != "" {
		t.Error("unknown action must be ignored")
	}
}
