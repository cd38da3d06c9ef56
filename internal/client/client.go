// Package client 是 EchoKey HTTP API 的 Go 客户端，供 signalctl 与集成测试使用。
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/service"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

const (
	defaultRetryCount    = 2
	defaultRetryInterval = 500 * time.Millisecond
)

// APIError 服务端返回的非 2xx 响应。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("echokey: HTTP %d: %s", e.Status, e.Message)
}

// NotFound 是否 404。
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

type errorBody struct {
	Error string `json:"error"`
}

// Client 包装 resty，按 /api 路由调用。
type Client struct {
	base       string
	adminToken string
	http       *resty.Client
}

// Option 可选项。
type Option func(*Client)

// WithAdminToken 批量清理接口的 X-Admin-Token。
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// WithRestyClient 替换底层 resty 客户端（测试注入 transport 等）。
func WithRestyClient(r *resty.Client) Option {
	return func(c *Client) { c.http = r }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: resty.New().
			SetRetryCount(defaultRetryCount).
			SetRetryWaitTime(defaultRetryInterval).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
			}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetBaseURL(c.base).SetHeader("Content-Type", "application/json")
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	req := c.http.R().SetContext(ctx).SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	if method == http.MethodDelete && c.adminToken != "" {
		req.SetHeader("X-Admin-Token", c.adminToken)
	}
	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("echokey: %s %s: %w", method, path, err)
	}
	if res.IsError() {
		msg := res.String()
		if eb, ok := res.Error().(*errorBody); ok && eb.Error != "" {
			msg = eb.Error
		}
		return &APIError{Status: res.StatusCode(), Message: msg}
	}
	return nil
}

// Networks 受支持的网络及其时效窗口。
func (c *Client) Networks(ctx context.Context) ([]NetworkInfo, error) {
	var out struct {
		Networks []NetworkInfo `json:"networks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/networks", nil, &out); err != nil {
		return nil, err
	}
	return out.Networks, nil
}

// NetworkInfo GET /api/networks 的单项。
type NetworkInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	WindowSeconds int    `json:"window_seconds"`
}

func (c *Client) CreateTransaction(ctx context.Context, in service.CreateInput) (*models.Transaction, error) {
	var tx models.Transaction
	if err := c.do(ctx, http.MethodPost, "/api/transactions", in, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) Transactions(ctx context.Context) ([]*models.Transaction, error) {
	var out struct {
		Transactions []*models.Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/transactions", nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

func (c *Client) ClearTransactions(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/transactions", nil, nil)
}

// IssueSignal network 为空时用交易自身网络。
func (c *Client) IssueSignal(ctx context.Context, transactionID, network string) (*models.Signal, error) {
	var sig models.Signal
	body := map[string]string{"transaction_id": transactionID, "network": network}
	if err := c.do(ctx, http.MethodPost, "/api/signals", body, &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

// Signal 无有效信号时返回 nil, nil。
func (c *Client) Signal(ctx context.Context, transactionID string) (*models.Signal, error) {
	var sig models.Signal
	err := c.do(ctx, http.MethodGet, "/api/signals/"+transactionID, nil, &sig)
	if apiErr, ok := err.(*APIError); ok && apiErr.NotFound() {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (c *Client) Validate(ctx context.Context, in service.ValidateInput) (*models.ValidationOutcome, error) {
	var out models.ValidationOutcome
	if err := c.do(ctx, http.MethodPost, "/api/validate", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidationLog limit <= 0 表示全部。
func (c *Client) ValidationLog(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	var out struct {
		Entries []*models.AuditEntry `json:"entries"`
	}
	path := "/api/logs"
	if limit > 0 {
		path = fmt.Sprintf("/api/logs?limit=%d", limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// TransactionLog 某笔交易的校验记录，按时间正序。
func (c *Client) TransactionLog(ctx context.Context, transactionID string) ([]*models.AuditEntry, error) {
	var out struct {
		Entries []*models.AuditEntry `json:"entries"`
	}
	path := "/api/logs?transaction_id=" + url.QueryEscape(transactionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) ClearValidationLog(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/logs", nil, nil)
}

// WatchEvents 订阅 /api/events，每条确认事件回调 fn，直到 ctx 取消或连接断开。
// transactionID 非空时只接收该交易的事件。
func (c *Client) WatchEvents(ctx context.Context, transactionID string, fn func(models.ConfirmationEvent)) error {
	u := "ws" + strings.TrimPrefix(c.base, "http") + "/api/events"
	if transactionID != "" {
		u += "?transaction_id=" + transactionID
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("echokey: dial events: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	for {
		var msg struct {
			Type         string                    `json:"type"`
			Confirmation *models.ConfirmationEvent `json:"confirmation"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("echokey: read events: %w", err)
		}
		if msg.Confirmation != nil {
			fn(*msg.Confirmation)
		}
	}
}
