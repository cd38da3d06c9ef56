package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/service"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/signal"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/txstore"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IssueRequest POST /api/signals。
type IssueRequest struct {
	TransactionID string `json:"transaction_id"`
	Network       string `json:"network,omitempty"`
}

// statusOf 把领域错误映射为 HTTP 状态码。
func statusOf(err error) int {
	switch {
	case errors.Is(err, txstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnknownNetwork),
		errors.Is(err, service.ErrInvalidAddress),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrNetworkMismatch):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyProcessed), errors.Is(err, txstore.ErrExists):
		return http.StatusConflict
	case errors.Is(err, signal.ErrStoreUnavailable), errors.Is(err, signal.ErrCryptoUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func (s *Server) handleNetworks(c *gin.Context) {
	ttl := s.svc.Signals().TTL()
	type view struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Symbol        string `json:"symbol"`
		WindowSeconds int    `json:"window_seconds"`
	}
	var out []view
	for _, n := range s.svc.Registry().List() {
		out = append(out, view{ID: n.ID, Name: n.Name, Symbol: n.Symbol, WindowSeconds: ttl.WindowSeconds(n.ID)})
	}
	c.JSON(http.StatusOK, gin.H{"networks": out})
}

func (s *Server) handleCreateTransaction(c *gin.Context) {
	var in service.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tx, err := s.svc.CreateTransaction(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (s *Server) handleListTransactions(c *gin.Context) {
	list, err := s.svc.Transactions(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": list})
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	tx, err := s.svc.Transaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (s *Server) handleClearTransactions(c *gin.Context) {
	if err := s.svc.ClearTransactions(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleIssueSignal(c *gin.Context) {
	var in IssueRequest
	if err := c.ShouldBindJSON(&in); err != nil || in.TransactionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing transaction_id"})
		return
	}
	sig, err := s.svc.IssueSignal(c.Request.Context(), in.TransactionID, in.Network)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sig)
}

func (s *Server) handleGetSignal(c *gin.Context) {
	sig, err := s.svc.Signal(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if sig == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live signal"})
		return
	}
	c.JSON(http.StatusOK, sig)
}

// handleValidate 拒绝同样返回 200，由 approved/kind 区分。
func (s *Server) handleValidate(c *gin.Context) {
	var in service.ValidateInput
	if err := c.ShouldBindJSON(&in); err != nil || in.TransactionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing transaction_id"})
		return
	}
	out, err := s.svc.Validate(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// handleListLogs 带 transaction_id 时返回该交易的记录（时间正序），否则按时间倒序返回最近 limit 条。
func (s *Server) handleListLogs(c *gin.Context) {
	var (
		entries []*models.AuditEntry
		err     error
	)
	if id := c.Query("transaction_id"); id != "" {
		entries, err = s.svc.TransactionLog(c.Request.Context(), id)
	} else {
		limit, _ := strconv.Atoi(c.Query("limit"))
		entries, err = s.svc.ValidationLog(c.Request.Context(), limit)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleClearLogs(c *gin.Context) {
	if err := s.svc.ClearValidationLog(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleFeishuCard 飞书卡片回调 POST /feishu/card（HTTP 回调方式）。长连接方式下在 feishu.RunLongConnection 中处理。
func (s *Server) handleFeishuCard(c *gin.Context) {
	var callback map[string]interface{}
	if err := c.ShouldBindJSON(&callback); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	// URL 校验握手
	if ch, ok := callback["challenge"].(string); ok && ch != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": ch})
		return
	}
	action, _ := callback["action"].(map[string]interface{})
	value, _ := action["value"].(map[string]interface{})
	if value == nil {
		if vs, ok := action["value"].(string); ok && vs != "" {
			var vm map[string]interface{}
			if json.Unmarshal([]byte(vs), &vm) == nil {
				value = vm
			}
		}
	}
	txID, _ := value["transaction_id"].(string)
	actionType, _ := value["action"].(string)
	if txID == "" {
		c.JSON(http.StatusOK, gin.H{"toast": gin.H{"type": "info", "content": "缺少 transaction_id"}})
		return
	}
	if err := s.svc.Reissue(c.Request.Context(), txID, actionType); err != nil {
		s.log.Warn("card reissue failed", zap.String("transaction_id", txID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"toast": gin.H{"type": "warning", "content": "该交易已失效或已处理"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"toast": gin.H{"type": "success", "content": "已重新下发"}})
}
