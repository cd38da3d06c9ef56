// Package api 暴露 EchoKey 的 HTTP 与 WebSocket 接口。
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/chain"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server 持有服务编排、可选的存证接口与指标采集器，并暴露探针与 /api 路由。
type Server struct {
	cfg      config.ServerConfig
	svc      *service.Service
	anchor   *chain.Server
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
	ready    func(ctx context.Context) error
	log      *zap.Logger
}

// Option 可选项。
type Option func(*Server)

// WithAnchor 挂载 /api/logs/:id/proof 与 /api/anchor/*。
func WithAnchor(a *chain.Server) Option {
	return func(s *Server) { s.anchor = a }
}

// WithGatherer 指标来源；默认 prometheus.DefaultGatherer。
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithReadiness /readyz 探测依赖；返回错误时 503。
func WithReadiness(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.ready = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer 构造 Server；svc 由调用方组装。
func NewServer(cfg config.ServerConfig, svc *service.Service, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		gatherer: prometheus.DefaultGatherer,
		log:      zap.NewNop(),
	}
	if cfg.ValidateRatePerSecond > 0 {
		burst := cfg.ValidateBurst
		if burst <= 0 {
			burst = int(cfg.ValidateRatePerSecond) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.ValidateRatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("api")
	return s
}

// Handler 返回完整路由，供测试或外部嵌入使用。
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/readyz", s.handleReady)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.POST("/feishu/card", s.handleFeishuCard)

	api := r.Group("/api")
	api.GET("/networks", s.handleNetworks)
	api.POST("/transactions", s.handleCreateTransaction)
	api.GET("/transactions", s.handleListTransactions)
	api.GET("/transactions/:id", s.handleGetTransaction)
	api.DELETE("/transactions", s.requireAdmin, s.handleClearTransactions)
	api.POST("/signals", s.handleIssueSignal)
	api.GET("/signals/:id", s.handleGetSignal)
	api.POST("/validate", s.rateLimit, s.handleValidate)
	api.GET("/logs", s.handleListLogs)
	api.DELETE("/logs", s.requireAdmin, s.handleClearLogs)
	api.GET("/events", s.handleEvents)
	if s.anchor != nil {
		s.anchor.Register(api)
	}
	return r
}

// Serve 启动 HTTP 服务，ctx 取消后优雅关闭。
func (s *Server) Serve(ctx context.Context) error {
	addr := s.cfg.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.log.Info("listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func (s *Server) handleReady(c *gin.Context) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "not ready: %v", err)
			return
		}
	}
	c.String(http.StatusOK, "ready")
}

// requireAdmin 配置了 AdminToken 时，批量清理需携带 X-Admin-Token。
func (s *Server) requireAdmin(c *gin.Context) {
	if s.cfg.AdminToken == "" {
		c.Next()
		return
	}
	if c.GetHeader("X-Admin-Token") != s.cfg.AdminToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token required"})
		return
	}
	c.Next()
}

func (s *Server) rateLimit(c *gin.Context) {
	if s.limiter != nil && !s.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many validation attempts"})
		return
	}
	c.Next()
}
