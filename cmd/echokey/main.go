// EchoKey 服务入口：加载配置、装配信号引擎与存储、启动 HTTP/WebSocket 与确认事件消费。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	feishudelivery "github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/delivery/feishu"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/logging"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (or set CONFIG_PATH)")
	validateOnly := flag.Bool("validate", false, "load config and latency overrides, then exit 0 on success or 1 on error")
	flag.Parse()

	// 工作目录：watch 下 cwd 可能不是仓库根，用可执行文件所在目录的上级作为配置根
	if execPath, err := os.Executable(); err == nil {
		parent := filepath.Clean(filepath.Join(filepath.Dir(execPath), ".."))
		if _, err := os.Stat(filepath.Join(parent, ".env")); err == nil {
			_ = os.Chdir(parent)
			fmt.Fprintf(os.Stderr, "[echokey] 工作目录: %s\n", parent)
		}
	}
	_ = config.LoadEnvFile(".env", true)
	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	if *configPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			*configPath = "config.yaml"
		}
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("config load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("config validate: %v", err)
	}
	if *validateOnly {
		if _, err := buildTTL(cfg.Signal); err != nil {
			fatalf("latencies validate: %v", err)
		}
		color.Green("[echokey] config validate ok: %s", displayPath(*configPath))
		os.Exit(0)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	banner(cfg, *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		log.Fatal("build", zap.Error(err))
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Serve(gctx) })
	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(gctx) })
	}
	if cfg.Delivery.Feishu.Enabled && cfg.Delivery.Feishu.UseLongConnection {
		feishudelivery.RunLongConnection(gctx, cfg.Delivery.Feishu, log, a.svc.Reissue)
		color.Cyan("[echokey] 飞书长连接已启动（卡片「重新下发」在此处理）")
	}
	if err := g.Wait(); err != nil {
		log.Error("exit", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func banner(cfg *config.Config, configPath string) {
	color.New(color.FgHiCyan, color.Bold).Fprintln(os.Stderr, "EchoKey split-signal service")
	fmt.Fprintf(os.Stderr, "  config:      %s\n", displayPath(configPath))
	fmt.Fprintf(os.Stderr, "  listen:      %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(os.Stderr, "  signals:     %s\n", cfg.Store.Backend)
	fmt.Fprintf(os.Stderr, "  txs/audit:   %s / %s\n", cfg.Transactions.Backend, cfg.Audit.Backend)
	fmt.Fprintf(os.Stderr, "  delivery:    %s\n", cfg.Delivery.Channel)
	if cfg.Events.Simulator {
		color.Yellow("  confirmations are simulated")
	}
	if len(cfg.Events.Kafka.Brokers) > 0 {
		fmt.Fprintf(os.Stderr, "  kafka:       %v topic=%s\n", cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
	}
	if cfg.Server.AdminToken == "" {
		color.Yellow("  admin token not set: DELETE /api/transactions and /api/logs are open")
	}
}

func displayPath(p string) string {
	if p == "" {
		return "(defaults + env)"
	}
	return p
}

func fatalf(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "[echokey] "+format+"\n", args...)
	os.Exit(1)
}
