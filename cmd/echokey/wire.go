package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/api"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/audit"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/chain"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/delivery"
	feishudelivery "github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/delivery/feishu"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/metrics"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/network"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/notify"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/ownership"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/service"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/signal"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/txstore"
	chainpkg "github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/pkg/chain"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app 装配完成的进程：HTTP 服务、可选 Kafka 消费者与需要关闭的资源。
type app struct {
	svc      *service.Service
	server   *api.Server
	consumer *notify.KafkaConsumer
	bridge   *chain.AuditChainBridge
	closers  []io.Closer
}

func (a *app) Close() {
	a.svc.Close()
	if a.bridge != nil {
		a.bridge.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func buildSignalBackend(ctx context.Context, cfg config.StoreConfig) (signal.Backend, error) {
	switch cfg.Backend {
	case "dir":
		return signal.NewDirBackend(cfg.Path)
	case "badger":
		return signal.NewBadgerBackend(cfg.Path)
	case "redis":
		return signal.NewRedisBackend(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	default:
		return signal.NewMemoryBackend(), nil
	}
}

func buildTTL(cfg config.SignalConfig) (*signal.TTLPolicy, error) {
	overrides, err := signal.LoadLatencies(cfg.LatenciesPath)
	if err != nil {
		return nil, err
	}
	return signal.NewTTLPolicy(
		signal.WithLatencies(overrides),
		signal.WithFloor(cfg.MinWindowSeconds),
		signal.WithMultiplier(cfg.LatencyMultiplier),
		signal.WithDefaultLatency(cfg.DefaultLatencySeconds),
	), nil
}

// postgres 交易与审计可共用一个连接池。
type dbPool struct {
	log *zap.Logger
	dbs map[string]*gorm.DB
}

func (p *dbPool) open(dsn string) (*gorm.DB, error) {
	if db, ok := p.dbs[dsn]; ok {
		return db, nil
	}
	db, err := txstore.OpenPostgres(dsn, p.log)
	if err != nil {
		return nil, err
	}
	p.dbs[dsn] = db
	return db, nil
}

func buildAudit(cfg config.AuditConfig, pool *dbPool) (audit.Store, io.Closer, error) {
	switch cfg.Backend {
	case "jsonl":
		s, err := audit.NewJSONLStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "postgres":
		db, err := pool.open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		s, err := audit.NewGormStore(db)
		return s, nil, err
	default:
		return audit.NewMemoryStore(), nil, nil
	}
}

func buildDelivery(cfg config.DeliveryConfig, log *zap.Logger) delivery.Provider {
	switch cfg.Channel {
	case "feishu":
		return feishudelivery.NewProvider(cfg.Feishu, log)
	case "stub":
		return delivery.StubProvider{}
	default:
		return delivery.NewLogProvider(log)
	}
}

// build 按配置装配全部组件。出错时已打开的资源会被关闭。
func build(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			for i := len(a.closers) - 1; i >= 0; i-- {
				_ = a.closers[i].Close()
			}
		}
	}()

	deriver, err := signal.NewDeriver([]byte(cfg.Signal.Secret))
	if err != nil {
		return nil, err
	}
	ttl, err := buildTTL(cfg.Signal)
	if err != nil {
		return nil, err
	}
	backend, err := buildSignalBackend(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("signal store: %w", err)
	}
	signals := signal.NewStore(backend, deriver, ttl, log)
	a.closers = append(a.closers, signals)

	pool := &dbPool{log: log, dbs: map[string]*gorm.DB{}}
	var txs txstore.Repository = txstore.NewMemoryRepository()
	if cfg.Transactions.Backend == "postgres" {
		db, err := pool.open(cfg.Transactions.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("transactions: %w", err)
		}
		if txs, err = txstore.NewGormRepository(db); err != nil {
			return nil, fmt.Errorf("transactions: %w", err)
		}
	}

	auditStore, closer, err := buildAudit(cfg.Audit, pool)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	var anchor *chain.Server
	if cfg.Audit.Anchor.Enabled {
		var local *chainpkg.LocalStore
		if cfg.Audit.Anchor.Dir != "" {
			local = chainpkg.NewLocalStoreWithPath(cfg.Audit.Anchor.Dir)
		} else {
			local = chainpkg.NewLocalStore()
		}
		a.closers = append(a.closers, local)
		ledger := chainpkg.NewLedger(local)
		a.bridge = chain.NewAuditChainBridge(auditStore, ledger, cfg.Audit.Anchor.BatchSize,
			time.Duration(cfg.Audit.Anchor.FlushIntervalSeconds)*time.Second, chain.WithLogger(log))
		a.bridge.Start()
		auditStore = a.bridge
		anchor = chain.NewServer(ledger, auditStore)
	}

	registry := network.NewRegistry()
	bus := notify.NewBus(log)
	var confirmer service.Confirmer
	if cfg.Events.Simulator {
		// 配置了 Kafka 时模拟确认经 Kafka 回流，与真实确认源走同一路径
		var pub notify.Publisher = bus
		if len(cfg.Events.Kafka.Brokers) > 0 {
			kp := notify.NewKafkaPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
			a.closers = append(a.closers, kp)
			pub = kp
		}
		confirmer = notify.NewSimulator(registry, pub, log)
	}
	if len(cfg.Events.Kafka.Brokers) > 0 {
		a.consumer = notify.NewKafkaConsumer(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, cfg.Events.Kafka.GroupID, bus, log)
		a.closers = append(a.closers, a.consumer)
	}

	var recipients ownership.Resolver = ownership.StubResolver{}
	if len(cfg.Ownership.StaticMap) > 0 || len(cfg.Ownership.DefaultIDs) > 0 {
		recipients = ownership.NewStaticResolver(cfg.Ownership.StaticMap, cfg.Ownership.DefaultIDs)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	a.svc, err = service.New(service.Deps{
		Transactions:     txs,
		Signals:          signals,
		Audit:            auditStore,
		Bus:              bus,
		Confirmations:    confirmer,
		Registry:         registry,
		Delivery:         buildDelivery(cfg.Delivery, log),
		Recipients:       recipients,
		Metrics:          m,
		Logger:           log,
		RefreshInterval:  time.Duration(cfg.Signal.RefreshIntervalSeconds) * time.Second,
		RefreshThreshold: time.Duration(cfg.Signal.RefreshThresholdSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	opts := []api.Option{api.WithLogger(log), api.WithReadiness(func(ctx context.Context) error {
		_, err := signals.Get(ctx, "readyz")
		return err
	})}
	if anchor != nil {
		opts = append(opts, api.WithAnchor(anchor))
	}
	a.server = api.NewServer(cfg.Server, a.svc, opts...)
	return a, nil
}
