package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingSecret 未配置派生密钥。
var ErrMissingSecret = errors.New("config: signal secret is required (ECHOKEY_SIGNAL_SECRET)")

// LoadEnvFile 从 path 读取 .env 文件并写入进程环境；文件不存在不报错。
// override 为 false 时不覆盖已存在的环境变量。在 Load 之前调用。
func LoadEnvFile(path string, override bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if override {
		return godotenv.Overload(path)
	}
	return godotenv.Load(path)
}

// Default 返回单机可运行的默认配置（内存存储、日志投递）。
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

// Load 从 path 加载 YAML 配置；path 为空时只用默认值与环境变量。
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("config unmarshal: %w", err)
		}
	}
	applyEnvOverrides(&c)
	applyDefaults(&c)
	return &c, nil
}

// Validate 检查启动必需项。
func (c *Config) Validate() error {
	if c.Signal.Secret == "" {
		return ErrMissingSecret
	}
	switch c.Store.Backend {
	case "memory", "dir", "badger":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("config: store.redis.addr required for redis backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "dir" && c.Store.Path == "" {
		return fmt.Errorf("config: store.path required for dir backend")
	}
	if c.Transactions.Backend == "postgres" && c.Transactions.PostgresDSN == "" {
		return fmt.Errorf("config: transactions.postgres_dsn required")
	}
	if c.Audit.Backend == "postgres" && c.Audit.PostgresDSN == "" {
		return fmt.Errorf("config: audit.postgres_dsn required")
	}
	if c.Delivery.Channel == "feishu" && (c.Delivery.Feishu.AppID == "" || c.Delivery.Feishu.AppSecret == "") {
		return fmt.Errorf("config: feishu delivery needs app_id and app_secret")
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ValidateRatePerSecond > 0 && c.Server.ValidateBurst <= 0 {
		c.Server.ValidateBurst = int(c.Server.ValidateRatePerSecond) + 1
	}
	if c.Signal.RefreshIntervalSeconds <= 0 {
		c.Signal.RefreshIntervalSeconds = 5
	}
	if c.Signal.RefreshThresholdSeconds <= 0 {
		c.Signal.RefreshThresholdSeconds = 10
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Transactions.Backend == "" {
		c.Transactions.Backend = "memory"
	}
	if c.Audit.Backend == "" {
		if c.Audit.Path != "" {
			c.Audit.Backend = "jsonl"
		} else {
			c.Audit.Backend = "memory"
		}
	}
	if c.Audit.Anchor.BatchSize <= 0 {
		c.Audit.Anchor.BatchSize = 64
	}
	if c.Audit.Anchor.FlushIntervalSeconds <= 0 {
		c.Audit.Anchor.FlushIntervalSeconds = 10
	}
	if c.Events.Kafka.Topic == "" {
		c.Events.Kafka.Topic = "echokey.confirmations"
	}
	if c.Events.Kafka.GroupID == "" {
		c.Events.Kafka.GroupID = "echokey"
	}
	if c.Delivery.Channel == "" {
		if c.Delivery.Feishu.Enabled {
			c.Delivery.Channel = "feishu"
		} else {
			c.Delivery.Channel = "log"
		}
	}
	if c.Delivery.Feishu.RetryMaxAttempts <= 0 {
		c.Delivery.Feishu.RetryMaxAttempts = 3
	}
	if c.Delivery.Feishu.RetryInitialBackoffSeconds <= 0 {
		c.Delivery.Feishu.RetryInitialBackoffSeconds = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// applyEnvOverrides 用 ECHOKEY_ 前缀环境变量覆盖敏感或常用项。
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("ECHOKEY_SIGNAL_SECRET"); v != "" {
		c.Signal.Secret = v
	}
	if v := os.Getenv("ECHOKEY_LISTEN"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("ECHOKEY_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("ECHOKEY_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("ECHOKEY_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ECHOKEY_REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("ECHOKEY_REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("ECHOKEY_POSTGRES_DSN"); v != "" {
		c.Transactions.PostgresDSN = v
		c.Audit.PostgresDSN = v
	}
	if v := os.Getenv("ECHOKEY_KAFKA_BROKERS"); v != "" {
		c.Events.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("ECHOKEY_FEISHU_APP_ID"); v != "" {
		c.Delivery.Feishu.AppID = v
	}
	if v := os.Getenv("ECHOKEY_FEISHU_APP_SECRET"); v != "" {
		c.Delivery.Feishu.AppSecret = v
	}
	if v := os.Getenv("ECHOKEY_FEISHU_CHAT_ID"); v != "" {
		c.Delivery.Feishu.ChatID = v
	}
	if v := os.Getenv("ECHOKEY_FEISHU_USE_CARD_DELIVERY"); v != "" {
		c.Delivery.Feishu.UseCardDelivery = parseBool(v)
	}
	if v := os.Getenv("ECHOKEY_FEISHU_USE_LONG_CONNECTION"); v != "" {
		c.Delivery.Feishu.UseLongConnection = parseBool(v)
	}
	if v := os.Getenv("ECHOKEY_REFRESH_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Signal.RefreshIntervalSeconds = n
		}
	}
	if v := os.Getenv("ECHOKEY_VALIDATE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Server.ValidateRatePerSecond = f
		}
	}
	if v := os.Getenv("ECHOKEY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func parseBool(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
