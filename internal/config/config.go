// Package config 提供统一配置模型与加载（YAML + env override）。
package config

// Config 根配置；敏感项由 env 覆盖（见 Load）。
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Signal       SignalConfig       `yaml:"signal"`
	Store        StoreConfig        `yaml:"store"`
	Transactions TransactionsConfig `yaml:"transactions"`
	Audit        AuditConfig        `yaml:"audit"`
	Events       EventsConfig       `yaml:"events"`
	Delivery     DeliveryConfig     `yaml:"delivery"`
	Ownership    OwnershipConfig    `yaml:"ownership"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig HTTP 监听与校验接口限流。
type ServerConfig struct {
	ListenAddr            string  `yaml:"listen_addr"`              // 如 :8080
	ValidateRatePerSecond float64 `yaml:"validate_rate_per_second"` // 0 表示不限流
	ValidateBurst         int     `yaml:"validate_burst"`
	AdminToken            string  `yaml:"admin_token"` // 非空时批量清理接口需 X-Admin-Token
}

// SignalConfig 派生密钥、时效窗口与续期参数。
type SignalConfig struct {
	Secret                  string  `yaml:"secret"` // 实际从 ECHOKEY_SIGNAL_SECRET 覆盖
	LatenciesPath           string  `yaml:"latencies_path"`
	MinWindowSeconds        int     `yaml:"min_window_seconds"`
	LatencyMultiplier       float64 `yaml:"latency_multiplier"`
	DefaultLatencySeconds   float64 `yaml:"default_latency_seconds"`
	RefreshIntervalSeconds  int     `yaml:"refresh_interval_seconds"`
	RefreshThresholdSeconds int     `yaml:"refresh_threshold_seconds"`
}

// StoreConfig 信号 KV 后端：memory / dir / badger / redis。
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"` // dir/badger 目录；badger 为空时内存模式
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig Redis 连接。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TransactionsConfig 交易记录存储：memory / postgres。
type TransactionsConfig struct {
	Backend     string `yaml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AuditConfig 校验日志存储：jsonl / memory / postgres，以及 Merkle 锚定。
type AuditConfig struct {
	Backend     string       `yaml:"backend"`
	Path        string       `yaml:"path"`
	PostgresDSN string       `yaml:"postgres_dsn"`
	Anchor      AnchorConfig `yaml:"anchor"`
}

// AnchorConfig 审计批量上链（本地 Merkle 账本）。
type AnchorConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Dir                  string `yaml:"dir"` // 为空时账本只在内存
	BatchSize            int    `yaml:"batch_size"`
	FlushIntervalSeconds int    `yaml:"flush_interval_seconds"`
}

// EventsConfig 确认事件来源：模拟器与/或 Kafka。
type EventsConfig struct {
	Simulator bool        `yaml:"simulator"`
	Kafka     KafkaConfig `yaml:"kafka"`
}

// KafkaConfig Brokers 为空表示不启用。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// DeliveryConfig 通道二投递：log / feishu / stub。
type DeliveryConfig struct {
	Channel string       `yaml:"channel"`
	Feishu  FeishuConfig `yaml:"feishu"`
}

// FeishuConfig 飞书应用配置；敏感项从 env 覆盖。
type FeishuConfig struct {
	AppID                      string `yaml:"app_id"`
	AppSecret                  string `yaml:"app_secret"` // 实际从 ECHOKEY_FEISHU_APP_SECRET 覆盖
	Enabled                    bool   `yaml:"enabled"`
	ChatID                     string `yaml:"chat_id"`         // 无接收人时兜底投递的群
	ReceiveIDType              string `yaml:"receive_id_type"` // open_id / user_id / chat_id；空则按 ID 前缀推断
	RetryMaxAttempts           int    `yaml:"retry_max_attempts"`
	RetryInitialBackoffSeconds int    `yaml:"retry_initial_backoff_seconds"`
	UseCardDelivery            bool   `yaml:"use_card_delivery"`   // 发交互卡片（含「重新下发」按钮）
	UseLongConnection          bool   `yaml:"use_long_connection"` // 长连接接收卡片点击
}

// OwnershipConfig 网络 -> 通道二接收人。
type OwnershipConfig struct {
	StaticMap  map[string][]string `yaml:"static_map,omitempty"`
	DefaultIDs []string            `yaml:"default_ids,omitempty"`
}

// LogConfig zap 日志。
type LogConfig struct {
	Level       string `yaml:"level"` // debug / info / warn / error
	Development bool   `yaml:"development"`
}
