package config

import "time"

// Config is the root configuration shared by the connector and receiver.
type Config struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Broker      BrokerConfig      `yaml:"broker"`
	Instruments InstrumentsConfig `yaml:"instruments"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Redis       RedisConfig       `yaml:"redis"`
	Queue       QueueConfig       `yaml:"queue"`
	Consumer    ConsumerConfig    `yaml:"consumer"`
	Store       StoreConfig       `yaml:"store"`
	Database    DatabaseConfig    `yaml:"database"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Market      MarketConfig      `yaml:"market"`
	Health      HealthConfig      `yaml:"health"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// InstanceConfig identifies this pipeline instance in logs and consumer names.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// BrokerConfig holds Kite API credentials and endpoints.
type BrokerConfig struct {
	APIKey     string        `yaml:"api_key"`
	APISecret  string        `yaml:"api_secret"`
	UserID     string        `yaml:"user_id"`
	Password   string        `yaml:"password"`
	TOTPSecret string        `yaml:"totp_secret"` // base32 TOTP seed for 2FA
	LoginURL   string        `yaml:"login_url"`   // interactive login host
	APIURL     string        `yaml:"api_url"`     // REST API host
	WSURL      string        `yaml:"ws_url"`      // ticker WebSocket host
	Timeout    time.Duration `yaml:"timeout"`     // HTTP client timeout
}

// InstrumentsConfig selects the instrument universe to subscribe.
type InstrumentsConfig struct {
	Exchange           string            `yaml:"exchange"`            // derivatives exchange, e.g. NFO
	UnderlyingExchange string            `yaml:"underlying_exchange"` // spot exchange, e.g. NSE
	Underlyings        []string          `yaml:"underlyings"`         // e.g. [NIFTY, BANKNIFTY]
	Kinds              []string          `yaml:"kinds"`               // instrument_type codes: CE, PE, FUT
	WeeklyExpiries     int               `yaml:"weekly_expiries"`     // distinct near expiries to keep
	MonthlyExpiries    int               `yaml:"monthly_expiries"`    // month-end expiries to keep
	StrikeWindowPct    float64           `yaml:"strike_window_pct"`   // options-only strike band, 0 disables
	IncludeUnderlying  bool              `yaml:"include_underlying"`  // subscribe the spot instrument too
	SpotSymbols        map[string]string `yaml:"spot_symbols"`        // underlying -> spot trading symbol
}

// SessionsConfig holds socket session and session manager settings.
type SessionsConfig struct {
	MaxConnections     int           `yaml:"max_connections"`     // socket count ceiling (broker allows 3)
	MaxSubscriptions   int           `yaml:"max_subscriptions"`   // per-connection token ceiling
	Mode               string        `yaml:"mode"`                // ltp, quote or full
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"` // merged tick channel capacity
	StopTimeout        time.Duration `yaml:"stop_timeout"`
}

// RedisConfig holds the shared Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig holds the durable tick stream settings.
type QueueConfig struct {
	Stream         string        `yaml:"stream"`          // stream key, e.g. ticks:raw
	MaxLen         int64         `yaml:"max_len"`         // oldest-first trim threshold
	ExactTrim      bool          `yaml:"exact_trim"`      // exact MAXLEN instead of approximate
	PublishTimeout time.Duration `yaml:"publish_timeout"` // per-publish deadline before dropping
	BatchSize      int           `yaml:"batch_size"`      // pipelined XADDs per publish cycle
}

// ConsumerConfig holds consumer-group read settings.
type ConsumerConfig struct {
	Group         string        `yaml:"group"`
	Name          string        `yaml:"name"` // empty = instance id + random suffix
	BatchCount    int           `yaml:"batch_count"`
	BlockTimeout  time.Duration `yaml:"block_timeout"`
	ClaimMinIdle  time.Duration `yaml:"claim_min_idle"`  // pending age before reclaim
	ClaimInterval time.Duration `yaml:"claim_interval"`  // how often to scan for stale pending
	RetryBackoff  time.Duration `yaml:"retry_backoff"`   // pause after a read error
}

// StoreConfig holds fast-storage and flush settings.
type StoreConfig struct {
	KeyTTL         time.Duration `yaml:"key_ttl"`          // TTL on per-day Redis keys
	DepthEnabled   *bool         `yaml:"depth_enabled"`    // keep the per-symbol depth series; unset means on
	FlushInterval  time.Duration `yaml:"flush_interval"`   // periodic flush cadence
	FlushBatchSize int           `yaml:"flush_batch_size"` // pending rows that force an early flush
	BufferCap      int           `yaml:"buffer_cap"`       // pending buffer hard cap
	Timezone       string        `yaml:"timezone"`         // trading-date zone
}

// DatabaseConfig holds the durable storage connection.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// TelegramConfig holds optional operational notifications.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// MarketConfig bounds the connector's run to the trading session.
type MarketConfig struct {
	CloseTime string `yaml:"close_time"` // "HH:MM" in Timezone, empty = run until signaled
	Timezone  string `yaml:"timezone"`
}

// HealthConfig holds the HTTP health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
