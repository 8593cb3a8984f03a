package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLoginURL           = "https://kite.zerodha.com"
	DefaultAPIURL             = "https://api.kite.trade"
	DefaultWSURL              = "wss://ws.kite.trade"
	DefaultBrokerTimeout      = 30 * time.Second
	DefaultExchange           = "NFO"
	DefaultUnderlyingExchange = "NSE"
	DefaultWeeklyExpiries     = 2
	DefaultMonthlyExpiries    = 2
	DefaultMaxConnections     = 3
	DefaultMaxSubscriptions   = 3000
	DefaultTickMode           = "full"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultSessionBuffer      = 10000
	DefaultStopTimeout        = 10 * time.Second
	DefaultRedisAddr          = "localhost:6379"
	DefaultStream             = "ticks:raw"
	DefaultStreamMaxLen       = 100000
	DefaultPublishTimeout     = 200 * time.Millisecond
	DefaultPublishBatch       = 100
	DefaultGroup              = "tick_processors"
	DefaultBatchCount         = 100
	DefaultBlockTimeout       = 1 * time.Second
	DefaultClaimMinIdle       = 60 * time.Second
	DefaultClaimInterval      = 30 * time.Second
	DefaultRetryBackoff       = 2 * time.Second
	DefaultKeyTTL             = 24 * time.Hour
	DefaultDepthEnabled       = true
	DefaultFlushInterval      = 5 * time.Minute
	DefaultFlushBatchSize     = 500
	DefaultBufferCap          = 100000
	DefaultTimezone           = "Asia/Kolkata"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultHealthPort         = 8080
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *Config) applyDefaults() {
	// Broker defaults
	if c.Broker.LoginURL == "" {
		c.Broker.LoginURL = DefaultLoginURL
	}
	if c.Broker.APIURL == "" {
		c.Broker.APIURL = DefaultAPIURL
	}
	if c.Broker.WSURL == "" {
		c.Broker.WSURL = DefaultWSURL
	}
	if c.Broker.Timeout == 0 {
		c.Broker.Timeout = DefaultBrokerTimeout
	}

	// Instrument universe defaults
	if c.Instruments.Exchange == "" {
		c.Instruments.Exchange = DefaultExchange
	}
	if c.Instruments.UnderlyingExchange == "" {
		c.Instruments.UnderlyingExchange = DefaultUnderlyingExchange
	}
	if c.Instruments.WeeklyExpiries == 0 {
		c.Instruments.WeeklyExpiries = DefaultWeeklyExpiries
	}
	if c.Instruments.MonthlyExpiries == 0 {
		c.Instruments.MonthlyExpiries = DefaultMonthlyExpiries
	}
	if len(c.Instruments.Kinds) == 0 {
		c.Instruments.Kinds = []string{"CE", "PE", "FUT"}
	}

	// Session defaults
	if c.Sessions.MaxConnections == 0 {
		c.Sessions.MaxConnections = DefaultMaxConnections
	}
	if c.Sessions.MaxSubscriptions == 0 {
		c.Sessions.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if c.Sessions.Mode == "" {
		c.Sessions.Mode = DefaultTickMode
	}
	if c.Sessions.ReconnectBaseDelay == 0 {
		c.Sessions.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Sessions.ReconnectMaxDelay == 0 {
		c.Sessions.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Sessions.HandshakeTimeout == 0 {
		c.Sessions.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Sessions.WriteTimeout == 0 {
		c.Sessions.WriteTimeout = DefaultWriteTimeout
	}
	if c.Sessions.BufferSize == 0 {
		c.Sessions.BufferSize = DefaultSessionBuffer
	}
	if c.Sessions.StopTimeout == 0 {
		c.Sessions.StopTimeout = DefaultStopTimeout
	}

	// Redis and queue defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Queue.Stream == "" {
		c.Queue.Stream = DefaultStream
	}
	if c.Queue.MaxLen == 0 {
		c.Queue.MaxLen = DefaultStreamMaxLen
	}
	if c.Queue.PublishTimeout == 0 {
		c.Queue.PublishTimeout = DefaultPublishTimeout
	}
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = DefaultPublishBatch
	}

	// Consumer defaults
	if c.Consumer.Group == "" {
		c.Consumer.Group = DefaultGroup
	}
	if c.Consumer.BatchCount == 0 {
		c.Consumer.BatchCount = DefaultBatchCount
	}
	if c.Consumer.BlockTimeout == 0 {
		c.Consumer.BlockTimeout = DefaultBlockTimeout
	}
	if c.Consumer.ClaimMinIdle == 0 {
		c.Consumer.ClaimMinIdle = DefaultClaimMinIdle
	}
	if c.Consumer.ClaimInterval == 0 {
		c.Consumer.ClaimInterval = DefaultClaimInterval
	}
	if c.Consumer.RetryBackoff == 0 {
		c.Consumer.RetryBackoff = DefaultRetryBackoff
	}

	// Store defaults
	if c.Store.KeyTTL == 0 {
		c.Store.KeyTTL = DefaultKeyTTL
	}
	if c.Store.DepthEnabled == nil {
		v := DefaultDepthEnabled
		c.Store.DepthEnabled = &v
	}
	if c.Store.FlushInterval == 0 {
		c.Store.FlushInterval = DefaultFlushInterval
	}
	if c.Store.FlushBatchSize == 0 {
		c.Store.FlushBatchSize = DefaultFlushBatchSize
	}
	if c.Store.BufferCap == 0 {
		c.Store.BufferCap = DefaultBufferCap
	}
	if c.Store.Timezone == "" {
		c.Store.Timezone = DefaultTimezone
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Market session defaults
	if c.Market.Timezone == "" {
		c.Market.Timezone = DefaultTimezone
	}

	// Health and logging defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
