package config

import (
	"errors"
	"fmt"
)

// Validate checks the sections both binaries depend on.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Queue.Stream == "" {
		return errors.New("queue.stream is required")
	}
	if c.Queue.MaxLen < 1 {
		return errors.New("queue.max_len must be >= 1")
	}
	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}
	return nil
}

// ValidateConnector checks everything the connector binary needs.
func (c *Config) ValidateConnector() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Broker.APIKey == "" {
		return errors.New("broker.api_key is required")
	}
	if c.Broker.APISecret == "" {
		return errors.New("broker.api_secret is required")
	}
	if c.Broker.UserID == "" {
		return errors.New("broker.user_id is required")
	}
	if c.Broker.Password == "" {
		return errors.New("broker.password is required")
	}
	if c.Broker.TOTPSecret == "" {
		return errors.New("broker.totp_secret is required")
	}

	if len(c.Instruments.Underlyings) == 0 {
		return errors.New("instruments.underlyings is required")
	}
	if c.Instruments.StrikeWindowPct < 0 {
		return errors.New("instruments.strike_window_pct must be >= 0")
	}

	if c.Sessions.MaxConnections < 1 || c.Sessions.MaxConnections > 3 {
		return fmt.Errorf("sessions.max_connections must be between 1 and 3, got %d", c.Sessions.MaxConnections)
	}
	if c.Sessions.MaxSubscriptions < 1 {
		return errors.New("sessions.max_subscriptions must be >= 1")
	}
	switch c.Sessions.Mode {
	case "ltp", "quote", "full":
	default:
		return fmt.Errorf("sessions.mode must be ltp, quote or full, got %q", c.Sessions.Mode)
	}

	return nil
}

// ValidateReceiver checks everything the receiver binary needs.
func (c *Config) ValidateReceiver() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Consumer.Group == "" {
		return errors.New("consumer.group is required")
	}
	if c.Consumer.BatchCount < 1 {
		return errors.New("consumer.batch_count must be >= 1")
	}

	if c.Store.FlushBatchSize < 1 {
		return errors.New("store.flush_batch_size must be >= 1")
	}
	if c.Store.BufferCap < c.Store.FlushBatchSize {
		return fmt.Errorf("store.buffer_cap (%d) cannot be below flush_batch_size (%d)",
			c.Store.BufferCap, c.Store.FlushBatchSize)
	}

	return c.Database.Postgres.validate("database.postgres")
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
