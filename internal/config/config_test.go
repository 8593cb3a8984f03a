package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-pipeline
broker:
  api_key: testkey
  user_id: AB1234
redis:
  addr: localhost:6380
  db: 2
queue:
  stream: ticks:test
  max_len: 5000
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-pipeline" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-pipeline")
	}
	if cfg.Broker.APIKey != "testkey" {
		t.Errorf("Broker.APIKey = %q, want %q", cfg.Broker.APIKey, "testkey")
	}
	if cfg.Redis.Addr != "localhost:6380" {
		t.Errorf("Redis.Addr = %q, want %q", cfg.Redis.Addr, "localhost:6380")
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("Redis.DB = %d, want 2", cfg.Redis.DB)
	}
	if cfg.Queue.MaxLen != 5000 {
		t.Errorf("Queue.MaxLen = %d, want 5000", cfg.Queue.MaxLen)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_TOTP_SECRET", "JBSWY3DPEHPK3PXP")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-pipeline
broker:
  totp_secret: ${TEST_TOTP_SECRET}
database:
  postgres:
    host: localhost
    name: ticks
    user: ticks
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Broker.TOTPSecret != "JBSWY3DPEHPK3PXP" {
		t.Errorf("Broker.TOTPSecret = %q, want %q", cfg.Broker.TOTPSecret, "JBSWY3DPEHPK3PXP")
	}
	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-pipeline
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Broker.WSURL != DefaultWSURL {
		t.Errorf("Broker.WSURL = %q, want default %q", cfg.Broker.WSURL, DefaultWSURL)
	}
	if cfg.Sessions.MaxConnections != DefaultMaxConnections {
		t.Errorf("Sessions.MaxConnections = %d, want default %d", cfg.Sessions.MaxConnections, DefaultMaxConnections)
	}
	if cfg.Sessions.Mode != DefaultTickMode {
		t.Errorf("Sessions.Mode = %q, want default %q", cfg.Sessions.Mode, DefaultTickMode)
	}
	if cfg.Queue.Stream != DefaultStream {
		t.Errorf("Queue.Stream = %q, want default %q", cfg.Queue.Stream, DefaultStream)
	}
	if cfg.Queue.MaxLen != DefaultStreamMaxLen {
		t.Errorf("Queue.MaxLen = %d, want default %d", cfg.Queue.MaxLen, DefaultStreamMaxLen)
	}
	if cfg.Consumer.Group != DefaultGroup {
		t.Errorf("Consumer.Group = %q, want default %q", cfg.Consumer.Group, DefaultGroup)
	}
	if cfg.Consumer.BlockTimeout != DefaultBlockTimeout {
		t.Errorf("Consumer.BlockTimeout = %v, want default %v", cfg.Consumer.BlockTimeout, DefaultBlockTimeout)
	}
	if cfg.Store.FlushInterval != DefaultFlushInterval {
		t.Errorf("Store.FlushInterval = %v, want default %v", cfg.Store.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Store.Timezone != DefaultTimezone {
		t.Errorf("Store.Timezone = %q, want default %q", cfg.Store.Timezone, DefaultTimezone)
	}
	if cfg.Store.DepthEnabled == nil || !*cfg.Store.DepthEnabled {
		t.Error("Store.DepthEnabled not defaulted to true")
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want default %d", cfg.Health.Port, DefaultHealthPort)
	}
}

func TestLoadDepthEnabled(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want bool
	}{
		{
			name: "omitted means on",
			yaml: "instance:\n  id: t\n",
			want: true,
		},
		{
			name: "explicit false survives defaulting",
			yaml: "instance:\n  id: t\nstore:\n  depth_enabled: false\n",
			want: false,
		},
		{
			name: "explicit true",
			yaml: "instance:\n  id: t\nstore:\n  depth_enabled: true\n",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithDefaults(writeTempFile(t, tt.yaml))
			if err != nil {
				t.Fatalf("LoadWithDefaults failed: %v", err)
			}
			if cfg.Store.DepthEnabled == nil {
				t.Fatal("Store.DepthEnabled = nil after defaults")
			}
			if got := *cfg.Store.DepthEnabled; got != tt.want {
				t.Errorf("Store.DepthEnabled = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDurations(t *testing.T) {
	yaml := `
instance:
  id: test-pipeline
sessions:
  reconnect_base_delay: 500ms
  reconnect_max_delay: 2m
store:
  flush_interval: 30s
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sessions.ReconnectBaseDelay != 500*time.Millisecond {
		t.Errorf("ReconnectBaseDelay = %v, want 500ms", cfg.Sessions.ReconnectBaseDelay)
	}
	if cfg.Sessions.ReconnectMaxDelay != 2*time.Minute {
		t.Errorf("ReconnectMaxDelay = %v, want 2m", cfg.Sessions.ReconnectMaxDelay)
	}
	if cfg.Store.FlushInterval != 30*time.Second {
		t.Errorf("FlushInterval = %v, want 30s", cfg.Store.FlushInterval)
	}
}

func TestValidateConnector(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Instance.ID = "test"
		cfg.Broker.APIKey = "key"
		cfg.Broker.APISecret = "secret"
		cfg.Broker.UserID = "AB1234"
		cfg.Broker.Password = "pass"
		cfg.Broker.TOTPSecret = "JBSWY3DPEHPK3PXP"
		cfg.Instruments.Underlyings = []string{"NIFTY"}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Broker.APIKey = "" },
			wantErr: "broker.api_key is required",
		},
		{
			name:    "missing totp secret",
			mutate:  func(c *Config) { c.Broker.TOTPSecret = "" },
			wantErr: "broker.totp_secret is required",
		},
		{
			name:    "no underlyings",
			mutate:  func(c *Config) { c.Instruments.Underlyings = nil },
			wantErr: "instruments.underlyings is required",
		},
		{
			name:    "too many connections",
			mutate:  func(c *Config) { c.Sessions.MaxConnections = 5 },
			wantErr: "sessions.max_connections must be between 1 and 3, got 5",
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Sessions.Mode = "turbo" },
			wantErr: `sessions.mode must be ltp, quote or full, got "turbo"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateConnector()
			checkValidateErr(t, err, tt.wantErr)
		})
	}
}

func TestValidateReceiver(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Instance.ID = "test"
		cfg.Database.Postgres = DBConfig{
			Host: "localhost", Name: "ticks", User: "ticks", Password: "pass",
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing postgres host",
			mutate:  func(c *Config) { c.Database.Postgres.Host = "" },
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "missing postgres password",
			mutate:  func(c *Config) { c.Database.Postgres.Password = "" },
			wantErr: "database.postgres.password is required",
		},
		{
			name:    "min_conns exceeds max_conns",
			mutate:  func(c *Config) { c.Database.Postgres.MinConns = 20 },
			wantErr: "database.postgres.min_conns (20) cannot exceed max_conns (10)",
		},
		{
			name:    "buffer cap below flush batch",
			mutate:  func(c *Config) { c.Store.BufferCap = 10 },
			wantErr: "store.buffer_cap (10) cannot be below flush_batch_size (500)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateReceiver()
			checkValidateErr(t, err, tt.wantErr)
		})
	}
}

func checkValidateErr(t *testing.T, err error, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		return
	}
	if err == nil {
		t.Errorf("expected error %q, got nil", want)
	} else if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
