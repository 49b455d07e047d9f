package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Settlement strategies.
const (
	SettlementInline   = "inline"
	SettlementTransfer = "transfer"
)

// PlatformFeeRateV1 is the platform fee applied when none is configured.
const PlatformFeeRateV1 = "0.14"

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Auth      AuthConfig      `yaml:"auth"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Outbox    OutboxConfig    `yaml:"outbox"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	BalanceTTL time.Duration `yaml:"balance_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type AuthConfig struct {
	AccessTokenSecret string   `yaml:"access_token_secret"`
	AdminUserIDs      []uint64 `yaml:"admin_user_ids"`
}

// Validate checks what a process that authenticates HTTP callers needs.
// The outbox poller never does, so Config.Validate leaves this out.
func (a AuthConfig) Validate() error {
	if a.AccessTokenSecret == "" {
		return errors.New("auth.access_token_secret is required")
	}
	return nil
}

// PaymentsConfig holds everything the purchase/payout workflow consumes.
type PaymentsConfig struct {
	SecretKey         string        `yaml:"secret_key"`
	WebhookSecret     string        `yaml:"webhook_secret"`
	APIURL            string        `yaml:"api_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxNetworkRetries int64         `yaml:"max_network_retries"`
	Currency          string        `yaml:"currency"`
	FeeRate           string        `yaml:"fee_rate"`
	Settlement        string        `yaml:"settlement"`
	FrontendURL       string        `yaml:"frontend_url"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MetricsAddr  string        `yaml:"metrics_addr"`
}

// PlatformFeeRate parses the configured platform fee rate.
func (p PaymentsConfig) PlatformFeeRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(p.FeeRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fee_rate %q: %w", p.FeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("fee_rate %s out of range [0,1)", rate)
	}
	return rate, nil
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets from the environment.
func applyEnv(cfg *Config) {
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Payments.SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Payments.WebhookSecret = v
	}
	if v := os.Getenv("ACCESS_TOKEN_SECRET"); v != "" {
		cfg.Auth.AccessTokenSecret = v
	}
}

// Validate fills defaults and rejects settings the workflow cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Redis.BalanceTTL == 0 {
		c.Redis.BalanceTTL = 30 * time.Second
	}
	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MetricsAddr == "" {
		c.Outbox.MetricsAddr = ":9091"
	}
	if c.Payments.Timeout == 0 {
		c.Payments.Timeout = 10 * time.Second
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "usd"
	}
	if c.Payments.FeeRate == "" {
		c.Payments.FeeRate = PlatformFeeRateV1
	}
	if c.Payments.Settlement == "" {
		c.Payments.Settlement = SettlementInline
	}
	if c.Payments.FrontendURL == "" {
		c.Payments.FrontendURL = "http://localhost:3000"
	}
	if _, err := c.Payments.PlatformFeeRate(); err != nil {
		return err
	}
	switch c.Payments.Settlement {
	case SettlementInline, SettlementTransfer:
	default:
		return fmt.Errorf("unknown settlement strategy %q", c.Payments.Settlement)
	}
	return nil
}
