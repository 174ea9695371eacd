package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Audit     AuditConfig     `yaml:"audit"`
	Demo      DemoConfig      `yaml:"demo"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// LedgerConfig tunes the transfer engine.
type LedgerConfig struct {
	// LockTimeout bounds how long a unit waits for an account row lock.
	LockTimeout    time.Duration `yaml:"lock_timeout"`
	FailureRetries uint64        `yaml:"failure_retries"`
}

// NotifierConfig selects how completion notifications leave the engine.
// Mode is "outbox" (durable rows relayed by the poller) or "async" (in-process queue).
// Sink is "kafka", "redis" or "audit".
type NotifierConfig struct {
	Mode         string        `yaml:"mode"`
	Sink         string        `yaml:"sink"`
	Workers      int           `yaml:"workers"`
	Buffer       int           `yaml:"buffer"`
	MaxRetries   uint64        `yaml:"max_retries"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

type AuditConfig struct {
	GroupID string `yaml:"group_id"`
}

type DemoAccount struct {
	Number   string `yaml:"number"`
	Currency string `yaml:"currency"`
	Balance  string `yaml:"balance"`
}

type DemoConfig struct {
	Accounts []DemoAccount `yaml:"accounts"`
}

const (
	NotifierModeOutbox = "outbox"
	NotifierModeAsync  = "async"

	SinkKafka = "kafka"
	SinkRedis = "redis"
	SinkAudit = "audit"
)

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if dsn := os.Getenv("LEDGER_POSTGRES_DSN"); dsn != "" {
		c.Postgres.DSN = dsn
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		c.Postgres.DSN = c.Postgres.DSN + " password=" + pw
	}
	if brokers := os.Getenv("LEDGER_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if addr := os.Getenv("LEDGER_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if port := os.Getenv("LEDGER_SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("LEDGER_SERVER_PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 20
	}
	if c.Postgres.MaxIdleConns == 0 {
		c.Postgres.MaxIdleConns = 10
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "ledger:transfers"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ledger.transfer-completed"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 100
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 200
	}
	if c.Ledger.LockTimeout == 0 {
		c.Ledger.LockTimeout = 5 * time.Second
	}
	if c.Ledger.FailureRetries == 0 {
		c.Ledger.FailureRetries = 3
	}
	if c.Notifier.Mode == "" {
		c.Notifier.Mode = NotifierModeOutbox
	}
	if c.Notifier.Sink == "" {
		c.Notifier.Sink = SinkKafka
	}
	if c.Notifier.Workers == 0 {
		c.Notifier.Workers = 2
	}
	if c.Notifier.Buffer == 0 {
		c.Notifier.Buffer = 1024
	}
	if c.Notifier.MaxRetries == 0 {
		c.Notifier.MaxRetries = 5
	}
	if c.Notifier.PollInterval == 0 {
		c.Notifier.PollInterval = time.Second
	}
	if c.Notifier.BatchSize == 0 {
		c.Notifier.BatchSize = 100
	}
	if c.Audit.GroupID == "" {
		c.Audit.GroupID = "ledger-auditor"
	}
}

// Validate rejects settings the binaries cannot start with.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	switch c.Notifier.Mode {
	case NotifierModeOutbox, NotifierModeAsync:
	default:
		return fmt.Errorf("notifier.mode %q: want %q or %q", c.Notifier.Mode, NotifierModeOutbox, NotifierModeAsync)
	}
	switch c.Notifier.Sink {
	case SinkKafka, SinkRedis, SinkAudit:
	default:
		return fmt.Errorf("notifier.sink %q: want kafka, redis or audit", c.Notifier.Sink)
	}
	if c.Notifier.Sink == SinkKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for the kafka sink")
	}
	return nil
}
