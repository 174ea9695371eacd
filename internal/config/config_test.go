package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
	assert.Equal(t, NotifierModeOutbox, cfg.Notifier.Mode)
	assert.Equal(t, SinkKafka, cfg.Notifier.Sink)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.Len(t, cfg.Demo.Accounts, 2)
	assert.Equal(t, "ACC-A-001", cfg.Demo.Accounts[0].Number)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
postgres:
  dsn: "host=db"
notifier:
  sink: audit
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, uint64(3), cfg.Ledger.FailureRetries)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
	assert.Equal(t, NotifierModeOutbox, cfg.Notifier.Mode)
	assert.Equal(t, 100, cfg.Notifier.BatchSize)
	assert.Equal(t, time.Second, cfg.Notifier.PollInterval)
	assert.Equal(t, "ledger:transfers", cfg.Redis.Stream)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
postgres:
  dsn: "host=db"
kafka:
  brokers: ["a:9092"]
`)
	t.Setenv("LEDGER_POSTGRES_DSN", "host=override")
	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("LEDGER_KAFKA_BROKERS", "b:9092,c:9092")
	t.Setenv("LEDGER_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "host=override password=s3cret", cfg.Postgres.DSN)
	assert.Equal(t, []string{"b:9092", "c:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing dsn":     "server:\n  port: 1\n",
		"bad mode":        "postgres:\n  dsn: x\nnotifier:\n  mode: carrier-pigeon\n  sink: audit\n",
		"bad sink":        "postgres:\n  dsn: x\nnotifier:\n  sink: fax\n",
		"kafka no broker": "postgres:\n  dsn: x\nnotifier:\n  sink: kafka\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
