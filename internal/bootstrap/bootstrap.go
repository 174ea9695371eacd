// Package bootstrap wires configuration into the concrete stores and sinks shared
// by the binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/transfer-ledger/internal/audit"
	"github.com/richardliu001/transfer-ledger/internal/config"
	"github.com/richardliu001/transfer-ledger/internal/notify"
	"github.com/richardliu001/transfer-ledger/internal/repo"
	"github.com/richardliu001/transfer-ledger/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenPostgres opens the ledger store and sizes its pool.
func OpenPostgres(cfg config.PostgresConfig) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return gdb, nil
}

// NewRepository applies the ledger tuning to a repository over gdb.
func NewRepository(gdb *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *repo.Repository {
	return repo.NewRepository(gdb, log, repo.WithLockTimeout(cfg.Ledger.LockTimeout))
}

// Sink is a publisher plus whatever must be released with it.
type Sink struct {
	notify.Publisher
	Name  string
	close []func() error
}

// Close releases the sink's client connections.
func (s *Sink) Close() error {
	var first error
	for _, c := range s.close {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewSink builds the publisher named by cfg.Notifier.Sink.
func NewSink(ctx context.Context, cfg *config.Config, store *repo.Repository) (*Sink, error) {
	switch cfg.Notifier.Sink {
	case config.SinkKafka:
		w := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		return &Sink{Publisher: notify.NewKafkaPublisher(w), Name: config.SinkKafka, close: []func() error{w.Close}}, nil
	case config.SinkRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		pub := notify.NewRedisStreamPublisher(rdb, cfg.Redis.Stream, cfg.Redis.MaxLen)
		return &Sink{Publisher: pub, Name: config.SinkRedis, close: []func() error{rdb.Close}}, nil
	case config.SinkAudit:
		return &Sink{Publisher: audit.NewRecorder(store), Name: config.SinkAudit}, nil
	default:
		return nil, fmt.Errorf("unknown notifier sink %q", cfg.Notifier.Sink)
	}
}

// NewNotifier returns the engine's notifier and a function that drains it.
// In outbox mode the sink is not needed here; the poller owns delivery.
func NewNotifier(ctx context.Context, cfg *config.Config, store *repo.Repository, log *zap.SugaredLogger) (notify.Notifier, func(), error) {
	if cfg.Notifier.Mode == config.NotifierModeOutbox {
		return notify.NewOutboxNotifier(store, log), func() {}, nil
	}
	sink, err := NewSink(ctx, cfg, store)
	if err != nil {
		return nil, nil, err
	}
	n := notify.NewAsyncNotifier(sink, log, notify.AsyncOptions{
		Sink:       sink.Name,
		Workers:    cfg.Notifier.Workers,
		Buffer:     cfg.Notifier.Buffer,
		MaxRetries: cfg.Notifier.MaxRetries,
	})
	return n, func() {
		n.Close()
		if err := sink.Close(); err != nil {
			log.Warnw("close sink", "error", err)
		}
	}, nil
}

// DemoAccounts parses the configured demo accounts.
func DemoAccounts(cfg config.DemoConfig) ([]service.DemoAccount, error) {
	out := make([]service.DemoAccount, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		bal, err := decimal.NewFromString(a.Balance)
		if err != nil {
			return nil, fmt.Errorf("demo account %s: invalid balance %q: %w", a.Number, a.Balance, err)
		}
		out = append(out, service.DemoAccount{Number: a.Number, Currency: a.Currency, Balance: bal})
	}
	return out, nil
}
