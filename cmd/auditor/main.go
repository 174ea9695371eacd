package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/richardliu001/transfer-ledger/internal/audit"
	"github.com/richardliu001/transfer-ledger/internal/bootstrap"
	"github.com/richardliu001/transfer-ledger/internal/config"
	"github.com/richardliu001/transfer-ledger/internal/logger"
	"github.com/richardliu001/transfer-ledger/internal/model"
)

// auditor consumes transfer-completed notifications from Kafka into audit_logs.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := bootstrap.OpenPostgres(cfg.Postgres)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := model.AutoMigrate(gdb); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}
	repository := bootstrap.NewRepository(gdb, cfg, log)

	reader := audit.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Audit.GroupID)
	defer reader.Close()

	consumer := audit.NewConsumer(reader, audit.NewRecorder(repository), log)
	log.Infow("ledger-auditor started", "topic", cfg.Kafka.Topic, "group", cfg.Audit.GroupID)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("consume: %v", err)
	}
	log.Info("ledger-auditor stopped")
}
