package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/richardliu001/transfer-ledger/internal/bootstrap"
	"github.com/richardliu001/transfer-ledger/internal/config"
	"github.com/richardliu001/transfer-ledger/internal/logger"
	"github.com/richardliu001/transfer-ledger/internal/notify"
)

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
	repository := bootstrap.NewRepository(gdb, cfg, log)

	sink, err := bootstrap.NewSink(ctx, cfg, repository)
	if err != nil {
		log.Fatalf("sink: %v", err)
	}
	defer sink.Close()

	relay := notify.NewRelay(repository, sink, sink.Name, cfg.Notifier.BatchSize, log)
	log.Infow("ledger-poller started", "sink", sink.Name, "interval", cfg.Notifier.PollInterval)
	if err := relay.Run(ctx, cfg.Notifier.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("relay: %v", err)
	}
	log.Info("ledger-poller stopped")
}
