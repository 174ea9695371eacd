package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/transfer-ledger/internal/bootstrap"
	"github.com/richardliu001/transfer-ledger/internal/config"
	"github.com/richardliu001/transfer-ledger/internal/logger"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/service"
	httptransport "github.com/richardliu001/transfer-ledger/internal/transport/http"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. postgres
	gdb, err := bootstrap.OpenPostgres(cfg.Postgres)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := model.AutoMigrate(gdb); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}
	repository := bootstrap.NewRepository(gdb, cfg, log)

	// 4. notifier
	notifier, drain, err := bootstrap.NewNotifier(ctx, cfg, repository, log)
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}
	defer drain()

	// 5. services
	demo, err := bootstrap.DemoAccounts(cfg.Demo)
	if err != nil {
		log.Fatalf("%v", err)
	}
	transfers := service.NewTransferService(repository, notifier, log, service.WithFailureRetries(cfg.Ledger.FailureRetries))
	queries := service.NewQueryService(repository, demo, log)

	// 6. gin router
	router := httptransport.NewRouter(transfers, queries, cfg.RateLimit, log)

	// 7. serve
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.Infow("ledger-server listening", "addr", srv.Addr, "notifier", cfg.Notifier.Mode, "sink", cfg.Notifier.Sink)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen: %v", err)
	}
	log.Info("ledger-server stopped")
}
