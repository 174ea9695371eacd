package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/richardliu001/transfer-ledger/internal/bootstrap"
	"github.com/richardliu001/transfer-ledger/internal/config"
	"github.com/richardliu001/transfer-ledger/internal/logger"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/service"
)

// seeder migrates the schema and creates the demo accounts. With -reset it also
// wipes every transfer and restores the demo balances.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	reset := flag.Bool("reset", false, "wipe transfers and restore demo balances")
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

	gdb, err := bootstrap.OpenPostgres(cfg.Postgres)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := model.AutoMigrate(gdb); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}
	demo, err := bootstrap.DemoAccounts(cfg.Demo)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	queries := service.NewQueryService(bootstrap.NewRepository(gdb, cfg, log), demo, log)
	created, err := queries.SeedDemoAccounts(ctx)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Infow("demo accounts seeded", "created", created, "configured", len(demo))

	if *reset {
		if err := queries.ResetDemo(ctx); err != nil {
			log.Fatalf("reset: %v", err)
		}
	}
}
