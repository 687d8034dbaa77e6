package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Spok95/milk-pool/internal/api"
	"github.com/Spok95/milk-pool/internal/config"
	"github.com/Spok95/milk-pool/internal/domain/collections"
	"github.com/Spok95/milk-pool/internal/domain/inventory"
	"github.com/Spok95/milk-pool/internal/domain/pool"
	"github.com/Spok95/milk-pool/internal/infra/db"
	httpx "github.com/Spok95/milk-pool/internal/infra/http"
	"github.com/Spok95/milk-pool/internal/infra/logger"
	"github.com/Spok95/milk-pool/internal/infra/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/subosito/gotenv"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	_ = gotenv.Load()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/example.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgpool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pgpool.Close()
	log.Info("db connected")

	store := pool.NewRepo(pgpool)
	engine := pool.NewEngine(store, log)
	if _, err := engine.EnsureActive(ctx); err != nil {
		log.Error("pool bootstrap failed", "err", err)
		return
	}

	notifier, err := notify.New(cfg.Telegram.Token, cfg.Telegram.AdminChatID, log)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}
	if notifier == nil {
		log.Info("telegram alerts disabled")
	}

	handler := api.NewHandler(
		engine, store,
		collections.NewRepo(pgpool),
		inventory.NewRepo(pgpool),
		notifier,
		cfg.Pool.LowMilkThresholdLiters,
		log,
	)

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, handler.Register)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
