package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creditmarket/ledger-backend/internal/api"
	"github.com/creditmarket/ledger-backend/internal/auth"
	"github.com/creditmarket/ledger-backend/internal/config"
	"github.com/creditmarket/ledger-backend/internal/db"
	"github.com/creditmarket/ledger-backend/internal/ledger"
	"github.com/creditmarket/ledger-backend/internal/logger"
	"github.com/creditmarket/ledger-backend/internal/metrics"
	"github.com/creditmarket/ledger-backend/internal/middleware"
	"github.com/creditmarket/ledger-backend/internal/repository/postgres"
	"github.com/creditmarket/ledger-backend/internal/services"
	"github.com/creditmarket/ledger-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	metrics.Init()

	repos := postgres.NewRepositories(pool)
	wp := worker.NewPool(cfg.WorkerCount)
	defer wp.Stop()

	tm := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTSecret+".refresh", cfg.JWTIssuer,
		15*time.Minute, 7*24*time.Hour)

	accountSvc := services.NewAccountService(repos.Accounts, tm)
	ledgerSvc := ledger.New(repos.Accounts, repos.Entries, repos.Idempotency, repos.AuditLogs, repos.Settings, wp)

	sweeper := ledger.NewSweeper(ledgerSvc, cfg.SweepInterval, log)
	go sweeper.Run(ctx)

	r := api.NewRouter(api.RouterDeps{
		Cfg:        cfg,
		AccountSvc: accountSvc,
		LedgerSvc:  ledgerSvc,
		Settings:   repos.Settings,
		Auth:       middleware.NewAuthMiddleware(tm, cfg.Env),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
