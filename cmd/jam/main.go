package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamhq/jam/internal/api"
	"github.com/jamhq/jam/internal/bulkadd"
	"github.com/jamhq/jam/internal/config"
	"github.com/jamhq/jam/internal/metrics"
	"github.com/jamhq/jam/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath, cfg.InsertDelay)
	if err != nil {
		slog.Error("store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	seeded, err := st.Seed(context.Background(), cfg.SeedCompanies)
	if err != nil {
		slog.Error("seed", "error", err)
		os.Exit(1)
	}
	if seeded {
		slog.Info("database seeded", "companies", cfg.SeedCompanies)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := bulkadd.NewRunner(st, cfg.QueueSize, cfg.Concurrency)
	runner.Start(ctx)

	svc := bulkadd.NewService(st, st, runner)

	mux := http.NewServeMux()
	h := api.NewHandler(st, svc, runner)
	h.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	handler := api.Chain(mux,
		api.CORS(cfg.CORSOrigins),
		api.RequestID,
		api.Logging,
		api.Auth(cfg.APIKeys),
		api.RateLimit(cfg.RateLimitRPS),
	)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("jam listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
