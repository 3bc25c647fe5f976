package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/do/v2"

	configloader "github.com/foxseedlab/roundup/external/config"
	"github.com/foxseedlab/roundup/external/serverstore"
	"github.com/foxseedlab/roundup/internal/config"
	"github.com/foxseedlab/roundup/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "in_memory_store", cfg.InMemoryStore)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	runServer(cfg, injector)
}

func mustLoadConfig() *config.ServerConfig {
	cfg, err := configloader.LoadServer()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.ServerConfig) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.ServerConfig) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	serverstore.RegisterDI(injector)
	server.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.ServerConfig, injector do.Injector) {
	router, err := do.Invoke[*chi.Mux](injector)
	if err != nil {
		slog.Error("failed to resolve router", "error", err)
		os.Exit(1)
	}
	hub, err := do.Invoke[*server.Hub](injector)
	if err != nil {
		slog.Error("failed to resolve push hub", "error", err)
		os.Exit(1)
	}
	sweeper, err := do.Invoke[*server.Sweeper](injector)
	if err != nil {
		slog.Error("failed to resolve sweeper", "error", err)
		os.Exit(1)
	}
	st, err := do.Invoke[server.Store](injector)
	if err != nil {
		slog.Error("failed to resolve store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := sweeper.Start(); err != nil {
		slog.Error("failed to start sweeper", "error", err, "schedule", cfg.SweepSchedule)
		os.Exit(1)
	}
	defer sweeper.Stop()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	done := make(chan struct{})
	go func() {
		slog.Info("startup: listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hub.CloseAll()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
}
