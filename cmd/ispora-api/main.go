package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Jim-devENG/ispora-engine-sub008/internal/auth"
	"github.com/Jim-devENG/ispora-engine-sub008/internal/config"
	"github.com/Jim-devENG/ispora-engine-sub008/internal/handlers"
	"github.com/Jim-devENG/ispora-engine-sub008/internal/metrics"
	"github.com/Jim-devENG/ispora-engine-sub008/internal/realtime"
	"github.com/Jim-devENG/ispora-engine-sub008/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("err", err.Error()))
		os.Exit(1)
	}

	st, err := store.New(store.Config{DSN: cfg.Database.DSN})
	if err != nil {
		logger.Error("failed to connect to database", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(registry); err != nil {
		logger.Error("failed to register metrics", slog.String("err", err.Error()))
		os.Exit(1)
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.CacheTTL)
	defer verifier.Close()

	broker := realtime.New(logger, m, realtime.Options{
		HeartbeatInterval: cfg.SSE.HeartbeatInterval,
		SendBuffer:        cfg.SSE.SendBuffer,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	api := handlers.New(logger, st, broker, verifier)
	api.Routes(r)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
		// No write timeout: SSE streams stay open indefinitely and rely
		// on heartbeats for liveness.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("workspace API starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", slog.String("err", err.Error()))
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("shutdown requested")

	broker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", slog.String("err", err.Error()))
	}
}
