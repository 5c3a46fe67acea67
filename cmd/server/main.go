package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"postbox/internal/api"
	"postbox/internal/config"
	"postbox/internal/db"
	"postbox/internal/delivery"
	"postbox/internal/logging"
	"postbox/internal/metrics"
	"postbox/internal/store"
	"postbox/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New(cfg.AppName)

	shutdown, err := tracing.InitTracing(ctx, cfg.AppName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Plain().WithError(err).Fatal("store init failed")
	}
	defer st.Close()
	logger.Plain().WithField("store", cfg.StoreKind).Info("store ready")

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	engine := delivery.NewEngine(st)
	dispatcher := delivery.NewDispatcher(engine)

	router := api.NewRouter(st, dispatcher, logger, reg, cfg.CORSOrigins)
	srv := &http.Server{
		Addr:         cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Plain().WithField("addr", srv.Addr).Info("api server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("api server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	// Let in-flight delivery runs reach a terminal status before exit.
	dispatcher.WaitIdle()
	logger.Plain().Info("stopped")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.StoreKind == "memory" {
		return store.NewMemory(), nil
	}
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return store.NewPostgres(pool), nil
}
