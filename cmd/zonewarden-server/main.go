package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/zonewarden/server/internal/api"
	"github.com/zonewarden/server/internal/config"
	"github.com/zonewarden/server/internal/database"
	"github.com/zonewarden/server/internal/logging"
	"github.com/zonewarden/server/internal/observability"
	"github.com/zonewarden/server/internal/overlap"
)

// main starts the zone overlap server: HTTP checks under /api/zones, live
// checks over /ws, and Prometheus metrics.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Config{Format: "text"}).Error(context.Background(), "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	ctx := context.Background()

	opts := []overlap.Option{
		overlap.WithLogger(log),
		overlap.WithMaxZones(cfg.Overlap.MaxZonesPerRequest),
	}

	var collector *observability.OverlapCollector
	if cfg.Metrics.Enabled {
		collector, err = observability.NewOverlapCollector(nil)
		if err != nil {
			log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
			os.Exit(1)
		}
		opts = append(opts, overlap.WithMetrics(collector))
	}

	if cfg.Database.Enabled() {
		db, err := openDatabase(ctx, &cfg.Database)
		if err != nil {
			log.Error(ctx, "failed to connect to zone database", logging.Err(err))
			os.Exit(1)
		}
		defer db.Close()

		storage := database.NewZoneStorage(db, cfg.Database.ZonesTable, log.With(logging.String("component", "zone_storage")))
		if n, err := storage.CountActiveZones(ctx); err != nil {
			log.Warn(ctx, "zone table not readable yet", logging.String("table", storage.Table()), logging.Err(err))
		} else {
			log.Info(ctx, "zone store connected", logging.String("table", storage.Table()), logging.Any("active_zones", n))
		}
		opts = append(opts, overlap.WithZoneSource(storage))
	} else {
		log.Info(ctx, "no zone database configured; callers must supply zones")
	}

	service := overlap.NewService(opts...)
	router := api.NewRouter(service, cfg, collector, log)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go router.WebSocket.GetHub().Run(stopCtx)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info(ctx, "zonewarden server starting",
			logging.String("addr", srv.Addr),
			logging.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server exited", logging.Err(err))
			stop()
		}
	}()

	<-stopCtx.Done()
	log.Info(ctx, "shutting down zonewarden server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "graceful shutdown incomplete", logging.Err(err))
	}
}

func openDatabase(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
