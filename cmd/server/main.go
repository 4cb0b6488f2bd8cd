package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
	"github.com/iliyamo/cinema-seat-access/internal/config"
	"github.com/iliyamo/cinema-seat-access/internal/database"
	"github.com/iliyamo/cinema-seat-access/internal/handler"
	"github.com/iliyamo/cinema-seat-access/internal/hardware"
	"github.com/iliyamo/cinema-seat-access/internal/logger"
	"github.com/iliyamo/cinema-seat-access/internal/middleware"
	"github.com/iliyamo/cinema-seat-access/internal/queue"
	"github.com/iliyamo/cinema-seat-access/internal/repository"
	"github.com/iliyamo/cinema-seat-access/internal/router"
	"github.com/iliyamo/cinema-seat-access/internal/service"
	"github.com/iliyamo/cinema-seat-access/internal/store"
)

func main() {
	envFile := pflag.String("env-file", ".env", "file with KEY=value pairs loaded into the environment")
	storeDriver := pflag.String("store", "", "store driver, mysql or memory (overrides STORE_DRIVER)")
	port := pflag.String("port", "", "HTTP port (overrides APP_PORT)")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("load %s: %v", *envFile, err)
	}
	if *storeDriver != "" {
		_ = os.Setenv("STORE_DRIVER", *storeDriver)
	}
	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	lg := logger.New(cfg.Env, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg config.Config, lg *logger.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		lg.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(database.DefaultSeats()), func() {}, nil
	case "mysql":
		db, err := database.Open(ctx, database.Options{
			User:     cfg.DBUser,
			Password: cfg.DBPass,
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			Name:     cfg.DBName,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := provision(ctx, db, lg); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repository.NewMySQLStore(db), func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func provision(ctx context.Context, db *sql.DB, lg *logger.Logger) error {
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	inserted, err := database.Seed(ctx, db)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if inserted {
		lg.Info("seat map provisioned", "seats", len(database.DefaultSeats()))
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, lg *logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		lg.Warn("redis unavailable, rate limiting is per process and history is not cached")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	hub := broadcast.NewHub(lg, cfg.WSSendBuffer)
	defer hub.Close()
	sinks := []broadcast.Publisher{hub}

	if cfg.AMQP.Enabled {
		pub := queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, 256, lg)
		go pub.Run(ctx)
		defer func() {
			cancel()
			pub.Wait()
		}()
		sinks = append(sinks, pub)
	}
	if cfg.AMQP.AuditEnabled {
		auditCfg := queue.AuditConfig{
			URL:      cfg.AMQP.URL,
			Exchange: cfg.AMQP.Exchange,
			Queue:    cfg.AMQP.AuditQueue,
			LogPath:  cfg.AMQP.AuditLogPath,
		}
		go func() {
			if err := queue.StartAuditConsumer(ctx, auditCfg, lg); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("audit consumer stopped", "error", err)
			}
		}()
	}
	events := broadcast.NewFanout(sinks...)

	var bridge *hardware.Bridge
	var link service.Bridge
	if cfg.Serial.Enabled {
		bridge = hardware.NewBridge(hardware.Config{Port: cfg.Serial.Port, BaudRate: cfg.Serial.BaudRate}, lg)
		link = bridge
	} else {
		lg.Info("serial bridge disabled, controller runs in local mode")
	}

	ctrl := service.NewController(st, events, link, lg, service.ControllerOptions{
		SettleDelay: cfg.ControllerSettle,
		AckTimeout:  cfg.ControllerAckWait,
	})
	defer ctrl.Reset()
	if bridge != nil {
		go bridge.Run(ctx, ctrl.HandleBridgeLine)
	}

	seats := service.NewSeatService(st, events, ctrl, lg, service.Options{
		CodeExpiry:    cfg.CodeExpiry,
		HistoryLimit:  cfg.HistoryLimit,
		PurgeOnEndAll: cfg.PurgeOnEndAll,
	})

	cacheCfg := config.LoadCacheConfig()
	seatHandler := handler.NewSeatHandler(seats, lg)
	seatHandler.AfterEndAll = func(ctx context.Context) {
		if err := middleware.PurgeCache(ctx, cacheCfg, rdb); err != nil {
			lg.Warn("purging history cache failed", "error", err)
		}
	}
	seatHandler.AfterChange = func(ctx context.Context, seatID string) {
		if err := middleware.PurgePath(ctx, cacheCfg, rdb, router.HistoryPath(seatID)); err != nil {
			lg.WithSeat(seatID).Warn("purging seat history cache failed", "error", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(lg.EchoLogger())

	router.RegisterRoutes(e)
	router.RegisterSeats(e, seatHandler, router.Middlewares{
		CodeLimiter:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, lg),
		HistoryCache: middleware.NewRedisCache(cacheCfg, rdb, lg),
	})
	router.RegisterController(e, handler.NewControllerHandler(ctrl, lg))
	router.RegisterBroadcast(e, hub)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		lg.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	return e.Shutdown(shutdownCtx)
}
