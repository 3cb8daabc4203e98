package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quotient-code/collab-service/config"
	"github.com/quotient-code/collab-service/internal/collab"
	"github.com/quotient-code/collab-service/internal/memstore"
	"github.com/quotient-code/collab-service/internal/postgres"
	"github.com/quotient-code/collab-service/internal/relay"
	"github.com/quotient-code/collab-service/internal/service"
	httpx "github.com/quotient-code/collab-service/internal/transport/http"
	"github.com/quotient-code/collab-service/internal/transport/ws"
	"github.com/quotient-code/collab-service/pkg/logger"

	"github.com/redis/go-redis/v9"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting collab-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- storage ---
	var store service.FileStore
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		store = postgres.NewFileRepository(pool)
	} else {
		slog.Warn("postgres.dsn is empty, using in-memory demo store")
		mem := memstore.New()
		mem.SeedDemo()
		store = mem
	}

	contentSvc := service.NewContentService(store)

	// --- collab core ---
	reg := collab.NewRegistry()

	var rl *relay.Redis
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		rl = relay.New(rdb)
		slog.Info("relay enabled", "addr", cfg.Redis.Addr)
	}

	var bc *collab.Broadcaster
	if rl != nil {
		bc = collab.NewBroadcaster(reg, rl)
		go rl.Run(ctx, bc.Local)
	} else {
		bc = collab.NewBroadcaster(reg, nil)
	}

	supervisor := collab.NewSupervisor(reg, bc, cfg.Collab.EvictInterval, cfg.Collab.StaleThreshold)
	go supervisor.Run(ctx)

	// --- WS + HTTP ---
	wsServer := ws.NewServer(reg, bc, contentSvc, ws.Options{
		PingInterval:    cfg.Collab.PingInterval,
		WriteTimeout:    cfg.Collab.WriteTimeout,
		MaxMessageBytes: cfg.Collab.MaxMessageBytes,
	})

	httpSrv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     httpx.NewRouter(wsServer),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
