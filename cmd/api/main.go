package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	_ "storefront/docs"
	"storefront/pkg/api"
	"storefront/pkg/basket"
	basketmem "storefront/pkg/basket/memory"
	basketpg "storefront/pkg/basket/postgres"
	"storefront/pkg/config"
	"storefront/pkg/logger"
	"storefront/pkg/order"
	ordermem "storefront/pkg/order/memory"
	orderpg "storefront/pkg/order/postgres"
	"storefront/pkg/otel"
	"storefront/pkg/session"
)

// @title Storefront Cart API
// @version 1.0
// @description Cart, address and order endpoints backing the storefront client
// @host localhost:8443
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	envFile := flag.String("env", ".env", "Optional .env file")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadServer(*envFile)
	if err != nil {
		logger.New(os.Stderr, logger.LevelError, "storefront-api", nil).Error(ctx, "load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), "storefront-api", otel.GetTraceID)
	defer log.Sync()

	tp, shutdown, err := otel.InitTracing(log, otel.Config{ServiceName: "storefront-api", Host: cfg.OtelHost, Probability: cfg.SampleRate})
	if err != nil {
		log.Error(ctx, "init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdown(context.Background())
	tracer := tp.Tracer("storefront-api")

	carts, orders, closeDB, err := openRepositories(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "open repositories", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	var sessions session.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Error(ctx, "redis connect", "error", err)
			os.Exit(1)
		}
		sessions = session.NewRedis(client, cfg.SessionTTL)
	} else {
		log.Warn(ctx, "REDIS_ADDR not set, sessions kept in memory")
		sessions = session.NewMemory(cfg.SessionTTL)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(carts, orders, sessions, log, tracer).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error(sctx, "shutdown", "error", err)
		}
	}()

	log.Info(ctx, "listening", "addr", cfg.Addr, "tls", cfg.TLS())
	if cfg.TLS() {
		err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(ctx, "server closed", "error", err)
	}
}

// openRepositories uses Postgres when DATABASE_URL is set and in-memory
// storage otherwise.
func openRepositories(ctx context.Context, cfg config.Server, log *logger.Logger) (basket.Repository, order.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn(ctx, "DATABASE_URL not set, using in-memory storage")
		return basketmem.New(), ordermem.New(), func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	for _, schema := range []string{basket.Schema, order.Schema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
	}
	return basketpg.New(db), orderpg.New(db), func() { db.Close() }, nil
}
