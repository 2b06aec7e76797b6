package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/tradedash/internal/apiserver"
	"github.com/betbot/tradedash/internal/strategies"
	"github.com/betbot/tradedash/pkg/logger"
	"github.com/betbot/tradedash/pkg/shutdown"
)

func main() {
	// .env 可选
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		listenAddr = flag.String("addr", getenv("TRADEDASH_SERVER_LISTEN", ":8000"), "HTTP listen address")
		dsn        = flag.String("db", getenv("TRADEDASH_SERVER_DB", "data/tradedash.db"), "SQLite db file path or postgres:// DSN")
		seed       = flag.Bool("seed", false, "insert demo data when the database is empty")
		schemaPath = flag.String("parameters-schema", getenv("TRADEDASH_PARAMETERS_SCHEMA", ""), "fallback JSON Schema for strategy parameters")
		logLevel   = flag.String("log-level", getenv("LOG_LEVEL", "info"), "log level")
	)
	flag.Parse()

	if err := logger.Init(logger.Config{
		Level:         *logLevel,
		OutputFile:    getenv("LOG_FILE", ""),
		MaxSize:       100,
		MaxBackups:    3,
		MaxAge:        7,
		ConsoleOutput: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	registry := strategies.NewRegistry()
	if *schemaPath != "" {
		v, err := strategies.LoadValidator(*schemaPath)
		if err != nil {
			logger.Errorf("load parameters schema: %v", err)
			os.Exit(1)
		}
		registry.SetDefault(v)
	}

	srv, err := apiserver.New(apiserver.Config{DSN: *dsn, Registry: registry})
	if err != nil {
		logger.Errorf("init server failed: %v", err)
		os.Exit(1)
	}
	if *seed {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := srv.Seed(ctx)
		cancel()
		if err != nil {
			_ = srv.Close()
			logger.Errorf("seed failed: %v", err)
			os.Exit(1)
		}
	}

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("api server listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
		}
	}()

	sm := shutdown.NewManager()
	sm.OnShutdown("http", func(ctx context.Context) {
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Warnf("http shutdown: %v", err)
		}
	})

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-stopCh
	logger.Infof("received %s", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sm.Shutdown(ctx)
	// 连接排空后再关库
	if err := srv.Close(); err != nil {
		logger.Warnf("close store: %v", err)
	}
	logger.Info("server stopped")
}
