package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hozanderik1987-afk/myamara/internal/cache"
	"github.com/hozanderik1987-afk/myamara/internal/config"
	"github.com/hozanderik1987-afk/myamara/internal/httpapi"
	"github.com/hozanderik1987-afk/myamara/internal/report"
	"github.com/hozanderik1987-afk/myamara/internal/service"
	"github.com/hozanderik1987-afk/myamara/internal/store"
	"github.com/hozanderik1987-afk/myamara/internal/store/memory"
	pgstore "github.com/hozanderik1987-afk/myamara/internal/store/postgres"
	sqlitestore "github.com/hozanderik1987-afk/myamara/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("%s store unavailable: %v", cfg.Driver(), err)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}
	log.Printf("repository: %s", cfg.Driver())

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, report.NewEngine(nil), reportCache, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second)
	api := httpapi.New(svc, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("consignment backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openRepository builds the record store for the configured driver. The
// returned close func is nil for stores that hold no connection.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	switch cfg.Driver() {
	case config.DriverPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case config.DriverSQLite:
		lite, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return lite, lite.Close, nil
	default:
		if cfg.DataFile == "" {
			return memory.NewSeeded(), nil, nil
		}
		mem, err := memory.Open(cfg.DataFile)
		if err != nil {
			return nil, nil, err
		}
		return mem, nil, nil
	}
}
