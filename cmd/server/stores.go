package main

import (
	"fmt"
	"log"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
	"github.com/joshdurbin/guarded-shortener/internal/cache/memory"
	"github.com/joshdurbin/guarded-shortener/internal/cache/redis"
	"github.com/joshdurbin/guarded-shortener/internal/config"
	"github.com/joshdurbin/guarded-shortener/internal/repository"
	"github.com/joshdurbin/guarded-shortener/internal/repository/postgres"
	"github.com/joshdurbin/guarded-shortener/internal/repository/sqlite"
)

const (
	queryTimeout    = 5 * time.Second
	janitorInterval = time.Minute
)

func openRepository(cfg config.DatabaseConfig) (repository.URLRepository, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		repo, err := postgres.New(cfg.DSN, queryTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		log.Printf("Using postgres repository")
		return repo, nil
	default:
		repo, err := sqlite.New(cfg.DSN, sqlite.WithQueryTimeout(queryTimeout))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite: %w", err)
		}
		log.Printf("Using sqlite repository at %s", cfg.DSN)
		return repo, nil
	}
}

func openCache(cfg config.CacheConfig, timeout time.Duration) (cache.Store, error) {
	switch cfg.Backend {
	case config.CacheRedis:
		store, err := redis.New(redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		log.Printf("Using redis cache at %s", cfg.RedisAddr)
		return store, nil
	default:
		store := memory.New()
		if err := store.StartJanitor(janitorInterval); err != nil {
			return nil, fmt.Errorf("failed to start cache janitor: %w", err)
		}
		log.Printf("Using in-memory cache")
		return store, nil
	}
}

func closeLogged(name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		log.Printf("Error closing %s: %v", name, err)
	}
}
