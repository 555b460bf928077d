package cmd

import (
	"fmt"

	"github.com/emrgen/catalog/internal/cache"
	"github.com/emrgen/catalog/internal/compress"
	"github.com/emrgen/catalog/internal/config"
	"github.com/emrgen/catalog/internal/graph"
	"github.com/emrgen/catalog/internal/metrics"
	"github.com/emrgen/catalog/internal/service"
	"github.com/emrgen/catalog/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// appContext holds what a command needs to talk to the catalog.
type appContext struct {
	cfg      *config.Config
	db       *gorm.DB
	store    *store.GormStore
	service  *service.CatalogService
	registry *prometheus.Registry
	close    func()
}

// loadContext builds the store and service from the configuration.
func loadContext() (*appContext, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return newContext(cfg)
}

func newContext(cfg *config.Config) (*appContext, error) {
	db, err := config.GetDb(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	traverser, err := graph.New(cfg.Traversal.Backend,
		graph.WithBlockSize(cfg.Query.BlockSize),
		graph.WithParameterLimit(cfg.Query.ParameterLimit),
		graph.WithMaxIterations(cfg.Traversal.MaxIterations),
	)
	if err != nil {
		return nil, err
	}

	catalogStore := store.NewGormStore(db,
		store.WithBlockSize(cfg.Query.BlockSize),
		store.WithParameterLimit(cfg.Query.ParameterLimit),
		store.WithResolver(graph.NewResolver(traverser, m, cfg.Query.BlockSize)),
	)

	var (
		catalogCache cache.CatalogCache = cache.Nop{}
		closers      []func() error
	)
	if cfg.Redis.Addr != "" {
		codec, err := compress.New(cfg.Cache.Codec)
		if err != nil {
			return nil, fmt.Errorf("cache codec: %w", err)
		}
		client := cache.NewRedisClient(cfg.Redis)
		closers = append(closers, client.Close)
		catalogCache = cache.NewRedisCache(client, codec, cfg.Cache.TTL)
	}
	if sqlDB, err := db.DB(); err == nil {
		closers = append(closers, sqlDB.Close)
	}

	logrus.Debugf("catalog using %s database with %s traversal", cfg.Database.Driver, traverser.Name())

	return &appContext{
		cfg:      cfg,
		db:       db,
		store:    catalogStore,
		service:  service.NewCatalogService(catalogStore, catalogCache, m),
		registry: registry,
		close: func() {
			for _, c := range closers {
				if err := c(); err != nil {
					logrus.Warnf("close: %v", err)
				}
			}
		},
	}, nil
}
