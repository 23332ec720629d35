package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mosaicms/mosaic/internal/api"
	"github.com/mosaicms/mosaic/internal/config"
	"github.com/mosaicms/mosaic/internal/lifecycle"
	"github.com/mosaicms/mosaic/internal/metrics"
	"github.com/mosaicms/mosaic/internal/storage/redis"
	"github.com/mosaicms/mosaic/internal/tenancy"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	collector := metrics.NewCollector()

	// Connection pool registry: tenant pools are dialed lazily on first
	// request, so startup does not touch MongoDB.
	registry := tenancy.NewRegistry(cfg.Mongo, logger, collector)
	resolver := tenancy.NewResolver(cfg.Tenancy, registry, logger, collector)
	gate := tenancy.NewLicenseGate(tenancy.CentralOrgLookup(registry), logger, collector)

	// Redis (optional): shared cache client and distributed rate limits
	var cache *redis.Client
	if cfg.Redis.URL != "" {
		cache = redis.NewClient(cfg.Redis.URL)
	}

	// API Server
	server := api.NewServer(cfg, logger, collector, registry, resolver, gate, cache)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	// Graceful shutdown: drain the listener, close every pool once, then
	// release the cache client.
	var resources []lifecycle.Resource
	if cache != nil {
		resources = append(resources, lifecycle.Resource{Name: "redis", Close: cache.Close})
	}
	coordinator := lifecycle.NewCoordinator(logger, srv, registry,
		cfg.Server.DrainTimeout, cfg.Server.HardTimeout, resources...)
	coordinator.Listen()

	logger.Info("Server exited")
}
